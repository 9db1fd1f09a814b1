package blockpool

import "unsafe"

// CountFree returns the total number of payload bytes available across
// all free blocks, excluding each free block's 4-byte header. It is a
// running counter maintained by Alloc/Free/DefragCommit, so this is O(1).
func (p *Pool) CountFree() int {
	return p.freeBytes
}

// BlockSize returns the payload size in bytes of the block owning ptr.
func (p *Pool) BlockSize(ptr unsafe.Pointer) int {
	off := p.offsetFromPtr(ptr)
	span := p.payloadSpan(off)
	if p.header(off).isPadded() {
		span -= headerSize
	}
	return span
}

// FirstUsed returns the first used block's payload pointer in address
// order, or nil if the pool has no used blocks.
func (p *Pool) FirstUsed() unsafe.Pointer {
	return p.firstUsedFrom(encodeOffset(0))
}

// NextUsed returns the next used block after ptr in address order, or
// nil if ptr's block is the last used block.
func (p *Pool) NextUsed(ptr unsafe.Pointer) unsafe.Pointer {
	off := p.offsetFromPtr(ptr)
	next := p.header(off).nextOffset()
	return p.firstUsedFrom(next)
}

func (p *Pool) firstUsedFrom(off uint16) unsafe.Pointer {
	for off != p.tailOffset {
		h := p.header(off)
		if !h.isFree() {
			return p.ptrFromOffset(off)
		}
		off = h.nextOffset()
	}
	return nil
}
