package blockpool

import "unsafe"

// DefragStart walks the address-order list and, for every used block,
// precomputes the header offset it will occupy after DefragCommit. The
// result is cached in that block's own header.prev field (the backward
// address-order link), which DefragCommit does not need to read back —
// it rebuilds every prev link from scratch during its own left-to-right
// compaction pass. Caching it in the payload instead (where a free
// block's free-list node would sit) would permanently clobber live user
// data, since the pool promises only that writes, not the cache itself,
// are forbidden during defrag-pending.
//
// Between DefragStart and DefragCommit the pool is defrag-pending: Alloc,
// Free, and a second DefragStart are not permitted.
func (p *Pool) DefragStart() {
	internalAssert(!p.DefragInProgress(), "defrag_start while already pending")
	p.setDefragPending(true)

	shift := 0
	curByte := 0
	tailByte := p.tailByte()
	for curByte != tailByte {
		off := encodeOffset(curByte)
		h := p.header(off)
		nextByte := decodeOffset(h.nextOffset())

		if h.isFree() {
			shift += nextByte - curByte
		} else {
			newByte := curByte - shift
			h.setPrevOffset(encodeOffset(newByte))
			if h.isPadded() {
				shift += 4
			}
		}
		curByte = nextByte
	}
}

// DefragAddress returns the address p will occupy once DefragCommit runs.
// p must not be dereferenced for writes until after the commit. A nil p
// returns nil.
func (p *Pool) DefragAddress(ptr unsafe.Pointer) unsafe.Pointer {
	if ptr == nil {
		return nil
	}
	off := p.offsetFromPtr(ptr)
	newOff := p.header(off).prevOffset()
	return p.ptrFromOffset(newOff)
}

// DefragCommit physically relocates every used block to eliminate all
// free-block gaps and padding, leaving at most one free block, at the
// tail, and rebuilds the free-list to contain only it. When the only
// space reclaimed is one block's 4 bytes of padding, too little for a
// free block, the last block keeps those 4 bytes as padding and no free
// block remains.
func (p *Pool) DefragCommit() {
	internalAssert(p.DefragInProgress(), "defrag_commit outside defrag-pending")

	tailByte := p.tailByte()
	curByte := 0
	writeByte := 0
	prevDst := nilOffset

	for curByte != tailByte {
		off := encodeOffset(curByte)
		h := p.header(off)
		nextByte := decodeOffset(h.nextOffset())

		if h.isFree() {
			curByte = nextByte
			continue
		}

		pad := 0
		if h.isPadded() {
			pad = headerSize
		}
		span := nextByte - curByte - headerSize
		moveLen := headerSize + span - pad

		dst := writeByte
		if dst != curByte {
			copy(p.buf[dst:dst+moveLen], p.buf[curByte:curByte+moveLen])
		}

		nh := p.header(encodeOffset(dst))
		nh.prev = prevDst
		nh.next = encodeOffset(dst + moveLen)

		prevDst = encodeOffset(dst)
		writeByte = dst + moveLen
		curByte = nextByte
	}

	if tailByte-writeByte == headerSize {
		// 4 leftover bytes cannot hold a free block (header plus node)
		// without overrunning the tail sentinel; pad the last block instead.
		p.header(prevDst).next = p.tailOffset | 1
		writeByte = tailByte
	}

	if writeByte < tailByte {
		freeByte := writeByte
		freeOff := encodeOffset(freeByte)
		payload := tailByte - freeByte - headerSize

		fh := p.header(freeOff)
		fh.prev = prevDst | 1
		fh.next = p.tailOffset

		fn := p.freeNodeAt(freeOff)
		fn.prev = nilOffset
		fn.next = nilOffset

		p.freeHead = freeOff
		p.freeBytes = payload
		p.tailHeader().setPrevOffset(freeOff)
	} else {
		p.freeHead = nilOffset
		p.freeBytes = 0
		p.tailHeader().setPrevOffset(prevDst)
	}

	p.setDefragPending(false)
}
