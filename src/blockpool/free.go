package blockpool

import "unsafe"

// Free returns the block owning p to the pool, coalescing it with an
// address-adjacent free predecessor and/or successor. A nil p is a no-op.
func (p *Pool) Free(ptr unsafe.Pointer) {
	internalAssert(!p.DefragInProgress(), "free during defrag-pending")
	if ptr == nil {
		return
	}

	off := p.offsetFromPtr(ptr)
	h := p.header(off)
	h.setFree(true)

	freedSpan := p.payloadSpan(off)
	p.freeBytes += freedSpan

	merged := false
	if prevOff := h.prevOffset(); !isNilOffset(prevOff) {
		if ph := p.header(prevOff); ph.isFree() {
			p.mergeIntoPredecessor(prevOff, off)
			off = prevOff
			merged = true
			p.freeBytes += headerSize
		}
	}
	if !merged {
		p.insertFree(off)
	}

	h = p.header(off)
	if succOff := h.nextOffset(); succOff != p.tailOffset {
		if sh := p.header(succOff); sh.isFree() {
			p.mergeSuccessor(off, succOff)
			p.freeBytes += headerSize
		}
	}

	p.header(off).setPadded(false)
}

// mergeIntoPredecessor extends the already-free block at predOff so it
// swallows the newly-freed block at off, and removes off from the
// address-order list. predOff is already on the free-list.
func (p *Pool) mergeIntoPredecessor(predOff, off uint16) {
	h := p.header(off)
	ph := p.header(predOff)
	ph.setNextOffset(h.nextOffset())
	ph.setPadded(false)
	p.relinkPredecessor(h.nextOffset(), predOff)
}

// mergeSuccessor extends the free block at off so it swallows its
// address-order successor at succOff, unlinking succOff from the
// free-list.
func (p *Pool) mergeSuccessor(off, succOff uint16) {
	sfn := p.freeNodeAt(succOff)
	fp, fn := sfn.prev, sfn.next
	if isNilOffset(fp) {
		p.freeHead = fn
	} else {
		p.freeNodeAt(fp).next = fn
	}
	if !isNilOffset(fn) {
		p.freeNodeAt(fn).prev = fp
	}

	sh := p.header(succOff)
	h := p.header(off)
	h.setNextOffset(sh.nextOffset())
	p.relinkPredecessor(sh.nextOffset(), off)
}

// insertFree threads the free block at off onto the head of the
// free-list.
func (p *Pool) insertFree(off uint16) {
	fn := p.freeNodeAt(off)
	fn.prev = nilOffset
	fn.next = p.freeHead
	if !isNilOffset(p.freeHead) {
		p.freeNodeAt(p.freeHead).prev = off
	}
	p.freeHead = off
}
