package blockpool

import "unsafe"

// Alloc returns a payload pointer of at least n bytes, 4-byte aligned, or
// nil if no free block fits or n is zero. The free-list is scanned in
// its stored order (first-fit); defragmentation, not a best-fit scan, is
// the offered remedy for fragmentation.
func (p *Pool) Alloc(n int) unsafe.Pointer {
	internalAssert(!p.DefragInProgress(), "alloc during defrag-pending")
	if n <= 0 {
		return nil
	}
	n4 := (n + 3) &^ 3

	for cur := p.freeHead; !isNilOffset(cur); {
		s := p.payloadSpan(cur)
		next := p.freeNodeAt(cur).next

		switch {
		case s < n4:
			// doesn't fit, keep scanning
		case s-n4 >= minFreeBlock:
			p.split(cur, n4, s)
			return p.ptrFromOffset(cur)
		case s == n4 || s == n4+headerSize:
			p.consumeWhole(cur, s == n4+headerSize)
			return p.ptrFromOffset(cur)
		}

		cur = next
	}
	return nil
}

// split carves the low n4 bytes of the free block at off into a used
// block (keeping off's address), and creates a new, smaller free block
// out of the high remainder.
func (p *Pool) split(off uint16, n4, s int) {
	h := p.header(off)
	oldNextRaw := h.next
	prevRaw := h.prev

	fn := p.freeNodeAt(off)
	fp, fnNext := fn.prev, fn.next

	blockByte := decodeOffset(off)
	newFreeByte := blockByte + headerSize + n4
	newFreeOff := encodeOffset(newFreeByte)

	// used block keeps the original address
	h.prev = prevRaw &^ 1 // clear free flag, keep predecessor offset
	h.setNextOffset(newFreeOff)
	h.setPadded(false)

	// new free block takes over the remaining high range
	nh := p.header(newFreeOff)
	nh.prev = off | 1
	nh.next = oldNextRaw

	nfn := p.freeNodeAt(newFreeOff)
	nfn.prev = fp
	nfn.next = fnNext

	// fix up the free-list neighbors to point at the relocated node
	if isNilOffset(fp) {
		p.freeHead = newFreeOff
	} else {
		p.freeNodeAt(fp).next = newFreeOff
	}
	if !isNilOffset(fnNext) {
		p.freeNodeAt(fnNext).prev = newFreeOff
	}

	// fix up the address-order successor's backward link
	p.relinkPredecessor(oldNextRaw&^1, newFreeOff)

	p.freeBytes -= n4 + headerSize
}

// consumeWhole removes the free block at off from the free-list and
// turns it into a used block occupying its whole span, padding it if the
// span is exactly 4 bytes larger than the request.
func (p *Pool) consumeWhole(off uint16, padded bool) {
	fn := p.freeNodeAt(off)
	fp, fnNext := fn.prev, fn.next

	if isNilOffset(fp) {
		p.freeHead = fnNext
	} else {
		p.freeNodeAt(fp).next = fnNext
	}
	if !isNilOffset(fnNext) {
		p.freeNodeAt(fnNext).prev = fp
	}

	h := p.header(off)
	h.setFree(false)
	h.setPadded(padded)

	p.freeBytes -= p.payloadSpan(off)
}

// relinkPredecessor updates whichever block (or the tail sentinel) lives
// at successorOff so that its backward link points at newPredOff.
func (p *Pool) relinkPredecessor(successorOff, newPredOff uint16) {
	if successorOff == p.tailOffset {
		p.tailHeader().setPrevOffset(newPredOff)
	} else {
		p.header(successorOff).setPrevOffset(newPredOff)
	}
}
