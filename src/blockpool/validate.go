package blockpool

import "fmt"

// validate walks the whole pool and checks the universal invariants from
// spec.md §8 (P1, P2, P3, P5). The public operations never call it,
// whatever internalValidate is set to; tests call it directly after
// mutating calls.
func (p *Pool) validate() error {
	if p.DefragInProgress() {
		return nil
	}

	seenFree := make(map[uint16]bool)
	totalSpan := 0
	prevWasFree := false
	curByte := 0
	tailByte := p.tailByte()

	for curByte != tailByte {
		off := encodeOffset(curByte)
		h := p.header(off)
		nextByte := decodeOffset(h.nextOffset())
		if nextByte <= curByte || nextByte > tailByte {
			return fmt.Errorf("block at %d has out-of-range next %d", curByte, nextByte)
		}

		free := h.isFree()
		if free && prevWasFree {
			return fmt.Errorf("adjacent free blocks at/before byte %d (P1 violated)", curByte)
		}
		prevWasFree = free

		if free {
			seenFree[off] = true
		}

		totalSpan += nextByte - curByte
		curByte = nextByte
	}

	if totalSpan != tailByte {
		return fmt.Errorf("address-order list does not cover the pool: got %d want %d", totalSpan, tailByte)
	}

	freeBytes := 0
	walked := 0
	for cur := p.freeHead; !isNilOffset(cur); {
		if !seenFree[cur] {
			return fmt.Errorf("free-list contains block at offset %d not marked free (P3/P5 violated)", cur)
		}
		delete(seenFree, cur)
		freeBytes += p.payloadSpan(cur)
		walked++
		if walked > len(p.buf) {
			return fmt.Errorf("free-list cycle detected")
		}
		cur = p.freeNodeAt(cur).next
	}
	if len(seenFree) != 0 {
		return fmt.Errorf("%d free block(s) missing from the free-list (P3 violated)", len(seenFree))
	}
	if freeBytes != p.freeBytes {
		return fmt.Errorf("count_free mismatch: cached %d, walked %d (P3 violated)", p.freeBytes, freeBytes)
	}

	return nil
}
