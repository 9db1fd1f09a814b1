// Package blockpool implements a fixed-capacity, in-place memory allocator
// over a caller-supplied contiguous byte buffer. Block headers and
// free-list links live inside the buffer itself as 16-bit offsets; the
// free-list head and the running free-byte count are fields of the Pool
// value, not stored in the buffer. The allocator never touches the host
// memory system.
package blockpool

import "unsafe"

// Define constants
const (
	headerSize  = 4 // bytes per block header (prev uint16, next uint16)
	freeNodeLen = 4 // bytes per free-list node (free_prev, free_next)

	// minFreeBlock is the smallest legal free block: one header plus one
	// free-list node (free_prev and free_next, two 16-bit offsets, so the
	// node is 4 bytes wide).
	minFreeBlock = headerSize + freeNodeLen

	// MinPoolSize is the smallest byte count init() accepts: a tail
	// sentinel (4 bytes, a real header) plus one minimal free block.
	// There is no head sentinel storage; see DESIGN.md.
	MinPoolSize = headerSize + minFreeBlock

	// MaxPoolSize is the largest byte count whose every legal header
	// offset stays clear of the reserved NIL encoding.
	MaxPoolSize = 131068

	// NIL marks "no such block". Both 0xFFFE and 0xFFFF decode to it;
	// the low bit is a flag bit on every offset field.
	nilOffset uint16 = 0xFFFE
)

func isNilOffset(v uint16) bool { return v|1 == 0xFFFF }

func encodeOffset(byteOffset int) uint16 { return uint16(byteOffset >> 1) }

func decodeOffset(v uint16) int { return int(v&^1) << 1 }

// header is the 4-byte in-band descriptor at the start of every real
// block (used or free). Sentinels are the exception: there is no head
// sentinel storage at all, and the tail sentinel is a header whose next
// is always NIL.
type header struct {
	prev uint16 // low bit: free flag. During defrag-pending this field is
	// temporarily overloaded on USED blocks to cache the block's
	// post-compaction header offset (see DefragStart).
	next uint16 // low bit: padded flag
}

func (h *header) isFree() bool        { return h.prev&1 != 0 }
func (h *header) setFree(v bool)      { setFlag(&h.prev, v) }
func (h *header) prevOffset() uint16  { return h.prev &^ 1 }
func (h *header) setPrevOffset(o uint16) {
	h.prev = (o &^ 1) | (h.prev & 1)
}
func (h *header) isPadded() bool     { return h.next&1 != 0 }
func (h *header) setPadded(v bool)   { setFlag(&h.next, v) }
func (h *header) nextOffset() uint16 { return h.next &^ 1 }
func (h *header) setNextOffset(o uint16) {
	h.next = (o &^ 1) | (h.next & 1)
}

func setFlag(field *uint16, v bool) {
	if v {
		*field |= 1
	} else {
		*field &^= 1
	}
}

// freeNode is the overlay living in the first 4 bytes of a free block's
// payload: the doubly-linked free-list pointers.
type freeNode struct {
	prev uint16
	next uint16
}

// Pool wraps a caller-supplied buffer and manages allocation within it.
// Bookkeeping that is not part of the portable on-pool format (the
// free-list head and the running free-byte counter) lives here, alongside
// the buffer rather than inside it.
type Pool struct {
	buf         []byte
	base        unsafe.Pointer
	tailOffset  uint16
	freeHead    uint16
	freeBytes   int
}

// internalValidate mirrors yalloc_internals.h's YALLOC_INTERNAL_VALIDATE:
// off by default; flipping it on makes internalAssert panic when an
// operation is called in the wrong defrag state. It does not run the
// validate() invariant walk, which only the tests call.
const internalValidate = false

func internalAssert(cond bool, msg string) {
	if internalValidate && !cond {
		panic("blockpool: " + msg)
	}
}

func (p *Pool) tailByte() int { return len(p.buf) - headerSize }

func (p *Pool) header(off uint16) *header {
	return (*header)(unsafe.Pointer(&p.buf[decodeOffset(off)]))
}

func (p *Pool) freeNodeAt(off uint16) *freeNode {
	return (*freeNode)(unsafe.Pointer(&p.buf[decodeOffset(off)+headerSize]))
}

func (p *Pool) ptrFromOffset(off uint16) unsafe.Pointer {
	return unsafe.Pointer(&p.buf[decodeOffset(off)+headerSize])
}

func (p *Pool) offsetFromPtr(ptr unsafe.Pointer) uint16 {
	byteOff := int(uintptr(ptr) - uintptr(p.base)) - headerSize
	return encodeOffset(byteOff)
}

// payloadSpan returns the raw number of bytes between this header and the
// next header, ignoring the padded flag. For a free block this is exactly
// its usable payload; for a used block it additionally includes any
// padding.
func (p *Pool) payloadSpan(off uint16) int {
	h := p.header(off)
	return decodeOffset(h.nextOffset()) - decodeOffset(off) - headerSize
}

func (p *Pool) tailHeader() *header {
	return p.header(p.tailOffset)
}

// DefragInProgress reports whether the pool sits between DefragStart and
// DefragCommit. The flag rides the tail sentinel's otherwise-unused free
// bit (sentinels are never free).
func (p *Pool) DefragInProgress() bool {
	return p.tailHeader().isFree()
}

func (p *Pool) setDefragPending(v bool) {
	p.tailHeader().setFree(v)
}

// Init installs a fresh pool inside buf, managing exactly byteCount bytes
// of it (rounded down to a multiple of 4). It returns (nil, false) if
// byteCount is larger than MaxPoolSize, if the rounded size is smaller
// than MinPoolSize or larger than len(buf), or if buf is not 4-byte
// aligned.
func Init(buf []byte, byteCount int) (*Pool, bool) {
	if byteCount > MaxPoolSize {
		return nil, false
	}
	n := byteCount &^ 3
	if n < MinPoolSize || n > len(buf) {
		return nil, false
	}
	if len(buf) == 0 || uintptr(unsafe.Pointer(&buf[0]))%4 != 0 {
		return nil, false
	}

	p := &Pool{
		buf:        buf[:n:n],
		base:       unsafe.Pointer(&buf[0]),
		tailOffset: encodeOffset(n - headerSize),
	}

	firstOff := encodeOffset(0)
	tailByte := n - headerSize
	payload := tailByte - headerSize

	fh := p.header(firstOff)
	fh.prev = nilOffset | 1 // no predecessor, free
	fh.next = encodeOffset(tailByte)

	fn := p.freeNodeAt(firstOff)
	fn.prev = nilOffset
	fn.next = nilOffset

	th := p.tailHeader()
	th.prev = 0 // last real block is the one at offset 0; defrag flag clear
	th.next = nilOffset

	p.freeHead = firstOff
	p.freeBytes = payload

	return p, true
}

// Deinit releases no pool bytes (the caller owns the buffer); it exists
// to mirror the init/deinit lifecycle and to give debugger-integration
// layers a hook to tear down out-of-band bookkeeping. It has no effect on
// pool contents.
func (p *Pool) Deinit() {
	p.buf = nil
	p.base = nil
}
