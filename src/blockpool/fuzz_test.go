package blockpool

import (
	"testing"
	"unsafe"
)

// FuzzRandomOps drives Alloc/Free/Defrag from the raw fuzz input the same
// way test_fuzzer.c drives yalloc from a byte stream: the first input byte
// sets the pool size, each following pair of bytes picks an operation and
// its size or index, and the invariant walk in validate() after every op
// is the oracle for corruption, exactly like the original's internal
// validation pass.
func FuzzRandomOps(f *testing.F) {
	f.Add([]byte{0x10, 0x20, 0x01, 0x08, 0x10, 0x02, 0x00, 0x30})
	f.Add([]byte{})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff})

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) < 1 {
			return
		}
		size := int(data[0])<<4 | 16
		if size > MaxPoolSize {
			size = MaxPoolSize
		}
		buf := make([]byte, size+8)
		p, ok := Init(buf, size)
		if !ok {
			return
		}

		var live []unsafe.Pointer
		pending := false

		for i := 1; i+1 < len(data); i += 2 {
			op := data[i] % 3
			arg := int(data[i+1])

			switch {
			case pending:
				// only DefragCommit (or another start, which is
				// illegal and skipped) is legal while pending.
				if op == 2 {
					p.DefragCommit()
					pending = false
				}
			case op == 0:
				n := arg%64 + 1
				ptr := p.Alloc(n)
				if ptr != nil {
					live = append(live, ptr)
				}
			case op == 1:
				if len(live) == 0 {
					continue
				}
				idx := arg % len(live)
				p.Free(live[idx])
				live[idx] = live[len(live)-1]
				live = live[:len(live)-1]
			case op == 2:
				p.DefragStart()
				pending = true
				for j, ptr := range live {
					live[j] = p.DefragAddress(ptr)
				}
			}

			if !pending {
				if err := p.validate(); err != nil {
					t.Fatalf("invariant violated after op %d (%d live blocks): %v", i, len(live), err)
				}
			}
		}

		if pending {
			p.DefragCommit()
		}
		if err := p.validate(); err != nil {
			t.Fatalf("invariant violated at end of run: %v", err)
		}
	})
}
