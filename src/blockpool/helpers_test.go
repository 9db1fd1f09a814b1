package blockpool

import (
	"math/rand"
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	rand.Seed(1)
	os.Exit(m.Run())
}

func newTestPool(t *testing.T, size int) (*Pool, []byte) {
	t.Helper()
	buf := make([]byte, size)
	p, ok := Init(buf, size)
	assert.True(t, ok, "init(%d) should succeed", size)
	return p, buf
}

// allocSeed is a running counter mirroring test_util.h's checked_alloc: each
// allocation gets a unique 16-bit seed written into its first two bytes,
// and the remainder of the payload is filled with a PRNG sequence derived
// from that seed plus the block size.
var allocSeed uint16 = 0xabcd

// checkedAlloc allocates n bytes, stamps the payload with a reproducible
// pattern, and returns the pointer (or nil on failure), ported from
// test_util.h's checked_alloc.
func checkedAlloc(t *testing.T, p *Pool, n int) unsafe.Pointer {
	t.Helper()
	ptr := p.Alloc(n)
	if ptr == nil {
		return nil
	}
	size := p.BlockSize(ptr)
	assert.GreaterOrEqual(t, size, n)
	assert.Equal(t, 0, size%4)

	seed := allocSeed
	allocSeed++

	buf := unsafe.Slice((*byte)(ptr), size)
	buf[0] = byte(seed)
	buf[1] = byte(seed >> 8)

	r := rand.New(rand.NewSource(int64(seed) + int64(size)))
	for i := 2; i < size; i++ {
		buf[i] = byte(r.Intn(256))
	}
	return ptr
}

// verifyStamp re-checks the pattern checkedAlloc wrote without freeing the
// block; used around DefragCommit to confirm content survived the move.
func verifyStamp(t *testing.T, p *Pool, ptr unsafe.Pointer) {
	t.Helper()
	size := p.BlockSize(ptr)
	buf := unsafe.Slice((*byte)(ptr), size)
	seed := uint16(buf[0]) | uint16(buf[1])<<8
	r := rand.New(rand.NewSource(int64(seed) + int64(size)))
	for i := 2; i < size; i++ {
		assert.Equal(t, byte(r.Intn(256)), buf[i], "content mismatch at offset %d after move", i)
	}
}

// checkedFree verifies the pattern checkedAlloc wrote is still intact
// (catching corruption from splits/coalesces/defrag), checks that no two
// live blocks share a seed, then frees p.
func checkedFree(t *testing.T, p *Pool, ptr unsafe.Pointer) {
	t.Helper()
	if ptr == nil {
		return
	}
	size := p.BlockSize(ptr)
	assert.GreaterOrEqual(t, size, 4)

	buf := unsafe.Slice((*byte)(ptr), size)
	seed := uint16(buf[0]) | uint16(buf[1])<<8

	r := rand.New(rand.NewSource(int64(seed) + int64(size)))
	for i := 2; i < size; i++ {
		assert.Equal(t, byte(r.Intn(256)), buf[i], "content mismatch at offset %d", i)
	}

	hits := 0
	for x := p.FirstUsed(); x != nil; x = p.NextUsed(x) {
		xs := unsafe.Slice((*byte)(x), 2)
		if uint16(xs[0])|uint16(xs[1])<<8 == seed {
			hits++
		}
	}
	assert.Equal(t, 1, hits, "seed %x must be unique among live blocks", seed)

	p.Free(ptr)
}
