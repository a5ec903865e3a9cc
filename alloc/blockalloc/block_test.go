package blockalloc_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-argus/okaylib-sub000/alloc"
	"github.com/the-argus/okaylib-sub000/alloc/blockalloc"
)

func addrOf(b alloc.ByteSpan) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// TestExhaustionAndReuse is scenario S3: a fixed 512-byte buffer sliced
// into 64-byte blocks yields exactly 8 allocations, the 9th fails, and
// freeing the fifth hands its exact address back out on the next request.
func TestExhaustionAndReuse(t *testing.T) {
	a := blockalloc.NewFixedBuffer(blockalloc.FixedBufferOptions{
		FixedBuffer:      make(alloc.ByteSpan, 512),
		NumBytesPerBlock: 64,
	})

	addrs := make([]uintptr, 0, 8)
	seen := make(map[uintptr]bool)
	for i := 0; i < 8; i++ {
		md, err := a.Allocate(alloc.Request{NumBytes: 64})
		require.Equal(t, alloc.Okay, err)
		addr := addrOf(md.AsBytes())
		require.Zero(t, addr%64)
		require.False(t, seen[addr], "block address reused while still live")
		seen[addr] = true
		addrs = append(addrs, addr)
	}

	_, err := a.Allocate(alloc.Request{NumBytes: 64})
	assert.Equal(t, alloc.OOM, err)

	freed := addrs[4]
	a.Deallocate(alloc.ByteSpan(unsafe.Slice((*byte)(unsafe.Pointer(freed)), 64)))

	md, err := a.Allocate(alloc.Request{NumBytes: 64})
	require.Equal(t, alloc.Okay, err)
	assert.Equal(t, freed, addrOf(md.AsBytes()))
}

func TestGrowingAllocatorAsksBackingForMore(t *testing.T) {
	var backing testBacking
	a, err := blockalloc.NewGrowing(&backing, blockalloc.GrowingOptions{
		NumInitialSpots:  2,
		NumBytesPerBlock: 32,
	})
	require.Equal(t, alloc.Okay, err)

	for i := 0; i < 2; i++ {
		_, err := a.Allocate(alloc.Request{NumBytes: 32})
		require.Equal(t, alloc.Okay, err)
	}

	// third allocation exhausts the initial buffer and must grow through
	// the backing allocator instead of failing.
	_, err = a.Allocate(alloc.Request{NumBytes: 32})
	require.Equal(t, alloc.Okay, err)
	assert.True(t, backing.grew)
}

// testBacking is a trivial heap-backed allocator used only to observe that
// blockalloc.Allocator asks for growth when its buffer is exhausted.
type testBacking struct {
	grew bool
}

func (b *testBacking) Features() alloc.FeatureFlags {
	return alloc.CanExpandBack | alloc.CanPredictablyReallocInPlace
}
func (b *testBacking) Allocate(req alloc.Request) (alloc.MaybeDefined, alloc.Error) {
	return alloc.Defined(make(alloc.ByteSpan, req.NumBytes)), alloc.Okay
}
func (b *testBacking) Deallocate(alloc.ByteSpan) {}
func (b *testBacking) Reallocate(req alloc.ReallocateRequest) (alloc.MaybeDefined, alloc.Error) {
	b.grew = true
	grown := make(alloc.ByteSpan, req.NewSizeBytes)
	copy(grown, req.Memory)
	return alloc.Defined(grown), alloc.Okay
}
func (b *testBacking) ReallocateExtended(alloc.ReallocateExtendedRequest) (alloc.ReallocationExtended, alloc.Error) {
	return alloc.ReallocationExtended{}, alloc.Unsupported
}
func (b *testBacking) Clear() {}
