package slaballoc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-argus/okaylib-sub000/alloc"
	"github.com/the-argus/okaylib-sub000/alloc/pagealloc"
	"github.com/the-argus/okaylib-sub000/alloc/slaballoc"
)

func newTestSlab(t *testing.T) *slaballoc.Allocator {
	t.Helper()
	var backing pagealloc.Allocator
	s, err := slaballoc.New(slaballoc.Options{
		Backing: &backing,
		SizeClasses: []slaballoc.SizeClass{
			{NumBytesPerBlock: 64, MinimumAlignment: 8, NumInitialSpots: 4},
			{NumBytesPerBlock: 16, MinimumAlignment: 8, NumInitialSpots: 4},
			{NumBytesPerBlock: 256, MinimumAlignment: 16, NumInitialSpots: 2},
		},
	})
	require.Equal(t, alloc.Okay, err)
	return s
}

func TestDispatchesToSmallestFittingClass(t *testing.T) {
	s := newTestSlab(t)
	defer s.Destroy()

	md, err := s.Allocate(alloc.Request{NumBytes: 10, Alignment: 8})
	require.Equal(t, alloc.Okay, err)
	assert.Len(t, md.AsBytes(), 10)
	assert.Equal(t, 16, cap(md.AsBytes()), "the class's full block capacity must still be reachable")
}

func TestAlignmentGateUsesGreaterOrEqual(t *testing.T) {
	s := newTestSlab(t)
	defer s.Destroy()

	// exactly the registered alignment of the 16-byte class must be
	// accepted, per the resolved >=-not-> comparison.
	_, err := s.Allocate(alloc.Request{NumBytes: 16, Alignment: 8})
	assert.Equal(t, alloc.Okay, err)
}

func TestOversizeRequestFailsEvenWithLargestClass(t *testing.T) {
	s := newTestSlab(t)
	defer s.Destroy()

	_, err := s.Allocate(alloc.Request{NumBytes: 1024})
	assert.Equal(t, alloc.OOM, err)
}

func TestDeallocateRoundTrips(t *testing.T) {
	s := newTestSlab(t)
	defer s.Destroy()

	md, err := s.Allocate(alloc.Request{NumBytes: 50})
	require.Equal(t, alloc.Okay, err)
	s.Deallocate(md.AsBytes())

	again, err := s.Allocate(alloc.Request{NumBytes: 50})
	require.Equal(t, alloc.Okay, err)
	assert.Equal(t, &md.AsBytes()[0], &again.AsBytes()[0])
}

func TestReallocateStaysInOwningClass(t *testing.T) {
	s := newTestSlab(t)
	defer s.Destroy()

	md, err := s.Allocate(alloc.Request{NumBytes: 10})
	require.Equal(t, alloc.Okay, err)

	grown, err := s.Reallocate(alloc.ReallocateRequest{Memory: md.AsBytes(), NewSizeBytes: 16})
	require.Equal(t, alloc.Okay, err)
	assert.Len(t, grown.AsBytes(), 16)

	_, err = s.Reallocate(alloc.ReallocateRequest{Memory: grown.AsBytes(), NewSizeBytes: 17})
	assert.Equal(t, alloc.OOM, err)
}
