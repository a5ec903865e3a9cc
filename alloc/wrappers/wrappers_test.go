package wrappers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-argus/okaylib-sub000/alloc"
	"github.com/the-argus/okaylib-sub000/alloc/blockalloc"
	"github.com/the-argus/okaylib-sub000/alloc/wrappers"
)

func TestDisableFreeingDropsFreeRelatedFeaturesAndIgnoresDeallocate(t *testing.T) {
	inner := blockalloc.NewFixedBuffer(blockalloc.FixedBufferOptions{
		FixedBuffer:      make(alloc.ByteSpan, 256),
		NumBytesPerBlock: 32,
	})
	d := &wrappers.DisableFreeing{Inner: inner}

	assert.False(t, d.Features().Has(alloc.CanPredictablyReallocInPlace))

	md, err := d.Allocate(alloc.Request{NumBytes: 32})
	require.Equal(t, alloc.Okay, err)
	d.Deallocate(md.AsBytes())

	// deallocate was a no-op, so the block never returned to the block
	// allocator's LIFO free list and a second allocation must come from a
	// different block, not the supposedly-freed one.
	md2, err := d.Allocate(alloc.Request{NumBytes: 32})
	require.Equal(t, alloc.Okay, err)
	assert.NotEqual(t, &md.AsBytes()[0], &md2.AsBytes()[0])
}

// TestEmulateExpandFront is scenario S6: wrapping a block allocator that
// cannot natively grow a front, writing a pattern, then asking for 50
// bytes of front growth.
func TestEmulateExpandFront(t *testing.T) {
	inner := blockalloc.NewFixedBuffer(blockalloc.FixedBufferOptions{
		FixedBuffer:      make(alloc.ByteSpan, 4096),
		NumBytesPerBlock: 256,
	})
	e := &wrappers.EmulateExpandFront{Inner: inner}
	assert.True(t, e.Features().Has(alloc.CanExpandFront))

	md, err := e.Allocate(alloc.Request{NumBytes: 100})
	require.Equal(t, alloc.Okay, err)
	original := md.AsBytes()
	for i := range original {
		original[i] = byte(i)
	}

	res, err := e.ReallocateExtended(alloc.ReallocateExtendedRequest{
		Memory:            original,
		RequiredBytesFront: 50,
		Flags:             alloc.ExpandFront,
	})
	require.Equal(t, alloc.Okay, err)
	assert.GreaterOrEqual(t, len(res.Memory), 150)
	assert.Equal(t, 50, res.BytesOffsetFront)
	for i := 0; i < 100; i++ {
		assert.Equal(t, byte(i), res.Memory[50+i])
	}
}

func TestEmulateExpandFrontRefusesInPlace(t *testing.T) {
	inner := blockalloc.NewFixedBuffer(blockalloc.FixedBufferOptions{
		FixedBuffer:      make(alloc.ByteSpan, 4096),
		NumBytesPerBlock: 256,
	})
	e := &wrappers.EmulateExpandFront{Inner: inner}

	md, err := e.Allocate(alloc.Request{NumBytes: 100})
	require.Equal(t, alloc.Okay, err)

	_, err = e.ReallocateExtended(alloc.ReallocateExtendedRequest{
		Memory:             md.AsBytes(),
		RequiredBytesFront: 50,
		Flags:              alloc.ExpandFront | alloc.InPlaceOrElseFail,
	})
	assert.Equal(t, alloc.CouldntExpandInPlace, err)
}
