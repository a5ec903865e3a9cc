package alloc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-argus/okaylib-sub000/alloc"
)

func TestRequestEffectiveAlignment(t *testing.T) {
	require.Equal(t, int(alloc.DefaultAlign), alloc.Request{}.EffectiveAlignment())
	require.Equal(t, 64, alloc.Request{Alignment: 64}.EffectiveAlignment())
}

func TestReallocateRequestIsValid(t *testing.T) {
	assert.True(t, alloc.ReallocateRequest{NewSizeBytes: 16}.IsValid())
	assert.False(t, alloc.ReallocateRequest{}.IsValid(), "zero NewSizeBytes is invalid")
	assert.False(t, alloc.ReallocateRequest{
		NewSizeBytes: 16,
		Flags:        alloc.ExpandFront,
	}.IsValid(), "plain reallocate cannot carry front flags")
	assert.True(t, alloc.ReallocateRequest{
		Memory:             make(alloc.ByteSpan, 8),
		NewSizeBytes:       16,
		PreferredSizeBytes: 32,
	}.IsValid())
	assert.False(t, alloc.ReallocateRequest{
		Memory:             make(alloc.ByteSpan, 8),
		NewSizeBytes:       16,
		PreferredSizeBytes: 16,
	}.IsValid(), "preferred must be strictly greater than new size")
}

func TestReallocateExtendedRequestIsValid(t *testing.T) {
	mem := make(alloc.ByteSpan, 100)
	assert.True(t, alloc.ReallocateExtendedRequest{
		Memory:            mem,
		RequiredBytesBack: 10,
		Flags:             alloc.ExpandBack,
	}.IsValid())
	assert.False(t, alloc.ReallocateExtendedRequest{Memory: mem}.IsValid(), "no side requested")
	assert.False(t, alloc.ReallocateExtendedRequest{
		Memory:            mem,
		RequiredBytesBack: 10,
		Flags:             alloc.ExpandBack | alloc.ShrinkBack,
	}.IsValid(), "cannot both expand and shrink back")
	assert.False(t, alloc.ReallocateExtendedRequest{
		Memory:            mem,
		RequiredBytesBack: 200,
		Flags:             alloc.ShrinkBack,
	}.IsValid(), "cannot shrink more than the whole allocation")
}

func TestCalculateNewPreferredSize(t *testing.T) {
	req := alloc.ReallocateExtendedRequest{
		Memory:             make(alloc.ByteSpan, 100),
		RequiredBytesBack:  10,
		PreferredBytesBack: 50,
		Flags:              alloc.ExpandBack,
	}
	back, front, size := req.CalculateNewPreferredSize()
	assert.Equal(t, 50, back)
	assert.Equal(t, 0, front)
	assert.Equal(t, 150, size)
}

func TestRoundUp(t *testing.T) {
	assert.Equal(t, 16, alloc.RoundUp(1, 16))
	assert.Equal(t, 16, alloc.RoundUp(16, 16))
	assert.Equal(t, 32, alloc.RoundUp(17, 16))
}

func TestMaybeDefinedPanicsOnWrongAccessor(t *testing.T) {
	defined := alloc.Defined(alloc.ByteSpan{1, 2, 3})
	assert.True(t, defined.IsDefined())
	assert.Panics(t, func() { defined.AsUndefined() })

	undefined := alloc.Undefined(alloc.UndefinedSpan{1, 2, 3})
	assert.False(t, undefined.IsDefined())
	assert.Panics(t, func() { undefined.AsBytes() })
	assert.Equal(t, 3, undefined.Size())
}

// fakeAllocator satisfies alloc.Allocator for exercising
// ReallocateInPlaceOrElseKeepOldNoCopy without pulling in a concrete
// allocator package.
type fakeAllocator struct {
	reallocateErr alloc.Error
	allocated     alloc.ByteSpan
}

func (f *fakeAllocator) Features() alloc.FeatureFlags { return alloc.CanPredictablyReallocInPlace }
func (f *fakeAllocator) Allocate(req alloc.Request) (alloc.MaybeDefined, alloc.Error) {
	f.allocated = make(alloc.ByteSpan, req.NumBytes)
	return alloc.Defined(f.allocated), alloc.Okay
}
func (f *fakeAllocator) Deallocate(alloc.ByteSpan) {}
func (f *fakeAllocator) Reallocate(alloc.ReallocateRequest) (alloc.MaybeDefined, alloc.Error) {
	return alloc.MaybeDefined{}, f.reallocateErr
}
func (f *fakeAllocator) ReallocateExtended(alloc.ReallocateExtendedRequest) (alloc.ReallocationExtended, alloc.Error) {
	return alloc.ReallocationExtended{}, alloc.Unsupported
}
func (f *fakeAllocator) Clear() {}

func TestReallocateInPlaceOrElseKeepOldNoCopyFallsBack(t *testing.T) {
	a := &fakeAllocator{reallocateErr: alloc.CouldntExpandInPlace}
	_, wasInPlace, err := alloc.ReallocateInPlaceOrElseKeepOldNoCopy(a, alloc.ReallocateRequest{
		Memory:       make(alloc.ByteSpan, 8),
		NewSizeBytes: 16,
	})
	require.Equal(t, alloc.Okay, err)
	assert.False(t, wasInPlace)
	assert.Len(t, a.allocated, 16)
}

func TestReallocateInPlaceOrElseKeepOldNoCopyPropagatesOtherErrors(t *testing.T) {
	a := &fakeAllocator{reallocateErr: alloc.OOM}
	_, _, err := alloc.ReallocateInPlaceOrElseKeepOldNoCopy(a, alloc.ReallocateRequest{
		Memory:       make(alloc.ByteSpan, 8),
		NewSizeBytes: 16,
	})
	assert.Equal(t, alloc.OOM, err)
}
