package arena_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-argus/okaylib-sub000/alloc"
	"github.com/the-argus/okaylib-sub000/alloc/arena"
)

func addrOf(b alloc.ByteSpan) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// TestBumpAndClear is scenario S1: a bump allocation, a second bump
// allocation directly after it, then a clear that rewinds to the start.
func TestBumpAndClear(t *testing.T) {
	buf := make(alloc.ByteSpan, 1024)
	a := arena.NewStatic(buf)

	first, err := a.Allocate(alloc.Request{NumBytes: 100, Alignment: 16})
	require.Equal(t, alloc.Okay, err)
	firstAddr := addrOf(first.AsBytes())
	assert.Zero(t, firstAddr%16)
	for _, b := range first.AsBytes() {
		assert.Zero(t, b)
	}

	second, err := a.Allocate(alloc.Request{NumBytes: 100, Flags: alloc.LeaveNonzeroed})
	require.Equal(t, alloc.Okay, err)
	secondAddr := addrOf(second.AsUndefined().MarkDefined())
	assert.GreaterOrEqual(t, secondAddr, firstAddr+100)
	assert.Zero(t, secondAddr%uintptr(alloc.DefaultAlign))

	a.Clear()
	third, err := a.Allocate(alloc.Request{NumBytes: 200})
	require.Equal(t, alloc.Okay, err)
	assert.Equal(t, firstAddr, addrOf(third.AsBytes()))
}

func TestOOMWithoutBacking(t *testing.T) {
	a := arena.NewStatic(make(alloc.ByteSpan, 8))
	_, err := a.Allocate(alloc.Request{NumBytes: 100})
	assert.Equal(t, alloc.OOM, err)
}

func TestScopeRunsDestructorsInLIFOOrder(t *testing.T) {
	a := arena.NewStatic(make(alloc.ByteSpan, 4096))
	scope := a.Begin()

	var order []int
	require.Equal(t, alloc.Okay, a.RegisterDestructor(1, func(ctx interface{}) {
		order = append(order, ctx.(int))
	}))
	require.Equal(t, alloc.Okay, a.RegisterDestructor(2, func(ctx interface{}) {
		order = append(order, ctx.(int))
	}))

	a.End(scope)
	assert.Equal(t, []int{2, 1}, order)
}
