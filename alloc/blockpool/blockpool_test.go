package blockpool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-argus/okaylib-sub000/alloc"
	"github.com/the-argus/okaylib-sub000/alloc/blockpool"
	"github.com/the-argus/okaylib-sub000/alloc/mmap"
	"github.com/the-argus/okaylib-sub000/alloc/pagealloc"
)

func TestAllocateAndDeallocateAreReusable(t *testing.T) {
	var backing pagealloc.Allocator
	p, err := blockpool.New(&backing, blockpool.Options{
		BlockSize:     32,
		InitialBlocks: 4,
	})
	require.Equal(t, alloc.Okay, err)
	defer p.Destroy()

	md, err := p.Allocate(alloc.Request{NumBytes: 32})
	require.Equal(t, alloc.Okay, err)
	addr := md.AsBytes()
	p.Deallocate(addr)

	again, err := p.Allocate(alloc.Request{NumBytes: 32})
	require.Equal(t, alloc.Okay, err)
	assert.Equal(t, &addr[0], &again.AsBytes()[0])
}

func TestExhaustionGrowsANewPool(t *testing.T) {
	var backing pagealloc.Allocator
	p, err := blockpool.New(&backing, blockpool.Options{
		BlockSize:     16,
		InitialBlocks: 2,
		GrowthFactor:  2.0,
	})
	require.Equal(t, alloc.Okay, err)
	defer p.Destroy()

	// the page allocator hands the initial pool a whole page, which holds
	// fewer than PageSize()/16 16-byte blocks once the pool header is taken
	// out, so allocating that many exhausts it.
	for i := 0; i < mmap.PageSize()/16; i++ {
		_, err := p.Allocate(alloc.Request{NumBytes: 16})
		require.Equal(t, alloc.Okay, err)
	}

	// the initial pool is exhausted; this must be served by a grown pool
	// rather than failing outright.
	_, err = p.Allocate(alloc.Request{NumBytes: 16})
	require.Equal(t, alloc.Okay, err)
}

func TestRejectsOversizeRequest(t *testing.T) {
	var backing pagealloc.Allocator
	p, err := blockpool.New(&backing, blockpool.Options{
		BlockSize:     16,
		InitialBlocks: 2,
	})
	require.Equal(t, alloc.Okay, err)
	defer p.Destroy()

	_, err = p.Allocate(alloc.Request{NumBytes: 17})
	assert.Equal(t, alloc.Unsupported, err)
}
