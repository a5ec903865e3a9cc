// Package blockpool implements a growing linked list of block pools, all of
// one size class, backed by a mandatory parent allocator.
//
// Grounded on
// _examples/original_source/include/okay/allocators/linked_blockpool_allocator.h.
// The "last_pool->size" ambiguity noted in spec.md §9 is resolved here as
// byte size, per the spec's own recommendation.
package blockpool

import (
	"unsafe"

	"github.com/cznic/mathutil"
	"github.com/the-argus/okaylib-sub000/alloc"
)

const typeFeatures = alloc.CanPredictablyReallocInPlace | alloc.CanExpandBack

var freeBlockAlign = int(unsafe.Alignof(uintptr(0)))
var freeBlockSize = int(unsafe.Sizeof(uintptr(0)))

type freeBlock struct {
	prev *freeBlock
}

// pool is a header prepended to every pool this allocator owns. Its blocks
// start at some alignment-dependent offset past the header.
type pool struct {
	prev      *pool
	numBlocks int
	byteSize  int
	offset    int
}

func (p *pool) blocksStart() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(p), int(unsafe.Sizeof(*p))+p.offset)
}

func (p *pool) contains(addr uintptr, blockSize int) bool {
	start := uintptr(p.blocksStart())
	end := start + uintptr(p.numBlocks*blockSize)
	return addr >= start && addr < end
}

// Options configures a new pool-of-blocks Allocator.
type Options struct {
	BlockSize        int
	MinimumAlignment int // defaults to alloc.DefaultAlign
	InitialBlocks    int // must be > 0
	GrowthFactor     float64 // defaults to 2.0, must be >= 1.0
}

// Allocator hands out fixed-size blocks from a chain of pools that grows by
// asking a backing allocator for a new, larger pool whenever the current
// free list is empty.
type Allocator struct {
	lastPool         *pool
	blockSize        int
	minimumAlignment int
	backing          alloc.Allocator
	freeHead         *freeBlock
	growthFactor     float64
}

var _ alloc.Allocator = (*Allocator)(nil)

// New constructs an Allocator with one pool sized for InitialBlocks blocks,
// allocated from backing.
func New(backing alloc.Allocator, opts Options) (*Allocator, alloc.Error) {
	align := opts.MinimumAlignment
	if align == 0 {
		align = int(alloc.DefaultAlign)
	}
	align = mathutil.Max(align, freeBlockAlign)
	blockSize := alloc.RoundUp(mathutil.Max(opts.BlockSize, freeBlockSize), align)
	growth := opts.GrowthFactor
	if growth == 0 {
		growth = 2.0
	}
	if opts.InitialBlocks <= 0 || growth < 1.0 {
		return nil, alloc.Usage
	}

	headerSize := int(unsafe.Sizeof(pool{}))
	reqBytes := headerSize + align + blockSize*opts.InitialBlocks
	md, err := backing.Allocate(alloc.Request{
		NumBytes:  reqBytes,
		Alignment: mathutil.Max(align, int(unsafe.Alignof(pool{}))),
		Flags:     alloc.LeaveNonzeroed,
	})
	if err != alloc.Okay {
		return nil, err
	}

	buf := md.DataMaybeDefined()
	p := initPool(buf, nil, align, blockSize)
	if p == nil {
		return nil, alloc.OOM
	}

	a := &Allocator{
		lastPool:         p,
		blockSize:        blockSize,
		minimumAlignment: align,
		backing:          backing,
		growthFactor:     growth,
	}
	a.freeHead = linkPoolFree(p, blockSize, nil)
	return a, alloc.Okay
}

func initPool(buf []byte, prev *pool, align, blockSize int) *pool {
	headerSize := int(unsafe.Sizeof(pool{}))
	if len(buf) <= headerSize {
		return nil
	}
	p := (*pool)(unsafe.Pointer(&buf[0]))
	body := buf[headerSize:]
	start := unsafe.Pointer(&body[0])
	remaining := len(body)
	alignedStart, ok := alignPointer(start, remaining, align, blockSize)
	if !ok {
		return nil
	}
	offset := int(uintptr(alignedStart) - uintptr(start))
	numBlocks := (remaining - offset) / blockSize
	if numBlocks <= 0 {
		return nil
	}
	p.prev = prev
	p.byteSize = len(buf)
	p.offset = offset
	p.numBlocks = numBlocks
	return p
}

func alignPointer(start unsafe.Pointer, space, align, need int) (unsafe.Pointer, bool) {
	addr := uintptr(start)
	aligned := (addr + uintptr(align) - 1) &^ (uintptr(align) - 1)
	skip := int(aligned - addr)
	if skip+need > space {
		return nil, false
	}
	return unsafe.Pointer(aligned), true
}

func linkPoolFree(p *pool, blockSize int, initial *freeBlock) *freeBlock {
	iter := initial
	for i := p.numBlocks - 1; i >= 0; i-- {
		block := (*freeBlock)(unsafe.Add(p.blocksStart(), i*blockSize))
		block.prev = iter
		iter = block
	}
	return iter
}

func (a *Allocator) allocNewPool() alloc.Error {
	nextSize := int(float64(a.lastPool.byteSize) * a.growthFactor)
	md, err := a.backing.Allocate(alloc.Request{
		NumBytes:  nextSize,
		Alignment: a.minimumAlignment,
		Flags:     alloc.LeaveNonzeroed,
	})
	if err != alloc.Okay {
		return err
	}
	buf := md.DataMaybeDefined()
	p := initPool(buf, a.lastPool, a.minimumAlignment, a.blockSize)
	if p == nil {
		return alloc.OOM
	}
	a.lastPool = p
	a.freeHead = linkPoolFree(p, a.blockSize, a.freeHead)
	return alloc.Okay
}

// BlockSize returns the uniform size of every block in this pool.
func (a *Allocator) BlockSize() int { return a.blockSize }

// BlockAlign returns the minimum alignment of every block.
func (a *Allocator) BlockAlign() int { return a.minimumAlignment }

// Destroy walks the pool list and frees every pool back to the backing
// allocator.
func (a *Allocator) Destroy() {
	headerSize := int(unsafe.Sizeof(pool{}))
	iter := a.lastPool
	for iter != nil {
		prev := iter.prev
		raw := unsafe.Slice((*byte)(unsafe.Pointer(iter)), headerSize+iter.byteSize-headerSize)
		a.backing.Deallocate(alloc.ByteSpan(raw[:iter.byteSize]))
		iter = prev
	}
}

func (a *Allocator) containedIn(addr uintptr) bool {
	iter := a.lastPool
	for iter != nil {
		if iter.contains(addr, a.blockSize) {
			return true
		}
		iter = iter.prev
	}
	return false
}

func (a *Allocator) Features() alloc.FeatureFlags { return typeFeatures }

func (a *Allocator) Allocate(req alloc.Request) (alloc.MaybeDefined, alloc.Error) {
	if req.NumBytes > a.blockSize || req.EffectiveAlignment() > a.minimumAlignment {
		return alloc.MaybeDefined{}, alloc.Unsupported
	}
	if a.freeHead == nil {
		if err := a.allocNewPool(); err != alloc.Okay {
			return alloc.MaybeDefined{}, err
		}
	}

	block := a.freeHead
	a.freeHead = block.prev
	full := unsafe.Slice((*byte)(unsafe.Pointer(block)), a.blockSize)

	if !req.Flags.Has(alloc.LeaveNonzeroed) {
		for i := range full {
			full[i] = 0
		}
	}
	out := full[:req.NumBytes]
	if req.Flags.Has(alloc.LeaveNonzeroed) {
		return alloc.Undefined(alloc.UndefinedSpan(out)), alloc.Okay
	}
	return alloc.Defined(alloc.ByteSpan(out)), alloc.Okay
}

func (a *Allocator) Deallocate(b alloc.ByteSpan) {
	if len(b) == 0 {
		return
	}
	// each pool's blocks start at an alignment-dependent offset past its
	// header, so the block index must be computed relative to the owning
	// pool's own base rather than the absolute address.
	addr := uintptr(unsafe.Pointer(&b[0]))
	for iter := a.lastPool; iter != nil; iter = iter.prev {
		if !iter.contains(addr, a.blockSize) {
			continue
		}
		base := uintptr(iter.blocksStart())
		aligned := base + ((addr-base)/uintptr(a.blockSize))*uintptr(a.blockSize)
		block := (*freeBlock)(unsafe.Pointer(aligned))
		block.prev = a.freeHead
		a.freeHead = block
		return
	}
}

func (a *Allocator) Reallocate(req alloc.ReallocateRequest) (alloc.MaybeDefined, alloc.Error) {
	if !req.IsValid() {
		return alloc.MaybeDefined{}, alloc.Usage
	}
	if req.NewSizeBytes > a.blockSize {
		return alloc.MaybeDefined{}, alloc.Unsupported
	}
	newSize := req.NewSizeBytes
	if req.PreferredSizeBytes != 0 {
		newSize = mathutil.Min(req.PreferredSizeBytes, a.blockSize)
	}
	base := req.Memory[:cap(req.Memory)]
	if newSize > cap(base) {
		newSize = cap(base)
	}
	result := base[:newSize]
	if !req.Flags.Has(alloc.LeaveNonzeroed) {
		for i := len(req.Memory); i < len(result); i++ {
			result[i] = 0
		}
	}
	return alloc.Defined(alloc.ByteSpan(result)), alloc.Okay
}

func (a *Allocator) ReallocateExtended(alloc.ReallocateExtendedRequest) (alloc.ReallocationExtended, alloc.Error) {
	return alloc.ReallocationExtended{}, alloc.Unsupported
}

func (a *Allocator) Clear() {
	// can_clear is not advertised; blocks are handed out from a chain of
	// pools and there is no single bump pointer to rewind.
}
