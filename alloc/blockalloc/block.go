// Package blockalloc implements a fixed-size, fixed-alignment block
// allocator carved from a single buffer, with optional growth through a
// backing allocator.
//
// Grounded on
// _examples/original_source/include/okay/allocators/block_allocator.h and
// the free-list discipline in the teacher (github.com/cznic/memory)'s
// per-size-class pages.
package blockalloc

import (
	"unsafe"

	"github.com/cznic/mathutil"
	"github.com/the-argus/okaylib-sub000/alloc"
)

const typeFeatures = alloc.CanExpandBack | alloc.CanPredictablyReallocInPlace

var freeBlockAlign = int(unsafe.Alignof(uintptr(0)))
var freeBlockSize = int(unsafe.Sizeof(uintptr(0)))

// FixedBufferOptions configures an Allocator over a single fixed,
// non-growing buffer.
type FixedBufferOptions struct {
	FixedBuffer      alloc.ByteSpan
	NumBytesPerBlock int
	MinimumAlignment int
}

// GrowingOptions configures an Allocator whose first buffer, and every
// subsequent growth, come from a backing allocator.
type GrowingOptions struct {
	NumInitialSpots  int
	NumBytesPerBlock int
	MinimumAlignment int
}

// Allocator hands out fixed-size blocks from one buffer, tracked with a
// LIFO free list threaded through the blocks themselves.
type Allocator struct {
	memory           alloc.ByteSpan
	blockSize        int
	minimumAlignment int
	freeHead         *freeBlock
	backing          alloc.Allocator
}

type freeBlock struct {
	prev *freeBlock
}

var _ alloc.Allocator = (*Allocator)(nil)

func normalize(minAlign, bytesPerBlock int) (int, int) {
	align := mathutil.Max(minAlign, freeBlockAlign)
	blockSize := alloc.RoundUp(mathutil.Max(bytesPerBlock, freeBlockSize), align)
	return align, blockSize
}

// NewFixedBuffer builds a block allocator over a caller-owned buffer which
// never grows. Calling Allocate once every block is taken returns OOM.
func NewFixedBuffer(opts FixedBufferOptions) *Allocator {
	align, blockSize := normalize(opts.MinimumAlignment, opts.NumBytesPerBlock)
	a := &Allocator{
		memory:           opts.FixedBuffer,
		blockSize:        blockSize,
		minimumAlignment: align,
	}
	a.freeHead = freeEverything(opts.FixedBuffer, blockSize, nil)
	return a
}

// NewGrowing builds a block allocator whose initial buffer comes from
// backing; when the fixed buffer is exhausted, it asks backing to grow it
// in place.
func NewGrowing(backing alloc.Allocator, opts GrowingOptions) (*Allocator, alloc.Error) {
	align, blockSize := normalize(opts.MinimumAlignment, opts.NumBytesPerBlock)
	md, err := backing.Allocate(alloc.Request{
		NumBytes:  blockSize * opts.NumInitialSpots,
		Alignment: align,
		Flags:     alloc.LeaveNonzeroed,
	})
	if err != alloc.Okay {
		return nil, err
	}
	buf := md.DataMaybeDefined()
	a := &Allocator{
		memory:           alloc.ByteSpan(buf),
		blockSize:        blockSize,
		minimumAlignment: align,
		backing:          backing,
	}
	a.freeHead = freeEverything(alloc.ByteSpan(buf), blockSize, nil)
	return a, alloc.Okay
}

func freeEverything(memory alloc.ByteSpan, blockSize int, initial *freeBlock) *freeBlock {
	iter := initial
	n := len(memory) / blockSize
	for i := 0; i < n; i++ {
		block := (*freeBlock)(unsafe.Pointer(&memory[i*blockSize]))
		block.prev = iter
		iter = block
	}
	return iter
}

// BlockSize returns the normalized size of each block.
func (a *Allocator) BlockSize() int { return a.blockSize }

// BlockAlign returns the normalized minimum alignment of each block.
func (a *Allocator) BlockAlign() int { return a.minimumAlignment }

// Contains reports whether p falls within this allocator's buffer.
func (a *Allocator) Contains(p unsafe.Pointer) bool {
	if len(a.memory) == 0 {
		return false
	}
	start := uintptr(unsafe.Pointer(&a.memory[0]))
	addr := uintptr(p)
	return addr >= start && addr < start+uintptr(len(a.memory))
}

// Destroy releases the buffer back to the backing allocator, if any.
func (a *Allocator) Destroy() {
	if a.backing != nil {
		a.backing.Deallocate(a.memory)
	}
}

func (a *Allocator) grow() {
	if a.backing == nil {
		return
	}
	newSize := len(a.memory) + a.blockSize
	md, err := a.backing.Reallocate(alloc.ReallocateRequest{
		Memory:             a.memory,
		NewSizeBytes:       newSize,
		PreferredSizeBytes: len(a.memory) * 2,
		Flags:              alloc.InPlaceOrElseFail | alloc.LeaveNonzeroed,
	})
	if err != alloc.Okay {
		return
	}
	newMem := alloc.ByteSpan(md.DataMaybeDefined())
	padding := len(a.memory) % a.blockSize
	extra := newMem[len(a.memory)-padding:]
	a.memory = newMem
	a.freeHead = freeEverything(extra, a.blockSize, a.freeHead)
}

func (a *Allocator) Features() alloc.FeatureFlags { return typeFeatures }

func (a *Allocator) Allocate(req alloc.Request) (alloc.MaybeDefined, alloc.Error) {
	if a.freeHead == nil {
		a.grow()
		if a.freeHead == nil {
			return alloc.MaybeDefined{}, alloc.OOM
		}
	}
	if req.NumBytes > a.blockSize || req.EffectiveAlignment() > a.minimumAlignment {
		return alloc.MaybeDefined{}, alloc.OOM
	}

	block := a.freeHead
	a.freeHead = block.prev
	full := unsafe.Slice((*byte)(unsafe.Pointer(block)), a.blockSize)

	if !req.Flags.Has(alloc.LeaveNonzeroed) {
		for i := range full {
			full[i] = 0
		}
	}
	// the caller gets back exactly what it asked for, with the rest of the
	// block still reachable through cap for a later in-place grow.
	out := full[:req.NumBytes]
	if req.Flags.Has(alloc.LeaveNonzeroed) {
		return alloc.Undefined(alloc.UndefinedSpan(out)), alloc.Okay
	}
	return alloc.Defined(alloc.ByteSpan(out)), alloc.Okay
}

func (a *Allocator) Clear() {
	a.freeHead = freeEverything(a.memory, a.blockSize, nil)
}

func (a *Allocator) Deallocate(b alloc.ByteSpan) {
	if len(b) == 0 {
		return
	}
	// blocks sit at memory[i*blockSize]; memory's own base is only
	// align-aligned, not necessarily blockSize-aligned, so the block index
	// must be computed relative to that base rather than from the absolute
	// address.
	base := uintptr(unsafe.Pointer(&a.memory[0]))
	offset := uintptr(unsafe.Pointer(&b[0])) - base
	aligned := base + (offset/uintptr(a.blockSize))*uintptr(a.blockSize)
	block := (*freeBlock)(unsafe.Pointer(aligned))
	block.prev = a.freeHead
	a.freeHead = block
}

// Reallocate succeeds trivially if the new size fits in a block, otherwise
// returns OOM.
func (a *Allocator) Reallocate(req alloc.ReallocateRequest) (alloc.MaybeDefined, alloc.Error) {
	if !req.IsValid() {
		return alloc.MaybeDefined{}, alloc.Usage
	}
	if len(req.Memory) == 0 {
		return alloc.MaybeDefined{}, alloc.Usage
	}
	if req.NewSizeBytes > a.blockSize {
		return alloc.MaybeDefined{}, alloc.OOM
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
