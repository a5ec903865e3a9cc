// Package slaballoc implements a dispatching allocator over a small fixed
// set of block allocators, one per configured size class.
//
// Grounded on
// _examples/original_source/include/okay/allocators/slab_allocator.h, whose
// dispatch bodies are left as stubs in the original; the matching/deallocate
// behavior below follows spec.md §4.7 directly, including the resolved
// ≥-not-> alignment comparison noted in spec.md §9.
package slaballoc

import (
	"unsafe"

	"github.com/the-argus/okaylib-sub000/alloc"
	"github.com/the-argus/okaylib-sub000/alloc/blockalloc"
)

const typeFeatures = alloc.CanExpandBack | alloc.CanPredictablyReallocInPlace | alloc.CanClear

// SizeClass configures one of the slab's backing block allocators.
type SizeClass struct {
	NumBytesPerBlock int
	MinimumAlignment int
	NumInitialSpots  int
}

// Options configures an Allocator. SizeClasses need not be pre-sorted; New
// sorts them ascending by block size.
type Options struct {
	Backing    alloc.Allocator
	SizeClasses []SizeClass
}

// Allocator dispatches each request to the smallest size class that can
// satisfy it, by walking size classes in ascending order.
type Allocator struct {
	classes []*blockalloc.Allocator
}

var _ alloc.Allocator = (*Allocator)(nil)

// New constructs a slab allocator with one growing block allocator per
// requested size class.
func New(opts Options) (*Allocator, alloc.Error) {
	sorted := append([]SizeClass(nil), opts.SizeClasses...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].NumBytesPerBlock > sorted[j].NumBytesPerBlock; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}

	classes := make([]*blockalloc.Allocator, 0, len(sorted))
	for _, sc := range sorted {
		ba, err := blockalloc.NewGrowing(opts.Backing, blockalloc.GrowingOptions{
			NumInitialSpots:  sc.NumInitialSpots,
			NumBytesPerBlock: sc.NumBytesPerBlock,
			MinimumAlignment: sc.MinimumAlignment,
		})
		if err != alloc.Okay {
			for _, done := range classes {
				done.Destroy()
			}
			return nil, err
		}
		classes = append(classes, ba)
	}

	return &Allocator{classes: classes}, alloc.Okay
}

// Destroy tears down every size class's backing block allocator.
func (a *Allocator) Destroy() {
	for _, c := range a.classes {
		c.Destroy()
	}
}

func (a *Allocator) Features() alloc.FeatureFlags { return typeFeatures }

func (a *Allocator) classFor(numBytes, alignment int) *blockalloc.Allocator {
	for _, c := range a.classes {
		if c.BlockSize() >= numBytes && c.BlockAlign() >= alignment {
			return c
		}
	}
	return nil
}

func (a *Allocator) owningClass(p unsafe.Pointer) *blockalloc.Allocator {
	var owner *blockalloc.Allocator
	for _, c := range a.classes {
		if c.Contains(p) {
			owner = c
			break
		}
	}
	return owner
}

func (a *Allocator) Allocate(req alloc.Request) (alloc.MaybeDefined, alloc.Error) {
	class := a.classFor(req.NumBytes, req.EffectiveAlignment())
	if class == nil {
		return alloc.MaybeDefined{}, alloc.OOM
	}
	return class.Allocate(req)
}

func (a *Allocator) Deallocate(b alloc.ByteSpan) {
	if len(b) == 0 {
		return
	}
	class := a.owningClass(unsafe.Pointer(&b[0]))
	if class == nil {
		return
	}
	class.Deallocate(b)
}

// Reallocate stays within the owning size class: it asks that class for
// the resize, which succeeds only when the new size still fits that
// class's fixed block size. Promoting to a larger class would require a
// copy the caller did not authorize, so a size past the class's block size
// fails with the owning class's OOM.
func (a *Allocator) Reallocate(req alloc.ReallocateRequest) (alloc.MaybeDefined, alloc.Error) {
	if len(req.Memory) == 0 {
		return alloc.MaybeDefined{}, alloc.Usage
	}
	class := a.owningClass(unsafe.Pointer(&req.Memory[0]))
	if class == nil {
		return alloc.MaybeDefined{}, alloc.Usage
	}
	return class.Reallocate(req)
}

func (a *Allocator) ReallocateExtended(alloc.ReallocateExtendedRequest) (alloc.ReallocationExtended, alloc.Error) {
	return alloc.ReallocationExtended{}, alloc.Unsupported
}

// Clear resets every size class's free list, without returning memory to
// the backing allocator.
func (a *Allocator) Clear() {
	for _, c := range a.classes {
		c.Clear()
	}
}
