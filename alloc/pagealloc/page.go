// Package pagealloc implements a direct OS page-mapped allocator. It keeps
// no bookkeeping, so deallocating anything other than the exact span
// returned from Allocate may leak on some platforms. It is usually used as
// a backing allocator for other allocators in this module.
//
// Grounded on _examples/original_source/include/okay/allocators/page_allocator.h
// and on the page-mapping half of the teacher (github.com/cznic/memory).
package pagealloc

import (
	"log"

	"github.com/the-argus/okaylib-sub000/alloc"
	"github.com/the-argus/okaylib-sub000/alloc/mmap"
)

// Allocator maps and unmaps whole pages from the OS. Its zero value is
// ready for use.
type Allocator struct{}

const typeFeatures = alloc.CanReclaim

var _ alloc.Allocator = (*Allocator)(nil)

func (a *Allocator) Features() alloc.FeatureFlags { return typeFeatures }

func (a *Allocator) Allocate(req alloc.Request) (alloc.MaybeDefined, alloc.Error) {
	pageSize := mmap.PageSize()
	if pageSize == 0 {
		return alloc.MaybeDefined{}, alloc.PlatformFailure
	}
	if req.EffectiveAlignment() > pageSize {
		return alloc.MaybeDefined{}, alloc.Unsupported
	}

	totalBytes := alloc.RoundUp(req.NumBytes, pageSize)
	numPages := totalBytes / pageSize

	result := mmap.AllocPages(numPages)
	if result.Code != 0 {
		return alloc.MaybeDefined{}, alloc.OOM
	}

	b := result.Data
	if !req.Flags.Has(alloc.LeaveNonzeroed) {
		for i := range b {
			b[i] = 0
		}
		return alloc.Defined(alloc.ByteSpan(b)), alloc.Okay
	}
	return alloc.Undefined(alloc.UndefinedSpan(b)), alloc.Okay
}

func (a *Allocator) Deallocate(b alloc.ByteSpan) {
	if len(b) == 0 {
		return
	}
	mmap.Unmap(b)
}

func (a *Allocator) Reallocate(alloc.ReallocateRequest) (alloc.MaybeDefined, alloc.Error) {
	return alloc.MaybeDefined{}, alloc.Unsupported
}

func (a *Allocator) ReallocateExtended(alloc.ReallocateExtendedRequest) (alloc.ReallocationExtended, alloc.Error) {
	return alloc.ReallocationExtended{}, alloc.Unsupported
}

func (a *Allocator) Clear() {
	// can_only_alloc is not set and can_clear is not advertised; this is a
	// warn-only no-op per spec.md §4.1.
	log.Printf("pagealloc: Clear called on an allocator without can_clear; nothing was reset")
}
