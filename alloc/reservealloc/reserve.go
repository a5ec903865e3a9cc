// Package reservealloc implements the reserving page allocator: it reserves
// a fixed virtual range per allocation and commits pages into it
// incrementally, so reallocation-in-place always succeeds until the
// reservation itself is exhausted.
//
// Grounded on
// _examples/original_source/include/okay/allocators/reserving_page_allocator.h.
package reservealloc

import (
	"github.com/cznic/mathutil"
	"github.com/the-argus/okaylib-sub000/alloc"
	"github.com/the-argus/okaylib-sub000/alloc/mmap"
)

const typeFeatures = alloc.CanExpandBack | alloc.CanReclaim | alloc.CanPredictablyReallocInPlace

// Options configures an Allocator.
type Options struct {
	// PagesReserved is how many pages of virtual address space each
	// allocation reserves up front. Defaults to 1,000,000 (four gigabytes
	// on systems with a 4K page size), matching the original.
	PagesReserved int
}

// Allocator reserves a fixed number of pages per allocation and commits
// into that reservation on demand. Not threadsafe: it is built from
// mmap primitives that are not safe for concurrent bookkeeping-free use.
type Allocator struct {
	pagesReserved int
}

var _ alloc.Allocator = (*Allocator)(nil)

// New constructs a reserving page allocator. A zero PagesReserved selects
// the default.
func New(opts Options) *Allocator {
	pages := opts.PagesReserved
	if pages == 0 {
		pages = 1000000
	}
	return &Allocator{pagesReserved: pages}
}

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

	reservation := mmap.ReservePages(a.pagesReserved)
	if reservation.Code != 0 {
		return alloc.MaybeDefined{}, alloc.OOM
	}

	if code := mmap.CommitPages(reservation.Data, totalBytes/pageSize); code != 0 {
		mmap.Unmap(reservation.Data)
		return alloc.MaybeDefined{}, alloc.OOM
	}

	b := reservation.Data[:totalBytes]
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
	mmap.Unmap(b[:cap(b)])
}

// Reallocate commits additional pages in place. It always succeeds until
// the reservation backing req.Memory is exhausted, at which point it
// returns OOM. Shrinking just narrows the reported span; this
// implementation keeps no per-allocation bookkeeping so it cannot decommit.
func (a *Allocator) Reallocate(req alloc.ReallocateRequest) (alloc.MaybeDefined, alloc.Error) {
	if !req.IsValid() {
		return alloc.MaybeDefined{}, alloc.Usage
	}

	pageSize := mmap.PageSize()
	if pageSize == 0 {
		return alloc.MaybeDefined{}, alloc.PlatformFailure
	}

	if req.NewSizeBytes < len(req.Memory) {
		// plain reallocate signals a shrink purely through NewSizeBytes, with
		// no flag: ShrinkBack/ExpandBack are reserved for ReallocateExtended.
		return alloc.Defined(req.Memory[:req.NewSizeBytes]), alloc.Okay
	}

	actualSize := mathutil.Max(req.PreferredSizeBytes, req.NewSizeBytes)
	numBytes := alloc.RoundUp(actualSize, pageSize)
	numPages := numBytes / pageSize

	base := req.Memory[:cap(req.Memory)]
	if numBytes > cap(base) {
		// the reservation itself is exhausted; CommitPages would silently
		// clamp to cap(base) and report success, masking this.
		return alloc.MaybeDefined{}, alloc.OOM
	}
	if code := mmap.CommitPages(base, numPages); code != 0 {
		return alloc.MaybeDefined{}, alloc.OOM
	}

	result := base[:numBytes]
	if req.Flags.Has(alloc.LeaveNonzeroed) {
		return alloc.Undefined(alloc.UndefinedSpan(result)), alloc.Okay
	}
	for i := len(req.Memory); i < len(result); i++ {
		result[i] = 0
	}
	return alloc.Defined(alloc.ByteSpan(result)), alloc.Okay
}

func (a *Allocator) ReallocateExtended(alloc.ReallocateExtendedRequest) (alloc.ReallocationExtended, alloc.Error) {
	return alloc.ReallocationExtended{}, alloc.Unsupported
}

func (a *Allocator) Clear() {
	// can_clear is not advertised; nothing to reset since there is no
	// shared bookkeeping, only per-allocation reservations.
}
