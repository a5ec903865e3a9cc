// Package wrappers implements decorator allocators that recompute their
// inner allocator's feature flags by set arithmetic: DisableFreeing turns
// Deallocate into a no-op and strips free-related capabilities, and
// EmulateExpandFront synthesizes front growth through copy for allocators
// that cannot do it natively.
//
// Grounded on
// _examples/original_source/include/okay/allocators/wrappers.h.
package wrappers

import (
	"github.com/the-argus/okaylib-sub000/alloc"
)

const freeRelatedFeatures = alloc.CanReclaim | alloc.CanExpandBack | alloc.CanPredictablyReallocInPlace

// DisableFreeing forwards every operation to Inner except Deallocate, which
// becomes a no-op. Features strips any capability that depends on freeing
// or resizing memory the caller might expect back.
type DisableFreeing struct {
	Inner alloc.Allocator
}

var _ alloc.Allocator = (*DisableFreeing)(nil)

func (d *DisableFreeing) Features() alloc.FeatureFlags {
	return d.Inner.Features() &^ freeRelatedFeatures
}

func (d *DisableFreeing) Allocate(req alloc.Request) (alloc.MaybeDefined, alloc.Error) {
	return d.Inner.Allocate(req)
}

func (d *DisableFreeing) Deallocate(alloc.ByteSpan) {}

func (d *DisableFreeing) Reallocate(req alloc.ReallocateRequest) (alloc.MaybeDefined, alloc.Error) {
	return d.Inner.Reallocate(req)
}

func (d *DisableFreeing) ReallocateExtended(req alloc.ReallocateExtendedRequest) (alloc.ReallocationExtended, alloc.Error) {
	return d.Inner.ReallocateExtended(req)
}

func (d *DisableFreeing) Clear() { d.Inner.Clear() }

// EmulateExpandFront makes an allocator that cannot grow an allocation's
// front in place look like one that can, by allocating fresh, copying with
// the offset arithmetic from the shared reallocate-extended contract, and
// deallocating the old span. It refuses InPlaceOrElseFail for front growth
// since the emulation is never in place.
type EmulateExpandFront struct {
	Inner alloc.Allocator
}

var _ alloc.Allocator = (*EmulateExpandFront)(nil)

func (e *EmulateExpandFront) Features() alloc.FeatureFlags {
	return e.Inner.Features() | alloc.CanExpandFront
}

func (e *EmulateExpandFront) Allocate(req alloc.Request) (alloc.MaybeDefined, alloc.Error) {
	return e.Inner.Allocate(req)
}

func (e *EmulateExpandFront) Deallocate(b alloc.ByteSpan) { e.Inner.Deallocate(b) }

func (e *EmulateExpandFront) Reallocate(req alloc.ReallocateRequest) (alloc.MaybeDefined, alloc.Error) {
	return e.Inner.Reallocate(req)
}

func (e *EmulateExpandFront) ReallocateExtended(req alloc.ReallocateExtendedRequest) (alloc.ReallocationExtended, alloc.Error) {
	if !req.Flags.Has(alloc.ExpandFront) {
		return e.Inner.ReallocateExtended(req)
	}

	if req.Flags.Has(alloc.InPlaceOrElseFail) {
		if e.Inner.Features().Has(alloc.CanPredictablyReallocInPlace) {
			return alloc.ReallocationExtended{}, alloc.CouldntExpandInPlace
		}
		return alloc.ReallocationExtended{}, alloc.Unsupported
	}

	changedBack, changedFront, newSize := req.CalculateNewPreferredSize()

	md, err := e.Inner.Allocate(alloc.Request{
		NumBytes: newSize,
		Flags:    req.Flags & alloc.LeaveNonzeroed,
	})
	if err != alloc.Okay {
		return alloc.ReallocationExtended{}, err
	}
	dst := md.DataMaybeDefined()

	copyDst := 0
	copySrc := 0
	size := len(req.Memory)

	if req.Flags.Has(alloc.ShrinkFront) {
		copySrc += changedFront
		size -= changedFront
	} else {
		copyDst += changedFront
	}
	if req.Flags.Has(alloc.ShrinkBack) {
		size -= changedBack
	}

	copy(dst[copyDst:], req.Memory[copySrc:copySrc+size])
	e.Inner.Deallocate(req.Memory)

	return alloc.ReallocationExtended{
		Memory:           alloc.ByteSpan(dst),
		BytesOffsetFront: changedFront,
	}, alloc.Okay
}

func (e *EmulateExpandFront) Clear() { e.Inner.Clear() }
