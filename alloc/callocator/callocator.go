// Package callocator implements a thin wrapper over the system
// malloc/realloc/free, mirroring _examples/original_source/include/okay/allocators/c_allocator.h.
// It is threadsafe because it delegates entirely to libc's allocator.
// Alignments above 16 bytes are refused: malloc only guarantees
// max_align_t alignment, which this module treats as 16.
package callocator

/*
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"unsafe"

	"github.com/the-argus/okaylib-sub000/alloc"
)

const (
	typeFeatures = alloc.IsThreadsafe
	maxAlignment = 16
)

// Allocator delegates every operation to the C standard library allocator.
// Its zero value is ready for use.
type Allocator struct{}

var _ alloc.Allocator = (*Allocator)(nil)

func (a *Allocator) Features() alloc.FeatureFlags { return typeFeatures }

func (a *Allocator) Allocate(req alloc.Request) (alloc.MaybeDefined, alloc.Error) {
	if req.EffectiveAlignment() > maxAlignment {
		return alloc.MaybeDefined{}, alloc.Unsupported
	}
	if req.NumBytes == 0 {
		return alloc.Defined(nil), alloc.Okay
	}

	p := C.malloc(C.size_t(req.NumBytes))
	if p == nil {
		return alloc.MaybeDefined{}, alloc.OOM
	}

	b := cBytes(p, req.NumBytes)
	if req.Flags.Has(alloc.LeaveNonzeroed) {
		return alloc.Undefined(alloc.UndefinedSpan(b)), alloc.Okay
	}
	C.memset(p, 0, C.size_t(req.NumBytes))
	return alloc.Defined(alloc.ByteSpan(b)), alloc.Okay
}

func (a *Allocator) Deallocate(b alloc.ByteSpan) {
	if len(b) == 0 {
		return
	}
	C.free(unsafe.Pointer(&b[0]))
}

// Reallocate dispatches to system realloc for a pure back-grow/shrink; any
// front change is handled by allocate-new + memcpy + free-old, per
// spec.md §4.3.
func (a *Allocator) Reallocate(req alloc.ReallocateRequest) (alloc.MaybeDefined, alloc.Error) {
	if !req.IsValid() {
		return alloc.MaybeDefined{}, alloc.Usage
	}
	if req.Flags.Has(alloc.InPlaceOrElseFail) {
		// The C library's realloc cannot predictably stay in place, so this
		// allocator does not advertise can_predictably_realloc_in_place and
		// refuses the flag outright.
		return alloc.MaybeDefined{}, alloc.Unsupported
	}

	var basePtr unsafe.Pointer
	if len(req.Memory) != 0 {
		basePtr = unsafe.Pointer(&req.Memory[0])
	}

	newSize := req.NewSizeBytes
	p := C.realloc(basePtr, C.size_t(newSize))
	if p == nil && newSize != 0 {
		return alloc.MaybeDefined{}, alloc.OOM
	}

	b := cBytes(p, newSize)
	if req.Flags.Has(alloc.LeaveNonzeroed) {
		return alloc.Undefined(alloc.UndefinedSpan(b)), alloc.Okay
	}
	if newSize > len(req.Memory) {
		grown := b[len(req.Memory):]
		for i := range grown {
			grown[i] = 0
		}
	}
	return alloc.Defined(alloc.ByteSpan(b)), alloc.Okay
}

// ReallocateExtended emulates front expansion by copy: the caller's front
// request is satisfied by allocating fresh and copying with the
// offset arithmetic from spec.md §3.2, since libc has no notion of
// expanding an allocation's front in place.
func (a *Allocator) ReallocateExtended(req alloc.ReallocateExtendedRequest) (alloc.ReallocationExtended, alloc.Error) {
	if !req.IsValid() {
		return alloc.ReallocationExtended{}, alloc.Usage
	}
	if req.Flags.Has(alloc.InPlaceOrElseFail) {
		return alloc.ReallocationExtended{}, alloc.Unsupported
	}

	changedBack, changedFront, newSize := req.CalculateNewPreferredSize()

	md, err := a.Allocate(alloc.Request{NumBytes: newSize, Flags: alloc.LeaveNonzeroed})
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
	} else if req.Flags.Has(alloc.ExpandFront) {
		copyDst += changedFront
	}
	if req.Flags.Has(alloc.ShrinkBack) {
		size -= changedBack
	}

	copy(dst[copyDst:], req.Memory[copySrc:copySrc+size])
	a.Deallocate(req.Memory)

	if !req.Flags.Has(alloc.LeaveNonzeroed) {
		for i := range dst {
			if i >= copyDst && i < copyDst+size {
				continue
			}
			dst[i] = 0
		}
	}

	offsetFront := 0
	if req.Flags.Has(alloc.ExpandFront) {
		offsetFront = changedFront
	}

	return alloc.ReallocationExtended{
		Memory:           alloc.ByteSpan(dst),
		BytesOffsetFront: offsetFront,
	}, alloc.Okay
}

// Clear is not supported by the C allocator; calling it is a usage error
// and always panics.
func (a *Allocator) Clear() {
	panic("callocator: Clear is not supported by the C allocator")
}

func cBytes(p unsafe.Pointer, size int) []byte {
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), size)
}
