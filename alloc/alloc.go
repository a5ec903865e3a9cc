// Package alloc defines the allocator contract shared by every concrete
// allocator in this module: typed memory descriptors, allocation and
// reallocation requests, the capability flag vocabulary, and the error
// vocabulary returned by fallible operations.
//
// Changelog
//
// Every concrete allocator (pagealloc, reservealloc, callocator, arena,
// blockalloc, blockpool, slaballoc, wrappers) implements the Allocator
// interface declared here and advertises which subset of it behaves
// correctly through Features.
package alloc

import (
	"unsafe"

	"github.com/cznic/mathutil"
)

// DefaultAlign is used by Request when no alignment is specified. It is the
// largest natural alignment of Go's uint64, float64 and pointer types (8 on
// common platforms), which can be smaller than C's max_align_t.
const DefaultAlign = unsafe.Alignof(struct {
	_ uint64
	_ float64
	_ unsafe.Pointer
}{})

// Error is the error vocabulary returned by fallible allocator operations.
// The zero value, Okay, means success, which keeps error checks
// branch-predictable: `if err != alloc.Okay`.
type Error uint8

const (
	// Okay indicates success. It is the zero value.
	Okay Error = iota
	// NoValue indicates no value was present; returned by companion
	// optional-style APIs, never by an allocator directly.
	NoValue
	// OOM indicates the allocator cannot satisfy the request.
	OOM
	// Unsupported indicates the operation is not implemented by this
	// allocator, or not for this shape of request.
	Unsupported
	// Usage indicates the caller violated a precondition.
	Usage
	// CouldntExpandInPlace indicates the in-place reallocation gate
	// refused; the caller may retry without InPlaceOrElseFail.
	CouldntExpandInPlace
	// PlatformFailure indicates a page-size query or OS primitive failed.
	PlatformFailure
)

func (e Error) Error() string {
	switch e {
	case Okay:
		return "okay"
	case NoValue:
		return "no value"
	case OOM:
		return "out of memory"
	case Unsupported:
		return "unsupported"
	case Usage:
		return "usage error"
	case CouldntExpandInPlace:
		return "could not expand in place"
	case PlatformFailure:
		return "platform failure"
	default:
		return "unknown alloc.Error"
	}
}

// Flags modify an individual allocate/reallocate call.
type Flags uint16

const (
	LeaveNonzeroed Flags = 1 << iota
	ExpandBack
	ExpandFront
	ShrinkBack
	ShrinkFront
	TryDefragment
	InPlaceOrElseFail
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// FeatureFlags is a bitset a concrete allocator returns from Features() to
// advertise which operations and properties it supports. Wrappers recompute
// their own feature set by set arithmetic on the inner allocator's flags.
type FeatureFlags uint16

const (
	IsThreadsafe FeatureFlags = 1 << iota
	CanClear
	CanPredictablyReallocInPlace
	CanOnlyAlloc
	IsStacklike
	CanExpandBack
	CanExpandFront
	CanReclaim
)

func (f FeatureFlags) Has(bit FeatureFlags) bool { return f&bit != 0 }

// ByteSpan is a view of a contiguous range of initialized bytes. Every byte
// in the span is readable and writable for the whole lifetime of the span.
type ByteSpan []byte

// UndefinedSpan is shaped like a ByteSpan, but its bytes are not required to
// hold a defined value. Call MarkDefined before reading from it.
type UndefinedSpan []byte

// MarkDefined asserts the caller has initialized every byte of u and
// produces a ByteSpan over the same memory.
func (u UndefinedSpan) MarkDefined() ByteSpan { return ByteSpan(u) }

// MaybeDefined is a tagged union of a ByteSpan and an UndefinedSpan. Callers
// that asked for LeaveNonzeroed get back undefined memory; everyone else
// gets back a defined span. Keeping the two separate at the type level
// means a caller cannot accidentally read memory the allocator never zeroed.
type MaybeDefined struct {
	defined   ByteSpan
	undefined UndefinedSpan
	isDefined bool
}

// Defined wraps a ByteSpan known to hold initialized bytes.
func Defined(b ByteSpan) MaybeDefined {
	return MaybeDefined{defined: b, isDefined: true}
}

// Undefined wraps an UndefinedSpan whose bytes have not been initialized.
func Undefined(u UndefinedSpan) MaybeDefined {
	return MaybeDefined{undefined: u, isDefined: false}
}

// IsDefined reports whether the wrapped memory is known to be initialized.
func (m MaybeDefined) IsDefined() bool { return m.isDefined }

// AsBytes returns the wrapped ByteSpan. It panics if the memory is
// undefined; use AsUndefined instead in that case.
func (m MaybeDefined) AsBytes() ByteSpan {
	if !m.isDefined {
		panic("alloc: AsBytes called on undefined memory; use AsUndefined")
	}
	return m.defined
}

// AsUndefined returns the wrapped UndefinedSpan. It panics if the memory is
// already known to be defined.
func (m MaybeDefined) AsUndefined() UndefinedSpan {
	if m.isDefined {
		panic("alloc: AsUndefined called on already-defined memory; use AsBytes")
	}
	return m.undefined
}

// DataMaybeDefined returns the raw bytes regardless of the defined tag.
// Prefer AsBytes/AsUndefined; this exists for callers that only need the
// address and length, e.g. to compute offsets.
func (m MaybeDefined) DataMaybeDefined() []byte {
	if m.isDefined {
		return m.defined
	}
	return m.undefined
}

// Size returns the length of the wrapped memory regardless of its tag.
func (m MaybeDefined) Size() int { return len(m.DataMaybeDefined()) }

// Request describes a single allocation.
type Request struct {
	NumBytes  int
	Alignment int // zero means DefaultAlign
	Flags     Flags
}

// EffectiveAlignment returns the request's alignment, substituting
// DefaultAlign for the zero value.
func (r Request) EffectiveAlignment() int {
	if r.Alignment == 0 {
		return int(DefaultAlign)
	}
	return r.Alignment
}

// ReallocateRequest describes a plain (back-only) reallocation.
type ReallocateRequest struct {
	Memory           ByteSpan
	NewSizeBytes     int
	PreferredSizeBytes int // 0 means "no preference"; otherwise must be > NewSizeBytes and growing
	Flags            Flags
}

// IsValid checks the invariants from spec.md §3.2: the request does not mix
// front operations with the plain (back-only) form, NewSizeBytes is
// nonzero, and PreferredSizeBytes is either absent or a strictly larger
// grow hint.
func (r ReallocateRequest) IsValid() bool {
	const forbidden = ShrinkFront | ExpandFront | ExpandBack | ShrinkBack
	if r.Flags&forbidden != 0 {
		return false
	}
	if r.NewSizeBytes == 0 {
		return false
	}
	if r.PreferredSizeBytes == 0 {
		return true
	}
	return r.NewSizeBytes >= len(r.Memory) && r.PreferredSizeBytes > r.NewSizeBytes
}

// ReallocateExtendedRequest describes a reallocation that may grow or
// shrink independently on the front and back of the allocation.
type ReallocateExtendedRequest struct {
	Memory             ByteSpan
	RequiredBytesBack  int
	PreferredBytesBack int
	RequiredBytesFront int
	PreferredBytesFront int
	Flags              Flags
}

// IsValid checks the invariants from spec.md §3.2.
func (r ReallocateExtendedRequest) IsValid() bool {
	changingBack := r.Flags.Has(ExpandBack) || r.Flags.Has(ShrinkBack)
	changingFront := r.Flags.Has(ExpandFront) || r.Flags.Has(ShrinkFront)

	if r.Flags.Has(ExpandBack) == r.Flags.Has(ShrinkBack) && changingBack {
		return false // cannot be both, though both-absent is fine
	}
	if r.Flags.Has(ExpandFront) == r.Flags.Has(ShrinkFront) && changingFront {
		return false
	}
	exactlyOneSide := (r.Flags.Has(ExpandBack) != r.Flags.Has(ShrinkBack)) ||
		(r.Flags.Has(ExpandFront) != r.Flags.Has(ShrinkFront))
	if !exactlyOneSide {
		return false
	}
	if r.Flags.Has(ShrinkBack) && r.PreferredBytesBack != 0 {
		return false
	}
	if r.Flags.Has(ShrinkFront) && r.PreferredBytesFront != 0 {
		return false
	}
	shrinkTotal := 0
	if r.Flags.Has(ShrinkBack) {
		shrinkTotal += r.RequiredBytesBack
	}
	if r.Flags.Has(ShrinkFront) {
		shrinkTotal += r.RequiredBytesFront
	}
	if shrinkTotal >= len(r.Memory) {
		return false
	}
	if changingBack && r.RequiredBytesBack == 0 {
		return false
	}
	if changingFront && r.RequiredBytesFront == 0 {
		return false
	}
	if r.PreferredBytesBack != 0 && r.PreferredBytesBack <= r.RequiredBytesBack {
		return false
	}
	if r.PreferredBytesFront != 0 && r.PreferredBytesFront <= r.RequiredBytesFront {
		return false
	}
	if !changingBack && !changingFront {
		return false
	}
	return true
}

// CalculateNewPreferredSize computes how the allocation would grow/shrink
// if the preferred byte counts were respected exactly. It returns the
// change on the back, the change on the front, and the resulting total
// size.
func (r ReallocateExtendedRequest) CalculateNewPreferredSize() (changedBack, changedFront, newSize int) {
	changedBack = mathutil.Max(r.RequiredBytesBack, r.PreferredBytesBack)
	changedFront = mathutil.Max(r.RequiredBytesFront, r.PreferredBytesFront)

	newSize = len(r.Memory)
	switch {
	case r.Flags.Has(ExpandBack):
		newSize += changedBack
	case r.Flags.Has(ShrinkBack):
		newSize -= changedBack
	}
	switch {
	case r.Flags.Has(ExpandFront):
		newSize += changedFront
	case r.Flags.Has(ShrinkFront):
		newSize -= changedFront
	}
	return changedBack, changedFront, newSize
}

// ReallocationExtended is the result of a successful ReallocateExtended:
// the resulting span, plus how far (in bytes) the payload moved rightward
// inside that span. BytesOffsetFront is nonzero only when the front grew.
type ReallocationExtended struct {
	Memory           ByteSpan
	BytesOffsetFront int
}

// Allocator is the abstract contract every concrete allocator in this
// module implements. Not every method need behave: an allocator without a
// given capability (see Features) returns Unsupported from the operations
// it doesn't support.
type Allocator interface {
	Allocate(req Request) (MaybeDefined, Error)
	Deallocate(b ByteSpan)
	Reallocate(req ReallocateRequest) (MaybeDefined, Error)
	ReallocateExtended(req ReallocateExtendedRequest) (ReallocationExtended, Error)
	Clear()
	Features() FeatureFlags
}

// RoundUp rounds n up to the nearest multiple of m, where m must be a power
// of two. Mirrors the teacher's roundup helper, generalized to ints.
func RoundUp(n, m int) int {
	return (n + m - 1) &^ (m - 1)
}

// ReallocateInPlaceOrElseKeepOldNoCopy is a pure wrapper: it attempts an
// in-place reallocation, and on failure allocates a fresh buffer of the new
// size without copying — the caller performs the move. This exists for
// allocators that can_predictably_realloc_in_place so callers can avoid a
// copy they would otherwise have to undo.
func ReallocateInPlaceOrElseKeepOldNoCopy(a Allocator, req ReallocateRequest) (result MaybeDefined, wasInPlace bool, err Error) {
	inPlaceReq := req
	inPlaceReq.Flags |= InPlaceOrElseFail
	md, e := a.Reallocate(inPlaceReq)
	if e == Okay {
		return md, true, Okay
	}
	if e != CouldntExpandInPlace {
		return MaybeDefined{}, false, e
	}
	md, e = a.Allocate(Request{
		NumBytes:  req.NewSizeBytes,
		Alignment: int(DefaultAlign),
		Flags:     req.Flags | LeaveNonzeroed,
	})
	if e != Okay {
		return MaybeDefined{}, false, e
	}
	return md, false, Okay
}
