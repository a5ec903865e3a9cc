// Package arena implements a bump allocator over a buffer, optionally
// backed by another allocator for growth, with scoped rewind and
// destructor registration.
//
// Grounded on _examples/original_source/include/okay/allocators/arena.h
// (bump/clear) and destruction_callbacks.h (the scope/destructor-list
// mechanism), generalized from the teacher's page/free-list bump logic in
// memory.go.
package arena

import (
	"unsafe"

	"github.com/the-argus/okaylib-sub000/alloc"
)

// destructorNodeCost is the notional number of bytes charged against the
// arena's bump pointer for each registered destructor, standing in for the
// sizeof(destruction_callback_entry_node_t) the C++ original bump-allocates
// for the same purpose. The Go destructorNode itself is a regular heap
// object; this charge only reproduces the OOM-on-exhaustion behavior.
const destructorNodeCost = 32

const typeFeatures = alloc.CanOnlyAlloc | alloc.CanClear

// destructorNode is a node of the arena's own destructor linked list. Each
// node's space (destructorNodeCost bytes) is charged against the arena it
// belongs to, so registering a destructor can itself fail with OOM.
type destructorNode struct {
	context  interface{}
	callback func(interface{})
	previous *destructorNode
}

// Scope is an opaque save point captured by Begin. Closing it (End) walks
// the destructor list back to the point it was captured, invoking each
// callback, then restores the bump pointer. Scopes must close in LIFO
// order, matching the teacher's stack discipline for block frees.
type Scope struct {
	availableAtBegin alloc.ByteSpan
	headAtBegin      *destructorNode
}

// Allocator is a bump-pointer allocator over owned memory, optionally
// backed by another allocator for growth when the owned buffer runs out.
type Allocator struct {
	memory          alloc.ByteSpan
	available       alloc.ByteSpan
	destructorsHead *destructorNode
	backing         alloc.Allocator // nil means "static buffer, no growth"
}

var _ alloc.Allocator = (*Allocator)(nil)

// NewStatic builds an arena over a caller-owned buffer. The arena never
// frees buf and never grows.
func NewStatic(buf alloc.ByteSpan) *Allocator {
	return &Allocator{memory: buf, available: buf}
}

// NewOwning builds an arena over an initial buffer obtained from backing.
// When the arena is exhausted it asks backing to grow the buffer in place;
// when the arena itself is no longer needed the caller should call Destroy
// to return the buffer to backing.
func NewOwning(initial alloc.ByteSpan, backing alloc.Allocator) *Allocator {
	return &Allocator{memory: initial, available: initial, backing: backing}
}

// Destroy releases the owning arena's buffer back to its backing allocator.
// It is a no-op for arenas built with NewStatic.
func (a *Allocator) Destroy() {
	if a.backing != nil {
		a.backing.Deallocate(a.memory)
	}
}

func (a *Allocator) Features() alloc.FeatureFlags { return typeFeatures }

func (a *Allocator) Allocate(req alloc.Request) (alloc.MaybeDefined, alloc.Error) {
	alignment := req.EffectiveAlignment()
	start := uintptrOf(a.available)
	aligned := alloc.RoundUp(int(start), alignment)
	skip := aligned - int(start)

	if skip+req.NumBytes > len(a.available) {
		if a.backing == nil {
			return alloc.MaybeDefined{}, alloc.OOM
		}
		if !a.grow(skip + req.NumBytes) {
			return alloc.MaybeDefined{}, alloc.OOM
		}
		return a.Allocate(req)
	}

	out := a.available[skip : skip+req.NumBytes]
	a.available = a.available[skip+req.NumBytes:]

	if req.Flags.Has(alloc.LeaveNonzeroed) {
		return alloc.Undefined(alloc.UndefinedSpan(out)), alloc.Okay
	}
	for i := range out {
		out[i] = 0
	}
	return alloc.Defined(alloc.ByteSpan(out)), alloc.Okay
}

// grow asks the backing allocator to extend the arena's buffer by at least
// needed bytes, in place. Returns false if growth failed.
func (a *Allocator) grow(needed int) bool {
	newSize := len(a.memory) + needed
	md, err := a.backing.Reallocate(alloc.ReallocateRequest{
		Memory:             a.memory,
		NewSizeBytes:       newSize,
		PreferredSizeBytes: newSize * 2,
		Flags:              alloc.InPlaceOrElseFail | alloc.LeaveNonzeroed,
	})
	if err != alloc.Okay {
		return false
	}
	grown := md.DataMaybeDefined()
	extra := grown[len(a.memory):]
	a.memory = alloc.ByteSpan(grown)
	a.available = alloc.ByteSpan(extra)
	return true
}

func (a *Allocator) Deallocate(alloc.ByteSpan) {}

func (a *Allocator) Reallocate(alloc.ReallocateRequest) (alloc.MaybeDefined, alloc.Error) {
	return alloc.MaybeDefined{}, alloc.Unsupported
}

func (a *Allocator) ReallocateExtended(alloc.ReallocateExtendedRequest) (alloc.ReallocationExtended, alloc.Error) {
	return alloc.ReallocationExtended{}, alloc.Unsupported
}

// Clear resets the bump pointer to the start of the owned buffer, without
// invoking any registered destructors. Any open scope becomes invalid.
func (a *Allocator) Clear() {
	a.available = a.memory
	a.destructorsHead = nil
}

// Begin captures the current bump pointer and destructor list head so a
// later End can rewind to this point.
func (a *Allocator) Begin() Scope {
	return Scope{availableAtBegin: a.available, headAtBegin: a.destructorsHead}
}

// End walks the destructor list back to scope's save point, invoking each
// registered callback in LIFO order, then restores the bump pointer and
// destructor list head. Scopes must be closed in LIFO order; closing an
// outer scope while an inner one is still open leaves the inner scope's
// save point dangling.
func (a *Allocator) End(scope Scope) {
	iter := a.destructorsHead
	for iter != scope.headAtBegin {
		iter.callback(iter.context)
		iter = iter.previous
	}
	a.destructorsHead = scope.headAtBegin
	a.available = scope.availableAtBegin
}

// RegisterDestructor appends a destructor callback to the arena's list.
// The node's space is bump-allocated from the arena, so registration can
// fail with OOM if the arena (and its backing allocator, if any) is
// exhausted.
func (a *Allocator) RegisterDestructor(context interface{}, callback func(interface{})) alloc.Error {
	if _, err := a.Allocate(alloc.Request{
		NumBytes: destructorNodeCost,
		Flags:    alloc.LeaveNonzeroed,
	}); err != alloc.Okay {
		return err
	}
	node := &destructorNode{context: context, callback: callback, previous: a.destructorsHead}
	a.destructorsHead = node
	return alloc.Okay
}

func uintptrOf(b alloc.ByteSpan) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
