// Package arc implements atomically refcounted smart pointers backed by an
// explicit allocator: a unique read/write handle, a shared read-only
// handle, a weak handle that tracks only the backing memory, and a
// runtime-tagged variant over all three.
//
// Grounded on
// _examples/original_source/include/okay/smart_pointers/arc.h. The payload
// packs a strong count, a weak count, the owning allocator, and the value
// into one allocation; bit 63 of the strong count doubles as a spinlock
// guarding any transition of the low 63 bits.
//
// T must not itself hold Go pointers the garbage collector needs to trace:
// the payload lives in memory obtained from an arbitrary alloc.Allocator,
// which may be backed by mmap or malloc rather than the Go heap.
package arc

import (
	"sync/atomic"
	"unsafe"

	"github.com/the-argus/okaylib-sub000/alloc"
)

const lockBit uint64 = 1 << 63

type payload[T any] struct {
	strong    uint64
	weak      uint64
	allocator alloc.Allocator
	object    T
}

func payloadBytes[T any](p *payload[T]) alloc.ByteSpan {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), int(unsafe.Sizeof(*p)))
}

// destructible lets a payload type opt into an explicit teardown hook,
// standing in for a C++ destructor: Go has none, so the handle that
// observes the last strong reference calls Destruct itself before the
// value is zeroed.
type destructible interface {
	Destruct()
}

func runDestructor[T any](object *T) {
	if d, ok := any(object).(destructible); ok {
		d.Destruct()
	}
}

func fetchOr(addr *uint64, bit uint64) uint64 {
	for {
		old := atomic.LoadUint64(addr)
		if atomic.CompareAndSwapUint64(addr, old, old|bit) {
			return old
		}
	}
}

func fetchAnd(addr *uint64, mask uint64) uint64 {
	for {
		old := atomic.LoadUint64(addr)
		if atomic.CompareAndSwapUint64(addr, old, old&mask) {
			return old
		}
	}
}

// acquireLock spins until it sets the lock bit itself, having observed it
// clear, returning the count that was present beforehand.
func acquireLock(addr *uint64) uint64 {
	for {
		old := fetchOr(addr, lockBit)
		if old&lockBit == 0 {
			return old
		}
	}
}

// acquireLockOrDetectUnique is acquireLock, but bails out immediately if it
// observes the payload is permanently locked by a live unique handle
// (strong == lockBit exactly), rather than spinning forever against it.
func acquireLockOrDetectUnique(addr *uint64) (old uint64, isUnique bool) {
	for {
		old = fetchOr(addr, lockBit)
		if old&lockBit == 0 {
			return old, false
		}
		if old == lockBit {
			return 0, true
		}
	}
}

// UniqueRW is an exclusively owned, mutable reference to a T.
type UniqueRW[T any] struct {
	payload *payload[T]
}

// New allocates a payload from backing and constructs a unique handle
// around value.
func New[T any](backing alloc.Allocator, value T) (UniqueRW[T], alloc.Error) {
	var zero payload[T]
	md, err := backing.Allocate(alloc.Request{
		NumBytes:  int(unsafe.Sizeof(zero)),
		Alignment: int(unsafe.Alignof(zero)),
		Flags:     alloc.LeaveNonzeroed,
	})
	if err != alloc.Okay {
		return UniqueRW[T]{}, err
	}
	p := (*payload[T])(unsafe.Pointer(&md.DataMaybeDefined()[0]))
	p.strong = lockBit
	p.weak = 1
	p.allocator = backing
	p.object = value
	return UniqueRW[T]{payload: p}, alloc.Okay
}

// IntoArc wraps an existing value into a unique arc, backed by backing.
func IntoArc[T any](item T, backing alloc.Allocator) (UniqueRW[T], alloc.Error) {
	return New(backing, item)
}

// Valid reports whether u still owns a payload, i.e. has not already been
// consumed by Destroy or DemoteToReadonly.
func (u *UniqueRW[T]) Valid() bool { return u.payload != nil }

// Deref returns a pointer to the owned value.
func (u *UniqueRW[T]) Deref() *T {
	if u.payload == nil {
		panic("arc: Deref of a consumed UniqueRW")
	}
	return &u.payload.object
}

// DemoteToReadonly consumes u and returns a shared read-only handle to the
// same payload, releasing the unique lock bit and setting the strong count
// to one live reference.
func (u *UniqueRW[T]) DemoteToReadonly() ReadOnly[T] {
	if u.payload == nil {
		panic("arc: DemoteToReadonly of a consumed UniqueRW")
	}
	p := u.payload
	atomic.StoreUint64(&p.strong, 1)
	u.payload = nil
	return ReadOnly[T]{payload: p}
}

// SpawnWeak returns a new weak handle to the same payload without
// consuming u.
func (u *UniqueRW[T]) SpawnWeak() Weak[T] {
	if u.payload == nil {
		panic("arc: SpawnWeak of a consumed UniqueRW")
	}
	atomic.AddUint64(&u.payload.weak, 1)
	return Weak[T]{payload: u.payload}
}

// Destroy destructs the owned value and, if no weak handles remain,
// returns the payload's memory to its allocator. Safe to call on an
// already-consumed handle.
func (u *UniqueRW[T]) Destroy() {
	if u.payload == nil {
		return
	}
	p := u.payload
	runDestructor(&p.object)
	var zero T
	p.object = zero
	before := fetchAnd(&p.strong, ^lockBit)
	if before != lockBit {
		panic("arc: UniqueRW destroyed with a corrupted strong refcount")
	}
	if atomic.AddUint64(&p.weak, ^uint64(0)) == 0 {
		p.allocator.Deallocate(payloadBytes(p))
	}
	u.payload = nil
}

// ReadOnly is a shared, immutable reference to a T.
type ReadOnly[T any] struct {
	payload *payload[T]
}

// Valid reports whether r still owns a payload.
func (r *ReadOnly[T]) Valid() bool { return r.payload != nil }

// Deref returns a pointer to the shared value.
func (r *ReadOnly[T]) Deref() *T {
	if r.payload == nil {
		panic("arc: Deref of a consumed ReadOnly")
	}
	return &r.payload.object
}

// Duplicate returns another ReadOnly handle to the same payload, without
// consuming r.
func (r *ReadOnly[T]) Duplicate() ReadOnly[T] {
	if r.payload == nil {
		panic("arc: Duplicate of a consumed ReadOnly")
	}
	acquireLock(&r.payload.strong)
	atomic.AddUint64(&r.payload.strong, 1)
	fetchAnd(&r.payload.strong, ^lockBit)
	return ReadOnly[T]{payload: r.payload}
}

// TryPromoteToUnique consumes r and, if it is the sole readonly reference,
// returns an exclusive handle. Otherwise r remains valid and the second
// return value is false.
func (r *ReadOnly[T]) TryPromoteToUnique() (UniqueRW[T], bool) {
	if r.payload == nil {
		panic("arc: TryPromoteToUnique of a consumed ReadOnly")
	}
	p := r.payload
	old := acquireLock(&p.strong)
	if old == 1 {
		atomic.StoreUint64(&p.strong, lockBit)
		r.payload = nil
		return UniqueRW[T]{payload: p}, true
	}
	fetchAnd(&p.strong, ^lockBit)
	return UniqueRW[T]{}, false
}

// DemoteToWeak consumes r and returns a weak handle to the same payload.
func (r *ReadOnly[T]) DemoteToWeak() Weak[T] {
	if r.payload == nil {
		panic("arc: DemoteToWeak of a consumed ReadOnly")
	}
	p := r.payload
	atomic.AddUint64(&p.weak, 1)
	r.Destroy()
	return Weak[T]{payload: p}
}

// SpawnWeak returns a new weak handle to the same payload without
// consuming r.
func (r *ReadOnly[T]) SpawnWeak() Weak[T] {
	if r.payload == nil {
		panic("arc: SpawnWeak of a consumed ReadOnly")
	}
	atomic.AddUint64(&r.payload.weak, 1)
	return Weak[T]{payload: r.payload}
}

// Destroy decrements the strong count, destructing and possibly freeing
// the payload if this was the last readonly reference. Safe to call on an
// already-consumed handle.
func (r *ReadOnly[T]) Destroy() {
	if r.payload == nil {
		return
	}
	p := r.payload
	old := acquireLock(&p.strong)
	if old != 1 {
		atomic.StoreUint64(&p.strong, old-1)
		r.payload = nil
		return
	}

	runDestructor(&p.object)
	var zero T
	p.object = zero
	atomic.StoreUint64(&p.strong, 0)
	if atomic.AddUint64(&p.weak, ^uint64(0)) == 0 {
		p.allocator.Deallocate(payloadBytes(p))
	}
	r.payload = nil
}

// Weak tracks a payload's backing memory without keeping its value alive.
type Weak[T any] struct {
	payload *payload[T]
}

// Valid reports whether w still owns a payload.
func (w *Weak[T]) Valid() bool { return w.payload != nil }

// Duplicate returns another weak handle to the same payload.
func (w *Weak[T]) Duplicate() Weak[T] {
	if w.payload != nil {
		atomic.AddUint64(&w.payload.weak, 1)
	}
	return Weak[T]{payload: w.payload}
}

// TryPromoteToReadonly consumes w and, if the value is still alive,
// returns a readonly handle to it. Otherwise w remains valid (if the
// object is live) or is invalidated (if it was not) and the second return
// value is false.
func (w *Weak[T]) TryPromoteToReadonly() (ReadOnly[T], bool) {
	if w.payload == nil {
		return ReadOnly[T]{}, false
	}
	p := w.payload
	old, isUnique := acquireLockOrDetectUnique(&p.strong)
	if isUnique {
		return ReadOnly[T]{}, false
	}
	if old == 0 {
		atomic.StoreUint64(&p.strong, old)
		w.payload = nil
		// w is invalidated here rather than left for a later Destroy call,
		// so its weak reference must be released now.
		if atomic.AddUint64(&p.weak, ^uint64(0)) == 0 {
			p.allocator.Deallocate(payloadBytes(p))
		}
		return ReadOnly[T]{}, false
	}
	atomic.StoreUint64(&p.strong, old+1)
	// the strong count now keeps the payload alive, so w's own weak
	// reference is released as w is consumed.
	atomic.AddUint64(&p.weak, ^uint64(0))
	w.payload = nil
	return ReadOnly[T]{payload: p}, true
}

// Destroy decrements the weak count, freeing the payload's memory if this
// was the last reference of any kind. Safe to call on an already-consumed
// handle.
func (w *Weak[T]) Destroy() {
	if w.payload == nil {
		return
	}
	p := w.payload
	if atomic.AddUint64(&p.weak, ^uint64(0)) == 0 {
		p.allocator.Deallocate(payloadBytes(p))
	}
	w.payload = nil
}
