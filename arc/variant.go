package arc

// Ownership tags which of the three handle kinds a Variant currently holds.
type Ownership uint8

const (
	OwnershipUniqueRW Ownership = iota
	OwnershipSharedRO
	OwnershipWeak
)

// Variant is a single handle type that can hold any one of UniqueRW,
// ReadOnly, or Weak, chosen at runtime. Every conversion either consumes
// the Variant and returns a plain handle, or consumes it and returns a new
// Variant in a different mode.
type Variant[T any] struct {
	payload *payload[T]
	mode    Ownership
}

// FromUnique consumes u into a Variant tagged OwnershipUniqueRW.
func FromUnique[T any](u *UniqueRW[T]) Variant[T] {
	if u.payload == nil {
		panic("arc: FromUnique of a consumed UniqueRW")
	}
	p := u.payload
	u.payload = nil
	return Variant[T]{payload: p, mode: OwnershipUniqueRW}
}

// FromReadOnly consumes r into a Variant tagged OwnershipSharedRO.
func FromReadOnly[T any](r *ReadOnly[T]) Variant[T] {
	if r.payload == nil {
		panic("arc: FromReadOnly of a consumed ReadOnly")
	}
	p := r.payload
	r.payload = nil
	return Variant[T]{payload: p, mode: OwnershipSharedRO}
}

// FromWeak consumes w into a Variant tagged OwnershipWeak.
func FromWeak[T any](w *Weak[T]) Variant[T] {
	if w.payload == nil {
		panic("arc: FromWeak of a consumed Weak")
	}
	p := w.payload
	w.payload = nil
	return Variant[T]{payload: p, mode: OwnershipWeak}
}

// Valid reports whether v still owns a payload.
func (v *Variant[T]) Valid() bool { return v.payload != nil }

// Mode reports which handle kind v currently holds.
func (v *Variant[T]) Mode() Ownership {
	if v.payload == nil {
		panic("arc: Mode of a consumed Variant")
	}
	return v.mode
}

// SpawnWeak returns a weak handle to the same payload without consuming v.
func (v *Variant[T]) SpawnWeak() Weak[T] {
	if v.payload == nil {
		panic("arc: SpawnWeak of a consumed Variant")
	}
	switch v.mode {
	case OwnershipUniqueRW:
		u := UniqueRW[T]{payload: v.payload}
		out := u.SpawnWeak()
		return out
	case OwnershipSharedRO:
		r := ReadOnly[T]{payload: v.payload}
		out := r.SpawnWeak()
		return out
	case OwnershipWeak:
		w := Weak[T]{payload: v.payload}
		return w.Duplicate()
	default:
		panic("arc: Variant in unknown mode")
	}
}

// TryDuplicate returns a second Variant to the same payload in the same
// mode, without consuming v. Unique handles cannot be duplicated, so the
// unique-rw mode always fails.
func (v *Variant[T]) TryDuplicate() (Variant[T], bool) {
	if v.payload == nil {
		return Variant[T]{}, false
	}
	switch v.mode {
	case OwnershipUniqueRW:
		return Variant[T]{}, false
	case OwnershipSharedRO:
		r := ReadOnly[T]{payload: v.payload}
		dup := r.Duplicate()
		return Variant[T]{payload: dup.payload, mode: OwnershipSharedRO}, true
	case OwnershipWeak:
		w := Weak[T]{payload: v.payload}
		dup := w.Duplicate()
		return Variant[T]{payload: dup.payload, mode: OwnershipWeak}, true
	default:
		panic("arc: Variant in unknown mode")
	}
}

// TryDerefMutable returns a pointer to the value only if v holds unique
// ownership.
func (v *Variant[T]) TryDerefMutable() (*T, bool) {
	if v.payload == nil || v.mode != OwnershipUniqueRW {
		return nil, false
	}
	return &v.payload.object, true
}

// TryDeref returns a pointer to the value if v holds unique or shared
// ownership; weak-mode variants cannot dereference without promotion.
func (v *Variant[T]) TryDeref() (*T, bool) {
	if v.payload == nil {
		return nil, false
	}
	switch v.mode {
	case OwnershipUniqueRW, OwnershipSharedRO:
		return &v.payload.object, true
	default:
		return nil, false
	}
}

// TryIntoReadOnly consumes v if it holds shared-ro ownership and returns
// the contained handle directly.
func (v *Variant[T]) TryIntoReadOnly() (ReadOnly[T], bool) {
	if v.payload == nil || v.mode != OwnershipSharedRO {
		return ReadOnly[T]{}, false
	}
	out := ReadOnly[T]{payload: v.payload}
	v.payload = nil
	return out, true
}

// TryIntoWeak consumes v if it holds weak ownership and returns the
// contained handle directly.
func (v *Variant[T]) TryIntoWeak() (Weak[T], bool) {
	if v.payload == nil || v.mode != OwnershipWeak {
		return Weak[T]{}, false
	}
	out := Weak[T]{payload: v.payload}
	v.payload = nil
	return out, true
}

// TryIntoUnique consumes v if it holds unique ownership and returns the
// contained handle directly.
func (v *Variant[T]) TryIntoUnique() (UniqueRW[T], bool) {
	if v.payload == nil || v.mode != OwnershipUniqueRW {
		return UniqueRW[T]{}, false
	}
	out := UniqueRW[T]{payload: v.payload}
	v.payload = nil
	return out, true
}

// TryConvertIntoReadOnly consumes v in any mode and returns a readonly
// handle, demoting a unique handle or promoting a weak one. It fails only
// when converting from weak: if the value has already been destroyed, v is
// consumed and its weak reference released; if a unique handle is still
// live, v stays valid.
func (v *Variant[T]) TryConvertIntoReadOnly() (ReadOnly[T], bool) {
	if v.payload == nil {
		return ReadOnly[T]{}, false
	}
	switch v.mode {
	case OwnershipUniqueRW:
		u := UniqueRW[T]{payload: v.payload}
		v.payload = nil
		return u.DemoteToReadonly(), true
	case OwnershipSharedRO:
		out := ReadOnly[T]{payload: v.payload}
		v.payload = nil
		return out, true
	case OwnershipWeak:
		w := Weak[T]{payload: v.payload}
		ro, ok := w.TryPromoteToReadonly()
		if !ok {
			// w is still valid only when a live unique handle refused it.
			v.payload = w.payload
			return ReadOnly[T]{}, false
		}
		v.payload = nil
		return ro, true
	default:
		panic("arc: Variant in unknown mode")
	}
}

// TryConvertIntoUnique consumes v in any mode and attempts to produce a
// unique handle, which only succeeds if v was already unique or was the
// sole surviving reference in its mode. On failure from shared-ro, v is
// fully consumed (the reference was dropped in the attempt). On failure
// from weak, v is left holding a (possibly different) valid weak handle to
// the same payload, unless the value had already been destroyed, in which
// case v is consumed and its weak reference released.
func (v *Variant[T]) TryConvertIntoUnique() (UniqueRW[T], bool) {
	if v.payload == nil {
		return UniqueRW[T]{}, false
	}
	switch v.mode {
	case OwnershipUniqueRW:
		out := UniqueRW[T]{payload: v.payload}
		v.payload = nil
		return out, true
	case OwnershipSharedRO:
		r := ReadOnly[T]{payload: v.payload}
		v.payload = nil
		unique, ok := r.TryPromoteToUnique()
		if !ok {
			r.Destroy()
		}
		return unique, ok
	case OwnershipWeak:
		w := Weak[T]{payload: v.payload}
		v.payload = nil
		ro, ok := w.TryPromoteToReadonly()
		if !ok {
			// w is still valid only when a live unique handle refused it.
			v.payload = w.payload
			return UniqueRW[T]{}, false
		}
		unique, ok := ro.TryPromoteToUnique()
		if !ok {
			// Refcount allowed readonly but not unique promotion: fall back
			// to holding a weak reference again, mirroring the original's
			// demote-back-to-weak recovery path.
			v.payload = ro.payload
			weak := ro.DemoteToWeak()
			v.payload = weak.payload
			v.mode = OwnershipWeak
			return UniqueRW[T]{}, false
		}
		return unique, true
	default:
		panic("arc: Variant in unknown mode")
	}
}

// Destroy releases v's reference, routing through the destructor of
// whichever handle kind it currently holds. Safe to call on an
// already-consumed Variant.
func (v *Variant[T]) Destroy() {
	if v.payload == nil {
		return
	}
	switch v.mode {
	case OwnershipUniqueRW:
		u := UniqueRW[T]{payload: v.payload}
		u.Destroy()
	case OwnershipSharedRO:
		r := ReadOnly[T]{payload: v.payload}
		r.Destroy()
	case OwnershipWeak:
		w := Weak[T]{payload: v.payload}
		w.Destroy()
	}
	v.payload = nil
}
