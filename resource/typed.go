package resource

// Typed is a view of an Arena restricted to one Type.
type Typed[T any] struct {
	arena *Arena
	typ   Type
}

// NewTyped returns a view of a holding values of type T tagged typ.
func NewTyped[T any](a *Arena, typ Type) Typed[T] {
	return Typed[T]{arena: a, typ: typ}
}

// Insert stores v.
func (t Typed[T]) Insert(v T) (Handle, error) {
	return t.arena.Insert(t.typ, v)
}

// Get returns the value behind h.
func (t Typed[T]) Get(h Handle) (T, bool) {
	v, ok := t.arena.GetTyped(h, t.typ)
	if !ok {
		var zero T
		return zero, false
	}
	out, ok := v.(T)
	return out, ok
}

// Borrow pins h; pair with Release.
func (t Typed[T]) Borrow(h Handle) (T, bool) {
	v, ok := t.arena.Borrow(h, t.typ)
	if !ok {
		var zero T
		return zero, false
	}
	out, ok := v.(T)
	if !ok {
		t.arena.ReturnBorrow(h)
	}
	return out, ok
}

// Release returns a borrow taken with Borrow.
func (t Typed[T]) Release(h Handle) {
	t.arena.ReturnBorrow(h)
}

// Remove frees h and returns its value.
func (t Typed[T]) Remove(h Handle) (T, error) {
	v, err := t.arena.Remove(h, t.typ)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Each visits live values of this type.
func (t Typed[T]) Each(fn func(Handle, T) bool) {
	t.arena.Each(func(h Handle, typ Type, v any) bool {
		if typ != t.typ {
			return true
		}
		out, ok := v.(T)
		if !ok {
			return true
		}
		return fn(h, out)
	})
}
