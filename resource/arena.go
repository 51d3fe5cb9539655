package resource

import (
	"sync"
)

type entry struct {
	value   any
	typ     Type
	gen     uint32
	borrows uint32
	valid   bool
}

// Arena owns values behind opaque handles. Values are moved in by Insert
// and out by Remove; a handle is valid exactly between the two.
// Thread-safe.
type Arena struct {
	entries   []entry
	freeList  []uint32
	observers []Observer
	mu        sync.RWMutex
	closed    bool
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		entries:  make([]entry, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Insert stores value and returns its handle.
func (a *Arena) Insert(typ Type, value any) (Handle, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return 0, ErrClosed
	}

	var slot uint32
	if n := len(a.freeList); n > 0 {
		slot = a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
	} else {
		a.entries = append(a.entries, entry{})
		slot = uint32(len(a.entries) - 1)
	}
	e := &a.entries[slot]
	e.value = value
	e.typ = typ
	e.borrows = 0
	e.valid = true
	h := makeHandle(slot, e.gen)
	a.mu.Unlock()

	a.notify(Event{Event: EventCreated, Handle: h, Type: typ, Value: value})
	return h, nil
}

// lookup returns the live entry for h. Caller holds a.mu.
func (a *Arena) lookup(h Handle) *entry {
	slot, ok := h.slot()
	if !ok || int(slot) >= len(a.entries) {
		return nil
	}
	e := &a.entries[slot]
	if !e.valid || e.gen != h.gen() {
		return nil
	}
	return e
}

// Get returns the value behind h.
func (a *Arena) Get(h Handle) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e := a.lookup(h)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// GetTyped returns the value behind h only if it has type typ.
func (a *Arena) GetTyped(h Handle, typ Type) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e := a.lookup(h)
	if e == nil || e.typ != typ {
		return nil, false
	}
	return e.value, true
}

// TypeOf returns the type of a live handle.
func (a *Arena) TypeOf(h Handle) (Type, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e := a.lookup(h)
	if e == nil {
		return 0, false
	}
	return e.typ, true
}

// Remove frees h if it has type typ and no outstanding borrows, and hands
// the value back to the caller. The handle is dead afterwards.
func (a *Arena) Remove(h Handle, typ Type) (any, error) {
	a.mu.Lock()
	e := a.lookup(h)
	if e == nil || e.typ != typ {
		a.mu.Unlock()
		return nil, ErrInvalidHandle
	}
	if e.borrows > 0 {
		a.mu.Unlock()
		return nil, ErrOutstandingBorrow
	}
	value := e.value
	e.value = nil
	e.valid = false
	e.gen++
	slot, _ := h.slot()
	a.freeList = append(a.freeList, slot)
	a.mu.Unlock()

	a.notify(Event{Event: EventFreed, Handle: h, Type: typ, Value: value})
	return value, nil
}

// Borrow pins h against Remove until ReturnBorrow and returns its value.
func (a *Arena) Borrow(h Handle, typ Type) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.lookup(h)
	if e == nil || e.typ != typ {
		return nil, false
	}
	e.borrows++
	return e.value, true
}

// ReturnBorrow releases one borrow of h.
func (a *Arena) ReturnBorrow(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.lookup(h)
	if e == nil || e.borrows == 0 {
		return false
	}
	e.borrows--
	return true
}

// Len returns the number of live handles.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := 0
	for i := range a.entries {
		if a.entries[i].valid {
			n++
		}
	}
	return n
}

// Each visits live handles in slot order until fn returns false.
func (a *Arena) Each(fn func(Handle, Type, any) bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for i := range a.entries {
		e := &a.entries[i]
		if e.valid && !fn(makeHandle(uint32(i), e.gen), e.typ, e.value) {
			return
		}
	}
}

// Subscribe adds a lifecycle observer.
func (a *Arena) Subscribe(o Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

// Close drops every live value and rejects further inserts.
func (a *Arena) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	var drop []Dropper
	for i := range a.entries {
		e := &a.entries[i]
		if e.valid {
			if d, ok := e.value.(Dropper); ok {
				drop = append(drop, d)
			}
		}
	}
	a.entries = nil
	a.freeList = nil
	a.mu.Unlock()

	for _, d := range drop {
		d.Drop()
	}
	return nil
}

func (a *Arena) notify(e Event) {
	a.mu.RLock()
	obs := a.observers
	a.mu.RUnlock()
	for _, o := range obs {
		o.OnResourceEvent(e)
	}
}
