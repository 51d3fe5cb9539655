package resource

import "errors"

// Handle is an opaque reference into an Arena. The low 32 bits index a
// slot and the high 32 bits carry the slot generation, so a freed handle
// never aliases a later one. Handle 0 is reserved and always invalid.
type Handle uint64

func makeHandle(slot, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot+1))
}

func (h Handle) slot() (uint32, bool) {
	idx := uint32(h)
	if idx == 0 {
		return 0, false
	}
	return idx - 1, true
}

func (h Handle) gen() uint32 { return uint32(h >> 32) }

// Type tags what a handle refers to.
type Type uint32

var (
	ErrClosed            = errors.New("resource arena closed")
	ErrOutstandingBorrow = errors.New("cannot free resource with outstanding borrows")
	ErrInvalidHandle     = errors.New("invalid handle")
)

// EventType identifies a lifecycle event.
type EventType uint8

const (
	EventCreated EventType = iota
	EventFreed
)

// Event is a resource lifecycle notification.
type Event struct {
	Value  any
	Handle Handle
	Type   Type
	Event  EventType
}

// Observer receives lifecycle events. Called with no arena lock held.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is optionally implemented by values that need cleanup when the
// arena is closed with them still live.
type Dropper interface {
	Drop()
}
