// Package gas implements the fuel counter shared by syscalls and WASM code.
package gas

// Meter is a gas counter. Engines expose their native fuel store as a Meter.
type Meter interface {
	Available() uint64
	SetAvailable(uint64)
}

// Consume draws n from m. With enough gas it subtracts and reports true;
// otherwise the meter saturates at zero and Consume reports false.
func Consume(m Meter, n uint64) bool {
	cur := m.Available()
	if cur >= n {
		m.SetAvailable(cur - n)
		return true
	}
	m.SetAvailable(0)
	return false
}

// Counter is a plain in-memory Meter.
type Counter struct {
	n uint64
}

// NewCounter returns a counter holding n.
func NewCounter(n uint64) *Counter {
	return &Counter{n: n}
}

func (c *Counter) Available() uint64 { return c.n }

func (c *Counter) SetAvailable(n uint64) { c.n = n }

// Limit runs a budgeted call on m. It installs limit, runs fn, reports how
// much of limit was consumed, and restores the gas that was available before.
func Limit(m Meter, limit uint64, fn func()) (consumed uint64) {
	saved := m.Available()
	m.SetAvailable(limit)
	defer m.SetAvailable(saved)

	fn()

	remaining := m.Available()
	if remaining > limit {
		// A syscall may raise the counter; never report negative use.
		return 0
	}
	return limit - remaining
}

// Track runs fn on the current budget and reports the gas it consumed.
func Track(m Meter, fn func()) (consumed uint64) {
	before := m.Available()
	fn()
	after := m.Available()
	if after > before {
		return 0
	}
	return before - after
}
