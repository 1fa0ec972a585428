// Package sensors holds the hand-off between asynchronous sensor producers and the control
// task, and the conditioning applied to orientation readings.
package sensors

import "sync"

// Mailbox is a single-slot, latest-value-wins buffer. A producer that stores before the
// consumer took the previous value overwrites it; nothing is queued.
type Mailbox[T any] struct {
	mu          sync.Mutex
	v           T
	stamp       uint32
	has         bool
	fresh       bool
	overwritten uint64
}

// Store publishes v received at tick now.
func (m *Mailbox[T]) Store(v T, now uint32) {
	m.mu.Lock()
	if m.fresh {
		m.overwritten++
	}
	m.v = v
	m.stamp = now
	m.has = true
	m.fresh = true
	m.mu.Unlock()
}

// Take returns the latest value, its timestamp and whether it arrived since the previous Take.
func (m *Mailbox[T]) Take() (v T, stamp uint32, fresh bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh = m.fresh
	m.fresh = false
	return m.v, m.stamp, fresh
}

// Peek returns the latest value and its timestamp without consuming it. ok is false until the
// first Store.
func (m *Mailbox[T]) Peek() (v T, stamp uint32, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v, m.stamp, m.has
}

// Overwritten counts values replaced before they were taken.
func (m *Mailbox[T]) Overwritten() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overwritten
}
