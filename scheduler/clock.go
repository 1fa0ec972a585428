package scheduler

import "sync/atomic"

// Clock is a free-running millisecond counter that wraps at 2^32.
type Clock interface {
	Millis() uint32
}

// TickClock is advanced by a 1 ms time base, such as the runner's ticker. It may be read from any
// goroutine.
type TickClock struct {
	ticks atomic.Uint32
}

// Advance adds one millisecond and returns the new value.
func (c *TickClock) Advance() uint32 { return c.ticks.Add(1) }

func (c *TickClock) Millis() uint32 { return c.ticks.Load() }

// ManualClock is set explicitly by tests and simulations.
type ManualClock struct {
	now atomic.Uint32
}

func NewManualClock(start uint32) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

func (c *ManualClock) Millis() uint32 { return c.now.Load() }

func (c *ManualClock) Set(ms uint32) { c.now.Store(ms) }

// Add moves the clock forward by ms and returns the new value.
func (c *ManualClock) Add(ms uint32) uint32 { return c.now.Add(ms) }
