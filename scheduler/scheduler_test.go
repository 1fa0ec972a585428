package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval(t *testing.T) {
	assert.Equal(t, uint32(1), Interval(1000))
	assert.Equal(t, uint32(2), Interval(500))
	assert.Equal(t, uint32(3), Interval(300))
	assert.Equal(t, uint32(10), Interval(100))
	assert.Equal(t, uint32(1000), Interval(1))
	assert.Equal(t, uint32(1), Interval(2000))
}

func TestNewRejectsBadTasks(t *testing.T) {
	clk := NewManualClock(0)
	_, err := New(clk, Task{Name: "zero", RateHz: 0, Run: func(uint32) {}})
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, err = New(clk, Task{Name: "nil", RateHz: 10})
	assert.Error(t, err)
}

func TestRunRatesOverOneSecond(t *testing.T) {
	clk := NewManualClock(0)
	counts := map[string]int{}
	mk := func(name string, hz uint16) Task {
		return Task{Name: name, RateHz: hz, Run: func(uint32) { counts[name]++ }}
	}
	s, err := New(clk, mk("1k", 1000), mk("500", 500), mk("100", 100), mk("10", 10), mk("1", 1), mk("fast", 5000))
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		clk.Add(1)
		s.Run()
	}
	assert.Equal(t, 1000, counts["1k"])
	assert.Equal(t, 500, counts["500"])
	assert.Equal(t, 100, counts["100"])
	assert.Equal(t, 10, counts["10"])
	assert.Equal(t, 1, counts["1"])
	assert.Equal(t, 1000, counts["fast"])

	stats := s.Stats()
	require.Len(t, stats, 6)
	assert.Equal(t, "100", stats[2].Name)
	assert.Equal(t, uint64(100), stats[2].Runs)
	assert.Equal(t, uint32(10), stats[2].IntervalMS)
	assert.Equal(t, uint32(1000), stats[2].LastRun)
}

func TestRunInTableOrder(t *testing.T) {
	clk := NewManualClock(0)
	var order []string
	s, err := New(clk,
		Task{Name: "a", RateHz: 100, Run: func(uint32) { order = append(order, "a") }},
		Task{Name: "b", RateHz: 100, Run: func(uint32) { order = append(order, "b") }},
		Task{Name: "c", RateHz: 100, Run: func(uint32) { order = append(order, "c") }},
	)
	require.NoError(t, err)

	clk.Set(10)
	assert.Equal(t, 3, s.Run())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, s.Run())
}

func TestClockReadPerEntry(t *testing.T) {
	clk := NewManualClock(0)
	var seen []uint32
	s, err := New(clk,
		// a slow first task moves time forward before the second is considered
		Task{Name: "slow", RateHz: 100, Run: func(now uint32) { seen = append(seen, now); clk.Add(3) }},
		Task{Name: "next", RateHz: 100, Run: func(now uint32) { seen = append(seen, now) }},
	)
	require.NoError(t, err)

	clk.Set(10)
	s.Run()
	assert.Equal(t, []uint32{10, 13}, seen)
}

func TestLateTaskDoesNotCatchUp(t *testing.T) {
	clk := NewManualClock(0)
	runs := 0
	s, err := New(clk, Task{Name: "t", RateHz: 100, Run: func(uint32) { runs++ }})
	require.NoError(t, err)

	clk.Set(55)
	s.Run()
	s.Run()
	assert.Equal(t, 1, runs)

	clk.Set(64)
	s.Run()
	assert.Equal(t, 1, runs)
	clk.Set(65)
	s.Run()
	assert.Equal(t, 2, runs)
}

func TestRunAcrossWraparound(t *testing.T) {
	clk := NewManualClock(0xFFFFFFF0)
	var at []uint32
	s, err := New(clk, Task{Name: "t", RateHz: 100, Run: func(now uint32) { at = append(at, now) }})
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		s.Run()
		clk.Add(1)
	}
	require.Len(t, at, 4)
	assert.Equal(t, uint32(0xFFFFFFF0), at[0])
	assert.Equal(t, uint32(0xFFFFFFFA), at[1])
	assert.Equal(t, uint32(4), at[2])
	assert.Equal(t, uint32(14), at[3])
}

func TestTickClock(t *testing.T) {
	var c TickClock
	assert.Equal(t, uint32(0), c.Millis())
	assert.Equal(t, uint32(1), c.Advance())
	c.Advance()
	assert.Equal(t, uint32(2), c.Millis())
}
