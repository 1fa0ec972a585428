// Package scheduler runs a fixed table of tasks cooperatively, each at its own rate, off a
// millisecond clock. A task runs to completion before the next one is considered.
package scheduler

import (
	"errors"
	"fmt"
)

// TickHz is the rate of the clock driving Run.
const TickHz = 1000

var ErrInvalidRate = errors.New("scheduler: task rate must be positive")

// Task is one table entry. Run receives the clock value read for this entry and must not block.
type Task struct {
	Name   string
	RateHz uint16
	Run    func(now uint32)
}

type entry struct {
	task     Task
	interval uint32
	lastRun  uint32
	runs     uint64
}

// TaskStats describes one task for telemetry.
type TaskStats struct {
	Name       string
	RateHz     uint16
	IntervalMS uint32
	Runs       uint64
	LastRun    uint32
}

// Scheduler is driven by a single goroutine calling Run once per clock tick.
type Scheduler struct {
	clock Clock
	tasks []entry
}

// New builds the task table. Intervals are round-down(1000/rate) with a floor of one tick.
func New(clock Clock, tasks ...Task) (*Scheduler, error) {
	s := &Scheduler{clock: clock, tasks: make([]entry, 0, len(tasks))}
	for _, t := range tasks {
		if t.RateHz == 0 {
			return nil, fmt.Errorf("task %q: %w", t.Name, ErrInvalidRate)
		}
		if t.Run == nil {
			return nil, fmt.Errorf("task %q: nil run function", t.Name)
		}
		s.tasks = append(s.tasks, entry{task: t, interval: Interval(t.RateHz)})
	}
	return s, nil
}

// Interval returns the tick interval for rateHz.
func Interval(rateHz uint16) uint32 {
	if rateHz == 0 {
		return 0
	}
	iv := uint32(TickHz / int(rateHz))
	if iv < 1 {
		iv = 1
	}
	return iv
}

// Run makes one pass over the table in order and runs every task that is due. The clock is read
// per entry and the comparison is modular so the counter may wrap. It returns the number of
// tasks run.
func (s *Scheduler) Run() int {
	ran := 0
	for i := range s.tasks {
		e := &s.tasks[i]
		now := s.clock.Millis()
		if now-e.lastRun >= e.interval {
			e.lastRun = now
			e.runs++
			e.task.Run(now)
			ran++
		}
	}
	return ran
}

// Stats returns a copy of the per-task counters in table order.
func (s *Scheduler) Stats() []TaskStats {
	out := make([]TaskStats, len(s.tasks))
	for i, e := range s.tasks {
		out[i] = TaskStats{
			Name:       e.task.Name,
			RateHz:     e.task.RateHz,
			IntervalMS: e.interval,
			Runs:       e.runs,
			LastRun:    e.lastRun,
		}
	}
	return out
}

// Len returns the number of tasks in the table.
func (s *Scheduler) Len() int { return len(s.tasks) }
