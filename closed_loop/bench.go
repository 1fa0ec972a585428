package main

import (
	"fmt"
	"sync"

	"quad-flight-core/arming"
	"quad-flight-core/config"
	"quad-flight-core/flightcore"
	"quad-flight-core/propulsion"
	"quad-flight-core/scheduler"
	"quad-flight-core/telemetry"
	"quad-flight-core/utils"
)

// BenchResult summarizes a scenario run.
type BenchResult struct {
	DurationMS  uint32
	FinalState  arming.State
	Emergencies uint64
	Transitions []arming.Transition
	LastMotors  propulsion.Command
	PeakMotor   float64
	MotorWrites uint64
}

// benchMotors records what the mixer would drive.
type benchMotors struct {
	mu     sync.Mutex
	last   propulsion.Command
	peak   float64
	writes uint64
}

func (m *benchMotors) Write(c propulsion.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = c
	m.writes++
	for _, v := range c {
		if v > m.peak {
			m.peak = v
		}
	}
	return nil
}

// RunBench replays the scenario on a virtual millisecond clock. Producers publish on their own
// periods before each scheduler pass.
func RunBench(scen Scenario, cfg config.Config, log *utils.Logger, exp *telemetry.Exporter) (BenchResult, error) {
	clk := scheduler.NewManualClock(0)
	motors := &benchMotors{}

	var transitions []arming.Transition
	core, err := flightcore.New(cfg, clk, motors, log.Named("core"), flightcore.Options{
		Exporter:     exp,
		OnTransition: func(tr arming.Transition) { transitions = append(transitions, tr) },
	})
	if err != nil {
		return BenchResult{}, err
	}
	if err := core.Init(); err != nil {
		return BenchResult{}, fmt.Errorf("core init: %w", err)
	}

	log.Info("Bench %q: %.2fs rc=%dms attitude=%dms segments=%d",
		scen.Meta.Name, scen.Timing.DurationS, scen.Timing.RCPeriodMS, scen.Timing.AttitudePeriodMS, len(scen.Segments))

	total := uint32(scen.Timing.DurationS * 1000)
	seg := -1
	for i := uint32(0); i < total; i++ {
		now := clk.Add(1)
		in := scen.Eval(float64(now) / 1000)
		if in.SegmentIdx != seg {
			seg = in.SegmentIdx
			if seg >= 0 && scen.Segments[seg].Comment != "" {
				log.Debug("t=%dms segment %d: %s", now, seg, scen.Segments[seg].Comment)
			}
		}
		if !in.RCSilent && now%scen.Timing.RCPeriodMS == 0 {
			core.RC.Store(in.Frame, now)
		}
		if !in.IMUSilent && now%scen.Timing.AttitudePeriodMS == 0 {
			core.Attitude.Store(in.Attitude, now)
		}
		core.Tick()
	}

	motors.mu.Lock()
	defer motors.mu.Unlock()
	res := BenchResult{
		DurationMS:  clk.Millis(),
		FinalState:  core.State(),
		Emergencies: core.Emergencies(),
		Transitions: transitions,
		LastMotors:  motors.last,
		PeakMotor:   motors.peak,
		MotorWrites: motors.writes,
	}
	log.Info("Bench %q done: state=%s emergencies=%d transitions=%d peak_motor=%.1f%%",
		scen.Meta.Name, res.FinalState, res.Emergencies, len(res.Transitions), res.PeakMotor)
	return res, nil
}
