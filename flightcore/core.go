// Package flightcore wires the flight components into one context object driven by the
// cooperative scheduler. Sensor producers hand data over through single-slot mailboxes; all
// control logic runs on the goroutine that calls Tick.
package flightcore

import (
	"fmt"

	"quad-flight-core/arming"
	"quad-flight-core/cascade"
	"quad-flight-core/config"
	"quad-flight-core/propulsion"
	"quad-flight-core/rc"
	"quad-flight-core/scheduler"
	"quad-flight-core/sensors"
	"quad-flight-core/telemetry"
	"quad-flight-core/utils"
)

// StatusSink receives the telemetry snapshot, for example to put it on the bus.
type StatusSink interface {
	PublishStatus(s telemetry.Snapshot) error
}

type Options struct {
	Exporter *telemetry.Exporter
	Status   StatusSink
	// OnTransition observes every arming state change after it has been logged.
	OnTransition func(arming.Transition)
}

// Core is the flight controller context. Producers may Store into RC, Attitude and Flow from
// any goroutine; everything else belongs to the scheduler goroutine.
type Core struct {
	RC       sensors.Mailbox[rc.Frame]
	Attitude sensors.Mailbox[sensors.Orientation]
	Flow     sensors.Mailbox[sensors.OpticalFlow]

	cfg   config.Config
	log   *utils.Logger
	clock scheduler.Clock
	opts  Options

	pid       *cascade.System
	link      *rc.LinkMonitor
	validator *rc.Validator
	imu       *sensors.AttitudeFilter
	arm       *arming.Machine
	mixer     *propulsion.Mixer
	sched     *scheduler.Scheduler

	raw        rc.Frame
	channels   rc.Channels
	attitude   sensors.Orientation
	flow       sensors.OpticalFlow
	flowOnline bool

	started     uint32
	emergencies uint64
}

// New builds a core in DISARMED. out receives every motor command; call Init before the first
// Tick so the motors start at idle.
func New(cfg config.Config, clock scheduler.Clock, out propulsion.Output, log *utils.Logger, opts Options) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	pid, err := cascade.New(cfg.Cascade())
	if err != nil {
		return nil, fmt.Errorf("pid system: %w", err)
	}

	c := &Core{
		cfg:       cfg,
		log:       log,
		clock:     clock,
		opts:      opts,
		pid:       pid,
		link:      rc.NewLinkMonitor(cfg.Link),
		validator: rc.NewValidator(cfg.RC),
		imu:       sensors.NewAttitudeFilter(cfg.IMU),
		started:   clock.Millis(),
	}
	c.arm = arming.New(cfg.Arming, pid)
	c.arm.OnTransition = c.onTransition
	c.mixer = propulsion.NewMixer(cfg.Motors.Config, out, pid)

	s := cfg.Scheduler
	c.sched, err = scheduler.New(clock,
		scheduler.Task{Name: "safety", RateHz: s.SafetyHz, Run: c.safetyTask},
		scheduler.Task{Name: "control", RateHz: s.ControlHz, Run: c.controlTask},
		scheduler.Task{Name: "telemetry", RateHz: s.TelemetryHz, Run: c.telemetryTask},
		scheduler.Task{Name: "status", RateHz: s.StatusHz, Run: c.statusTask},
	)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return c, nil
}

// Init puts the motors at idle and enables the mixer.
func (c *Core) Init() error {
	if err := c.mixer.Init(); err != nil {
		return err
	}
	c.log.Info("core ready: safety=%dHz control=%dHz telemetry=%dHz hover=%.1f%% motor_max=%.0f%%",
		c.cfg.Scheduler.SafetyHz, c.cfg.Scheduler.ControlHz, c.cfg.Scheduler.TelemetryHz,
		c.pid.HoverThrottle(), c.cfg.Motors.MaxOutput)
	return nil
}

// Tick makes one scheduler pass. Call it once per clock millisecond.
func (c *Core) Tick() int { return c.sched.Run() }

// Shutdown forces EMERGENCY and stops the motors.
func (c *Core) Shutdown() error {
	c.arm.ForceEmergency(arming.ReasonForced, c.clock.Millis())
	return c.mixer.Stop()
}

func (c *Core) State() arming.State                { return c.arm.State() }
func (c *Core) PID() *cascade.System               { return c.pid }
func (c *Core) Mixer() *propulsion.Mixer           { return c.mixer }
func (c *Core) Channels() rc.Channels              { return c.channels }
func (c *Core) AttitudeState() sensors.Orientation { return c.attitude }
func (c *Core) Tasks() []scheduler.TaskStats       { return c.sched.Stats() }
func (c *Core) Emergencies() uint64                { return c.emergencies }

// Snapshot collects the read-only telemetry view.
func (c *Core) Snapshot() telemetry.Snapshot {
	now := c.clock.Millis()
	return telemetry.Snapshot{
		State:      c.arm.State(),
		ArmFlag:    c.pid.ArmFlag(),
		Fault:      c.pid.Fault(),
		Mode:       c.pid.Mode(),
		Outputs:    c.pid.Outputs(),
		Motors:     c.mixer.Last(),
		Attitude:   c.attitude,
		LinkAlive:  c.link.Alive(now),
		LinkLosses: c.link.Losses(),
		Channels:   c.channels,
		RC:         c.validator.Stats(),
		Flow:       c.flow,
		FlowOnline: c.flowOnline,
		Tasks:      c.sched.Stats(),
		UptimeMS:   uint64(utils.Elapsed(c.started, now)),
	}
}

func (c *Core) onTransition(tr arming.Transition) {
	if tr.To == arming.Emergency {
		c.emergencies++
		c.log.Warn("%s -> %s at %d ms: %s", tr.From, tr.To, tr.At, tr.Reason)
	} else {
		c.log.Info("%s -> %s at %d ms: %s", tr.From, tr.To, tr.At, tr.Reason)
	}
	if c.opts.OnTransition != nil {
		c.opts.OnTransition(tr)
	}
}

func (c *Core) stopMotors() {
	if err := c.mixer.Stop(); err != nil {
		c.log.Error("motor stop: %v", err)
	}
}

func (c *Core) emergency(reason arming.Reason, now uint32) {
	c.arm.ForceEmergency(reason, now)
	c.stopMotors()
}
