// Package arming implements the arm/disarm state machine that gates propulsion.
package arming

import "fmt"

type State int

const (
	Disarmed State = iota
	PreArm
	Armed
	Emergency
)

func (s State) String() string {
	switch s {
	case Disarmed:
		return "DISARMED"
	case PreArm:
		return "PRE_ARM"
	case Armed:
		return "ARMED"
	case Emergency:
		return "EMERGENCY"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Reason explains a transition.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonArmGesture
	ReasonReleasedEarly
	ReasonArmConfirmed
	ReasonLinkLost
	ReasonIMUFault
	ReasonDisarmGesture
	ReasonTilt
	ReasonInvalidInput
	ReasonAttitudeFault
	ReasonDwellElapsed
	ReasonForced
)

var reasonNames = map[Reason]string{
	ReasonNone:          "none",
	ReasonArmGesture:    "arm gesture",
	ReasonReleasedEarly: "gesture released early",
	ReasonArmConfirmed:  "gesture held and released",
	ReasonLinkLost:      "link lost",
	ReasonIMUFault:      "orientation sensor offline or invalid",
	ReasonDisarmGesture: "disarm gesture",
	ReasonTilt:          "tilt limit exceeded",
	ReasonInvalidInput:  "control input out of range",
	ReasonAttitudeFault: "attitude controller fault",
	ReasonDwellElapsed:  "emergency dwell elapsed",
	ReasonForced:        "forced",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Config holds the gesture threshold and dwell times in milliseconds.
type Config struct {
	StickThreshold   int8   `yaml:"stick_threshold"`
	ArmHoldMS        uint32 `yaml:"arm_hold_ms"`
	EmergencyDwellMS uint32 `yaml:"emergency_dwell_ms"`
	LinkStableMS     uint32 `yaml:"link_stable_ms"`
}

func DefaultConfig() Config {
	return Config{
		StickThreshold:   80,
		ArmHoldMS:        2000,
		EmergencyDwellMS: 500,
		LinkStableMS:     500,
	}
}

// Inputs are the per-tick observations the machine decides on.
type Inputs struct {
	// LX and LY are the filtered yaw and throttle stick values.
	LX, LY int8

	LinkConnected bool
	IMUOnline     bool
	IMUValid      bool
	Pitch, Roll   float64
}

// Cascade is the part of the flight PID system the machine drives on transitions.
type Cascade interface {
	SystemReset()
	SetArmFlag(armed bool)
	Disarm()
	CheckTilt(pitch, roll float64) bool
}

// Transition describes one state change.
type Transition struct {
	From, To State
	Reason   Reason
	At       uint32
}

// Machine is the arming state machine. Times are scheduler ticks in milliseconds and all
// comparisons are wraparound safe. It is owned by the scheduler goroutine.
type Machine struct {
	cfg     Config
	cascade Cascade

	state     State
	previous  State
	enteredAt uint32

	linkUp    bool
	linkSince uint32

	transitions uint64

	// OnTransition, when set, is called after every state change.
	OnTransition func(Transition)
}

// New returns a machine in DISARMED with the arm flag cleared.
func New(cfg Config, c Cascade) *Machine {
	m := &Machine{cfg: cfg, cascade: c, state: Disarmed, previous: Disarmed}
	c.Disarm()
	return m
}

func (m *Machine) State() State                  { return m.state }
func (m *Machine) Previous() State               { return m.previous }
func (m *Machine) EnteredAt() uint32             { return m.enteredAt }
func (m *Machine) Transitions() uint64           { return m.transitions }
func (m *Machine) Armed() bool                   { return m.state == Armed }
func (m *Machine) TimeInState(now uint32) uint32 { return now - m.enteredAt }

// ArmGesture: yaw stick fully right with throttle fully down.
func (m *Machine) ArmGesture(in Inputs) bool {
	th := m.cfg.StickThreshold
	return in.LX > th && in.LY < -th
}

// DisarmGesture: yaw stick fully left with throttle fully down.
func (m *Machine) DisarmGesture(in Inputs) bool {
	th := m.cfg.StickThreshold
	return in.LX < -th && in.LY < -th
}

// CanArm reports a level vehicle with a trusted orientation reading.
func (m *Machine) CanArm(in Inputs) bool {
	if !in.IMUOnline || !in.IMUValid {
		return false
	}
	return !m.cascade.CheckTilt(in.Pitch, in.Roll)
}

func (m *Machine) linkStable(now uint32) bool {
	return m.linkUp && now-m.linkSince >= m.cfg.LinkStableMS
}

// Update advances the machine by one control tick and returns the resulting state.
func (m *Machine) Update(in Inputs, now uint32) State {
	if in.LinkConnected && !m.linkUp {
		m.linkSince = now
	}
	m.linkUp = in.LinkConnected

	switch m.state {
	case Disarmed:
		if m.CanArm(in) && m.linkStable(now) && m.ArmGesture(in) {
			m.enter(PreArm, ReasonArmGesture, now)
		}

	case PreArm:
		held := now - m.enteredAt
		holding := m.ArmGesture(in)
		switch {
		case !in.LinkConnected:
			m.enter(Disarmed, ReasonLinkLost, now)
		case !holding && held >= m.cfg.ArmHoldMS:
			m.enter(Armed, ReasonArmConfirmed, now)
		case !holding:
			m.enter(Disarmed, ReasonReleasedEarly, now)
		}

	case Armed:
		switch {
		case !in.LinkConnected:
			m.enter(Emergency, ReasonLinkLost, now)
		case !in.IMUOnline || !in.IMUValid:
			m.enter(Emergency, ReasonIMUFault, now)
		case m.DisarmGesture(in):
			m.enter(Emergency, ReasonDisarmGesture, now)
		case m.cascade.CheckTilt(in.Pitch, in.Roll):
			m.enter(Emergency, ReasonTilt, now)
		}

	case Emergency:
		if !m.DisarmGesture(in) && now-m.enteredAt >= m.cfg.EmergencyDwellMS {
			m.enter(Disarmed, ReasonDwellElapsed, now)
		}
	}
	return m.state
}

// ForceEmergency enters EMERGENCY from any other state. It reports whether a transition happened.
func (m *Machine) ForceEmergency(reason Reason, now uint32) bool {
	if m.state == Emergency {
		return false
	}
	m.enter(Emergency, reason, now)
	return true
}

func (m *Machine) enter(to State, reason Reason, now uint32) {
	from := m.state
	m.previous = from
	m.state = to
	m.enteredAt = now
	m.transitions++

	switch to {
	case Disarmed:
		m.cascade.Disarm()
	case Armed:
		m.cascade.SetArmFlag(true)
		m.cascade.SystemReset()
	case Emergency:
		m.cascade.Disarm()
		m.cascade.SystemReset()
	}

	if m.OnTransition != nil {
		m.OnTransition(Transition{From: from, To: to, Reason: reason, At: now})
	}
}
