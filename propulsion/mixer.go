// Package propulsion converts throttle and torque demands into four motor commands for an X
// quadrotor and owns the emergency stop.
package propulsion

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"quad-flight-core/utils"
)

var (
	ErrNotReady     = errors.New("propulsion: mixer not initialized")
	ErrInvalidMotor = errors.New("propulsion: invalid motor id")
	// ErrInvalidDemand is returned when a demand is NaN or infinite; the motors are stopped.
	ErrInvalidDemand = errors.New("propulsion: non-finite demand")
)

type MotorID int

const (
	FL MotorID = iota // front left, M1
	FR                // front right, M2
	BR                // back right, M3
	BL                // back left, M4
	MotorCount
)

func (id MotorID) String() string {
	switch id {
	case FL:
		return "FL"
	case FR:
		return "FR"
	case BR:
		return "BR"
	case BL:
		return "BL"
	default:
		return fmt.Sprintf("Motor(%d)", int(id))
	}
}

// Command holds one percentage per motor, indexed by MotorID.
type Command [MotorCount]float64

// Output receives every command the mixer produces. All four motors are written together.
type Output interface {
	Write(Command) error
}

// Guard is read on every Mix call. The flight PID system implements it.
type Guard interface {
	ArmFlag() bool
	Fault() bool
}

type Config struct {
	MinOutput float64 `yaml:"min_output"`
	MaxOutput float64 `yaml:"max_output"`
}

// DefaultConfig caps the motors at 70% to protect battery and motors.
func DefaultConfig() Config {
	return Config{MinOutput: 0, MaxOutput: 70}
}

// Mixer is safe for concurrent use; Stop may be called from any goroutine.
type Mixer struct {
	cfg   Config
	out   Output
	guard Guard

	mu    sync.Mutex
	ready bool
	last  Command
	stops uint64
}

func NewMixer(cfg Config, out Output, guard Guard) *Mixer {
	return &Mixer{cfg: cfg, out: out, guard: guard}
}

// Init drives every motor to idle, which also lets the ESCs calibrate, and marks the mixer ready.
func (m *Mixer) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeLocked(Command{}); err != nil {
		return fmt.Errorf("init motors: %w", err)
	}
	m.ready = true
	return nil
}

// MixX applies the X layout formula without clamping.
func MixX(throttle, pitch, roll, yaw float64) Command {
	var c Command
	c[FL] = throttle + pitch + roll + yaw
	c[FR] = throttle - pitch + roll - yaw
	c[BR] = throttle - pitch - roll + yaw
	c[BL] = throttle + pitch - roll - yaw
	return c
}

// Mix computes and writes the clamped motor command. Without the arm flag, or with a fault, all
// motors are stopped instead and the idle command is returned.
func (m *Mixer) Mix(throttle, pitch, roll, yaw float64) (Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return m.last, ErrNotReady
	}
	if m.guard.Fault() || !m.guard.ArmFlag() {
		return Command{}, m.stopLocked()
	}

	c := MixX(throttle, pitch, roll, yaw)
	for i := range c {
		if math.IsNaN(c[i]) || math.IsInf(c[i], 0) {
			if err := m.stopLocked(); err != nil {
				return Command{}, err
			}
			return Command{}, ErrInvalidDemand
		}
		c[i] = utils.Clamp(c[i], m.cfg.MinOutput, m.cfg.MaxOutput)
	}
	return c, m.writeLocked(c)
}

// SetSingle drives one motor directly for bench tests. The value is still range clamped.
func (m *Mixer) SetSingle(id MotorID, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return ErrNotReady
	}
	if id < 0 || id >= MotorCount {
		return fmt.Errorf("%w: %d", ErrInvalidMotor, id)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: motor %s", ErrInvalidDemand, id)
	}
	c := m.last
	c[id] = utils.Clamp(value, m.cfg.MinOutput, m.cfg.MaxOutput)
	return m.writeLocked(c)
}

// Stop forces all motors to idle whether or not the mixer is ready.
func (m *Mixer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

func (m *Mixer) stopLocked() error {
	m.stops++
	return m.writeLocked(Command{})
}

func (m *Mixer) writeLocked(c Command) error {
	m.last = c
	return m.out.Write(c)
}

// Ready reports whether a Mix call would drive the motors.
func (m *Mixer) Ready() bool {
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()
	return ready && m.guard.ArmFlag() && !m.guard.Fault()
}

// Last returns the most recent command written.
func (m *Mixer) Last() Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Stops counts emergency stops, including the ones Mix performs.
func (m *Mixer) Stops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}
