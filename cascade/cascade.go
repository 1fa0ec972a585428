// Package cascade composes pidcore controllers into the attitude (angle -> rate) and altitude
// loops of a quadrotor. It owns the flight mode, the arm flag, the fault flag and the last
// control outputs.
package cascade

import (
	"fmt"
	"sync"

	"quad-flight-core/pidcore"
	"quad-flight-core/utils"
)

type Mode int

const (
	ModeAngle Mode = iota // self-levelling: sticks command angles
	ModeRate              // acro: sticks command body rates
)

func (m Mode) String() string {
	switch m {
	case ModeAngle:
		return "ANGLE"
	case ModeRate:
		return "RATE"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

type Axis int

const (
	AxisPitch Axis = iota
	AxisRoll
	AxisYaw
	AxisCount
)

func (a Axis) String() string {
	switch a {
	case AxisPitch:
		return "pitch"
	case AxisRoll:
		return "roll"
	case AxisYaw:
		return "yaw"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// LoopConfig configures one pidcore instance.
type LoopConfig struct {
	pidcore.Gains `yaml:",inline"`
	OutputLimit   float64 `yaml:"output_limit"`
	IntegralLimit float64 `yaml:"integral_limit"`
}

// Limits are the protection thresholds and target bounds of the cascade.
type Limits struct {
	TiltLimitDeg  float64 `yaml:"tilt_limit_deg"`
	MaxAngleDeg   float64 `yaml:"max_angle_deg"`
	MaxRateDPS    float64 `yaml:"max_rate_dps"`
	MaxAltOutput  float64 `yaml:"max_alt_output"`
	MaxThrottle   float64 `yaml:"max_throttle"`
	HoverThrottle float64 `yaml:"hover_throttle"`
}

// Config is indexed by Axis for the angle and rate loops.
type Config struct {
	Angle    [AxisCount]LoopConfig
	Rate     [AxisCount]LoopConfig
	Altitude LoopConfig
	Limits   Limits
}

// DefaultConfig holds the bench-tuned gains of the reference airframe.
func DefaultConfig() Config {
	return Config{
		Angle: [AxisCount]LoopConfig{
			AxisPitch: {Gains: pidcore.Gains{Kp: 0.4, ISepThresh: 20}, OutputLimit: pidcore.DefaultOutputLimit, IntegralLimit: pidcore.DefaultIntegralLimit},
			AxisRoll:  {Gains: pidcore.Gains{Kp: 0.4, ISepThresh: 20}, OutputLimit: pidcore.DefaultOutputLimit, IntegralLimit: pidcore.DefaultIntegralLimit},
			AxisYaw:   {Gains: pidcore.Gains{Kp: 1.0}, OutputLimit: pidcore.DefaultOutputLimit, IntegralLimit: pidcore.DefaultIntegralLimit},
		},
		Rate: [AxisCount]LoopConfig{
			AxisPitch: {Gains: pidcore.Gains{Kp: 0.75}, OutputLimit: 20, IntegralLimit: pidcore.DefaultIntegralLimit},
			AxisRoll:  {Gains: pidcore.Gains{Kp: 0.75}, OutputLimit: 20, IntegralLimit: pidcore.DefaultIntegralLimit},
			AxisYaw:   {Gains: pidcore.Gains{}, OutputLimit: pidcore.DefaultOutputLimit, IntegralLimit: pidcore.DefaultIntegralLimit},
		},
		Altitude: LoopConfig{Gains: pidcore.Gains{Kp: 1.0, Ki: 0.3}, OutputLimit: pidcore.DefaultOutputLimit, IntegralLimit: pidcore.DefaultIntegralLimit},
		Limits: Limits{
			TiltLimitDeg:  45,
			MaxAngleDeg:   30,
			MaxRateDPS:    200,
			MaxAltOutput:  30,
			MaxThrottle:   100,
			HoverThrottle: 15,
		},
	}
}

// Outputs are the last values handed to the mixer.
type Outputs struct {
	Throttle float64
	Pitch    float64
	Roll     float64
	Yaw      float64
}

// System is the flight PID system. The arm flag and Outputs are shared with the safety path and
// are only written while holding mu; everything else belongs to the control task.
type System struct {
	cfg Config

	angle [AxisCount]*pidcore.Controller
	rate  [AxisCount]*pidcore.Controller
	alt   *pidcore.Controller

	hoverThrottle float64
	mode          Mode

	mu      sync.Mutex
	armFlag bool
	fault   bool
	out     Outputs
}

// New builds a system from cfg and runs InitAll with the configured hover throttle.
func New(cfg Config) (*System, error) {
	s := &System{cfg: cfg}
	for i := range s.angle {
		s.angle[i] = &pidcore.Controller{}
		s.rate[i] = &pidcore.Controller{}
	}
	s.alt = &pidcore.Controller{}
	if err := s.InitAll(cfg.Limits.HoverThrottle); err != nil {
		return nil, err
	}
	return s, nil
}

// InitAll loads the configured gains into all seven loops, clears every flag and output and
// sets ANGLE mode. hover is clamped to [0, 100].
func (s *System) InitAll(hover float64) error {
	for i := Axis(0); i < AxisCount; i++ {
		if err := initLoop(s.angle[i], s.cfg.Angle[i]); err != nil {
			return fmt.Errorf("angle %s: %w", i, err)
		}
		if err := initLoop(s.rate[i], s.cfg.Rate[i]); err != nil {
			return fmt.Errorf("rate %s: %w", i, err)
		}
	}
	if err := initLoop(s.alt, s.cfg.Altitude); err != nil {
		return fmt.Errorf("altitude: %w", err)
	}

	s.hoverThrottle = utils.Clamp(hover, 0, 100)
	s.mode = ModeAngle

	s.mu.Lock()
	s.armFlag = false
	s.fault = false
	s.out = Outputs{}
	s.mu.Unlock()
	return nil
}

func initLoop(c *pidcore.Controller, lc LoopConfig) error {
	c.Init(0, lc.Gains)
	if err := c.SetOutputLimit(lc.OutputLimit); err != nil {
		return err
	}
	return c.SetIntegralLimit(lc.IntegralLimit)
}

// SystemReset clears every loop, the outputs and the fault flag. It runs on every arm state change.
func (s *System) SystemReset() {
	for i := range s.angle {
		s.angle[i].Reset()
		s.rate[i].Reset()
	}
	s.alt.Reset()

	s.mu.Lock()
	s.out = Outputs{}
	s.fault = false
	s.mu.Unlock()
}

// SetMode switches between ANGLE and RATE. A real change resets all loops so no integral is
// carried from one loop structure into the other.
func (s *System) SetMode(m Mode) bool {
	if m == s.mode {
		return false
	}
	s.mode = m
	for i := range s.angle {
		s.angle[i].Reset()
		s.rate[i].Reset()
	}
	s.alt.Reset()
	return true
}

func (s *System) Mode() Mode { return s.mode }

// CheckTilt reports whether either angle exceeds the tilt limit.
func (s *System) CheckTilt(pitch, roll float64) bool {
	lim := s.cfg.Limits.TiltLimitDeg
	// a NaN angle counts as tilted
	return !(utils.Abs(pitch) <= lim) || !(utils.Abs(roll) <= lim)
}

// UpdateAttitude runs the cascade for one tick and returns the fault flag. On a tilt fault no
// loop is evaluated and the caller must stop propulsion.
//
// In ANGLE mode the targets are angles (deg) and the angle loops produce rate targets bounded
// by MaxRateDPS; yaw is always rate controlled. In RATE mode the targets are rates (dps).
func (s *System) UpdateAttitude(targetPitch, targetRoll, targetYaw,
	measPitch, measRoll, measYaw,
	gyroX, gyroY, gyroZ float64) bool {
	_ = measYaw // heading hold is not implemented

	if s.CheckTilt(measPitch, measRoll) {
		s.mu.Lock()
		s.fault = true
		s.mu.Unlock()
		return true
	}

	var ratePitch, rateRoll, rateYaw float64
	if s.mode == ModeAngle {
		maxRate := s.cfg.Limits.MaxRateDPS
		ratePitch = utils.ClampAbs(s.angle[AxisPitch].Calculate(measPitch, targetPitch), maxRate)
		rateRoll = utils.ClampAbs(s.angle[AxisRoll].Calculate(measRoll, targetRoll), maxRate)
		rateYaw = targetYaw
	} else {
		ratePitch, rateRoll, rateYaw = targetPitch, targetRoll, targetYaw
	}

	// gyro x is the pitch axis of the sensor mounting
	pitch := s.rate[AxisPitch].Calculate(gyroX, ratePitch)
	roll := s.rate[AxisRoll].Calculate(gyroY, rateRoll)
	yaw := s.rate[AxisYaw].Calculate(gyroZ, rateYaw)

	s.mu.Lock()
	s.out.Pitch, s.out.Roll, s.out.Yaw = pitch, roll, yaw
	s.mu.Unlock()
	return false
}

// UpdateAltitude returns the throttle correction to add to HoverThrottle.
func (s *System) UpdateAltitude(targetAlt, measAlt float64) float64 {
	out := s.alt.Calculate(measAlt, targetAlt)
	return utils.ClampAbs(out, s.cfg.Limits.MaxAltOutput)
}

func (s *System) HoverThrottle() float64 { return s.hoverThrottle }

// SetThrottle stores the collective throttle for the mixer, clamped to [0, MaxThrottle].
func (s *System) SetThrottle(throttle float64) {
	s.mu.Lock()
	s.out.Throttle = utils.Clamp(throttle, 0, s.cfg.Limits.MaxThrottle)
	s.mu.Unlock()
}

// Disarm clears the arm flag and zeroes all four outputs in one critical section, so a reader
// never sees the flag cleared with outputs still live.
func (s *System) Disarm() {
	s.mu.Lock()
	s.armFlag = false
	s.out = Outputs{}
	s.mu.Unlock()
}

func (s *System) SetArmFlag(armed bool) {
	s.mu.Lock()
	s.armFlag = armed
	s.mu.Unlock()
}

func (s *System) ArmFlag() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armFlag
}

func (s *System) Fault() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// Outputs returns a consistent copy of the last outputs.
func (s *System) Outputs() Outputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

// SetAngleParam retunes an angle loop in flight. History is kept.
func (s *System) SetAngleParam(axis Axis, g pidcore.Gains) error {
	if axis < 0 || axis >= AxisCount {
		return fmt.Errorf("angle param: invalid axis %d", axis)
	}
	return s.angle[axis].SetGains(g)
}

// SetRateParam retunes a rate loop in flight. History is kept.
func (s *System) SetRateParam(axis Axis, g pidcore.Gains) error {
	if axis < 0 || axis >= AxisCount {
		return fmt.Errorf("rate param: invalid axis %d", axis)
	}
	return s.rate[axis].SetGains(g)
}

func (s *System) SetAltParam(g pidcore.Gains) error {
	return s.alt.SetGains(g)
}

// AngleLoop, RateLoop and AltitudeLoop expose controllers for diagnostics and limit tuning.
func (s *System) AngleLoop(axis Axis) *pidcore.Controller { return s.angle[axis] }
func (s *System) RateLoop(axis Axis) *pidcore.Controller  { return s.rate[axis] }
func (s *System) AltitudeLoop() *pidcore.Controller       { return s.alt }
