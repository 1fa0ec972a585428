// Package config loads the flight core configuration. Defaults are the tuned values of the
// reference airframe; a YAML file only needs to name what it changes.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"quad-flight-core/arming"
	"quad-flight-core/cascade"
	"quad-flight-core/propulsion"
	"quad-flight-core/rc"
	"quad-flight-core/sensors"
)

// SchedulerConfig holds the task rates in Hz.
type SchedulerConfig struct {
	SafetyHz    uint16 `yaml:"safety_hz"`
	ControlHz   uint16 `yaml:"control_hz"`
	TelemetryHz uint16 `yaml:"telemetry_hz"`
	StatusHz    uint16 `yaml:"status_hz"`
}

// AxisLoops configures one loop per axis.
type AxisLoops struct {
	Pitch cascade.LoopConfig `yaml:"pitch"`
	Roll  cascade.LoopConfig `yaml:"roll"`
	Yaw   cascade.LoopConfig `yaml:"yaw"`
}

func (a AxisLoops) array() [cascade.AxisCount]cascade.LoopConfig {
	return [cascade.AxisCount]cascade.LoopConfig{
		cascade.AxisPitch: a.Pitch,
		cascade.AxisRoll:  a.Roll,
		cascade.AxisYaw:   a.Yaw,
	}
}

func axisLoops(in [cascade.AxisCount]cascade.LoopConfig) AxisLoops {
	return AxisLoops{Pitch: in[cascade.AxisPitch], Roll: in[cascade.AxisRoll], Yaw: in[cascade.AxisYaw]}
}

type PIDConfig struct {
	Angle    AxisLoops          `yaml:"angle"`
	Rate     AxisLoops          `yaml:"rate"`
	Altitude cascade.LoopConfig `yaml:"altitude"`
}

// FlightConfig holds the switch positions the control task acts on.
type FlightConfig struct {
	// SafetySwitchThreshold: SA and SD must both read above it for the motors to be driven.
	SafetySwitchThreshold int8 `yaml:"safety_switch_threshold"`
	// RateModeThreshold: SB at or above it selects RATE mode.
	RateModeThreshold int8 `yaml:"rate_mode_threshold"`
}

type MotorsConfig struct {
	propulsion.Config `yaml:",inline"`
	Pulse             propulsion.PulseConfig `yaml:"pulse"`
}

type Config struct {
	Scheduler SchedulerConfig        `yaml:"scheduler"`
	PID       PIDConfig              `yaml:"pid"`
	Limits    cascade.Limits         `yaml:"limits"`
	RC        rc.ValidatorConfig     `yaml:"rc"`
	Link      rc.LinkConfig          `yaml:"link"`
	Arming    arming.Config          `yaml:"arming"`
	Flight    FlightConfig           `yaml:"flight"`
	Motors    MotorsConfig           `yaml:"motors"`
	IMU       sensors.AttitudeConfig `yaml:"imu"`
}

// Default returns the tuned defaults of the reference airframe.
func Default() Config {
	c := cascade.DefaultConfig()
	return Config{
		Scheduler: SchedulerConfig{SafetyHz: 500, ControlHz: 100, TelemetryHz: 10, StatusHz: 1},
		PID: PIDConfig{
			Angle:    axisLoops(c.Angle),
			Rate:     axisLoops(c.Rate),
			Altitude: c.Altitude,
		},
		Limits: c.Limits,
		RC:     rc.DefaultValidatorConfig(),
		Link:   rc.DefaultLinkConfig(),
		Arming: arming.DefaultConfig(),
		Flight: FlightConfig{SafetySwitchThreshold: 80, RateModeThreshold: 90},
		Motors: MotorsConfig{Config: propulsion.DefaultConfig(), Pulse: propulsion.DefaultPulseConfig()},
		IMU:    sensors.DefaultAttitudeConfig(),
	}
}

// Cascade assembles the PID system configuration.
func (c Config) Cascade() cascade.Config {
	return cascade.Config{
		Angle:    c.PID.Angle.array(),
		Rate:     c.PID.Rate.array(),
		Altitude: c.PID.Altitude,
		Limits:   c.Limits,
	}
}

// Load overlays the YAML file at path on the defaults and validates the result. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := Decode(f, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode overlays YAML from r on cfg and validates it. Unknown keys are errors.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return cfg.Validate()
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	s := c.Scheduler
	check(s.SafetyHz > 0 && s.ControlHz > 0 && s.TelemetryHz > 0 && s.StatusHz > 0,
		"scheduler: every rate must be positive")

	loops := []struct {
		name string
		cfg  cascade.LoopConfig
	}{
		{"angle.pitch", c.PID.Angle.Pitch}, {"angle.roll", c.PID.Angle.Roll}, {"angle.yaw", c.PID.Angle.Yaw},
		{"rate.pitch", c.PID.Rate.Pitch}, {"rate.roll", c.PID.Rate.Roll}, {"rate.yaw", c.PID.Rate.Yaw},
		{"altitude", c.PID.Altitude},
	}
	for _, l := range loops {
		check(l.cfg.OutputLimit >= 0 && l.cfg.IntegralLimit >= 0 && l.cfg.ISepThresh >= 0,
			"pid.%s: limits must not be negative", l.name)
	}

	lim := c.Limits
	check(lim.TiltLimitDeg > 0 && lim.TiltLimitDeg <= 90, "limits.tilt_limit_deg must be in (0, 90]")
	check(lim.MaxAngleDeg > 0 && lim.MaxAngleDeg < lim.TiltLimitDeg,
		"limits.max_angle_deg must be positive and below the tilt limit")
	check(lim.MaxRateDPS > 0, "limits.max_rate_dps must be positive")
	check(lim.MaxAltOutput >= 0, "limits.max_alt_output must not be negative")
	check(lim.MaxThrottle > 0 && lim.MaxThrottle <= 100, "limits.max_throttle must be in (0, 100]")
	check(lim.HoverThrottle >= 0 && lim.HoverThrottle <= 100, "limits.hover_throttle must be in [0, 100]")

	v := c.RC
	check(v.StickThreshold >= 0 && v.SwitchThreshold >= 0, "rc: thresholds must not be negative")
	check(v.AnomalyVotes >= 1, "rc.anomaly_votes must be at least 1")
	check(v.InitFrames >= 0, "rc.init_frames must not be negative")

	check(c.Link.TimeoutMS > 0, "link.timeout_ms must be positive")
	_, err := c.Link.Failsafe.MarshalText()
	check(err == nil, "link.failsafe_mode: %v", err)

	a := c.Arming
	check(a.StickThreshold > 0 && a.StickThreshold < 100, "arming.stick_threshold must be in (0, 100)")
	check(a.ArmHoldMS > 0, "arming.arm_hold_ms must be positive")

	m := c.Motors
	check(m.MinOutput >= 0 && m.MinOutput < m.MaxOutput && m.MaxOutput <= 100,
		"motors: need 0 <= min_output < max_output <= 100")
	check(m.Pulse.MinUS < m.Pulse.MaxUS, "motors.pulse: min_us must be below max_us")

	imu := c.IMU
	check(imu.AngleAlpha > 0 && imu.AngleAlpha <= 1 && imu.GyroAlpha > 0 && imu.GyroAlpha <= 1,
		"imu: filter alphas must be in (0, 1]")
	check(imu.TimeoutMS > 0, "imu.timeout_ms must be positive")

	return errors.Join(errs...)
}
