package sensors

import "quad-flight-core/utils"

// Orientation is one reading from the inertial sensor: angles in degrees, rates in deg/s.
type Orientation struct {
	Roll, Pitch, Yaw float64
	GX, GY, GZ       float64
	Online           bool
	Valid            bool
}

type AttitudeConfig struct {
	TimeoutMS  uint32  `yaml:"timeout_ms"`
	AngleAlpha float64 `yaml:"angle_alpha"`
	GyroAlpha  float64 `yaml:"gyro_alpha"`
	AngleLimit float64 `yaml:"angle_limit"`
	GyroLimit  float64 `yaml:"gyro_limit"`
	// Passthrough disables the low-pass filter and only range checks.
	Passthrough bool `yaml:"passthrough"`
}

func DefaultAttitudeConfig() AttitudeConfig {
	return AttitudeConfig{
		TimeoutMS:  200,
		AngleAlpha: 0.25,
		GyroAlpha:  0.4,
		AngleLimit: 180,
		GyroLimit:  2000,
	}
}

// AttitudeFilter conditions raw readings for the controllers. Online is inherited from the
// producer and cleared when the latest reading is older than the timeout. Valid additionally
// requires the producer's valid flag and every value in range.
type AttitudeFilter struct {
	cfg    AttitudeConfig
	out    Orientation
	seeded bool
}

func NewAttitudeFilter(cfg AttitudeConfig) *AttitudeFilter {
	return &AttitudeFilter{cfg: cfg}
}

// Update conditions raw, which was received at tick stamp, and returns the result. On an
// offline or invalid reading the previous angles are kept and only the flags change.
func (f *AttitudeFilter) Update(raw Orientation, stamp, now uint32, ok bool) Orientation {
	f.out.Online = ok && raw.Online && utils.Elapsed(stamp, now) <= f.cfg.TimeoutMS
	if !f.out.Online {
		f.out.Valid = false
		f.seeded = false
		return f.out
	}
	if !raw.Valid || !f.InRange(raw) {
		f.out.Valid = false
		return f.out
	}
	f.out.Valid = true

	if f.cfg.Passthrough || !f.seeded {
		f.out.Roll, f.out.Pitch, f.out.Yaw = raw.Roll, raw.Pitch, raw.Yaw
		f.out.GX, f.out.GY, f.out.GZ = raw.GX, raw.GY, raw.GZ
		f.seeded = true
		return f.out
	}

	a, g := f.cfg.AngleAlpha, f.cfg.GyroAlpha
	f.out.Roll = lowPass(raw.Roll, f.out.Roll, a)
	f.out.Pitch = lowPass(raw.Pitch, f.out.Pitch, a)
	f.out.Yaw = lowPass(raw.Yaw, f.out.Yaw, a)
	f.out.GX = lowPass(raw.GX, f.out.GX, g)
	f.out.GY = lowPass(raw.GY, f.out.GY, g)
	f.out.GZ = lowPass(raw.GZ, f.out.GZ, g)
	return f.out
}

// Trusted is the check the fast safety path runs on the latest reading without touching
// filter state.
func (f *AttitudeFilter) Trusted(raw Orientation, stamp, now uint32, ok bool) bool {
	return ok && raw.Online && raw.Valid && utils.Elapsed(stamp, now) <= f.cfg.TimeoutMS && f.InRange(raw)
}

// InRange reports whether the reading is within the sensor range. NaN is out of range.
func (f *AttitudeFilter) InRange(r Orientation) bool {
	al, gl := f.cfg.AngleLimit, f.cfg.GyroLimit
	for _, v := range [...]float64{r.Roll, r.Pitch, r.Yaw} {
		if !(utils.Abs(v) <= al) {
			return false
		}
	}
	for _, v := range [...]float64{r.GX, r.GY, r.GZ} {
		if !(utils.Abs(v) <= gl) {
			return false
		}
	}
	return true
}

// Current returns the last conditioned reading.
func (f *AttitudeFilter) Current() Orientation { return f.out }

func lowPass(sample, prev, alpha float64) float64 {
	return alpha*sample + (1-alpha)*prev
}
