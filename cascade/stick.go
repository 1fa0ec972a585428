package cascade

import "quad-flight-core/utils"

// StickFullScale is the magnitude of a fully deflected stick.
const StickFullScale = 100.0

// StickToAngle maps a stick value in [-100, 100] onto [-MaxAngleDeg, MaxAngleDeg].
func (s *System) StickToAngle(stick float64) float64 {
	return utils.ClampAbs(stick, StickFullScale) * (s.cfg.Limits.MaxAngleDeg / StickFullScale)
}

// StickToRate maps a stick value in [-100, 100] onto [-MaxRateDPS, MaxRateDPS].
func (s *System) StickToRate(stick float64) float64 {
	return utils.ClampAbs(stick, StickFullScale) * (s.cfg.Limits.MaxRateDPS / StickFullScale)
}

// StickToTarget maps a pitch/roll stick according to the current mode.
func (s *System) StickToTarget(stick float64) float64 {
	if s.mode == ModeRate {
		return s.StickToRate(stick)
	}
	return s.StickToAngle(stick)
}
