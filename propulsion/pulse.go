package propulsion

import "quad-flight-core/utils"

// PulseWriter actuates the four ESC channels with pulse widths in microseconds.
type PulseWriter interface {
	WritePulses(pulses [MotorCount]uint16) error
}

type PulseConfig struct {
	MinUS uint16 `yaml:"min_us"`
	MaxUS uint16 `yaml:"max_us"`
}

func DefaultPulseConfig() PulseConfig {
	return PulseConfig{MinUS: 1000, MaxUS: 2000}
}

// PulseOutput maps percentages onto ESC pulse widths so the mixer stays hardware agnostic.
type PulseOutput struct {
	cfg PulseConfig
	w   PulseWriter
}

func NewPulseOutput(cfg PulseConfig, w PulseWriter) *PulseOutput {
	return &PulseOutput{cfg: cfg, w: w}
}

// Pulse converts a percentage in [0, 100] to a pulse width.
func (p *PulseOutput) Pulse(percent float64) uint16 {
	percent = utils.Clamp(percent, 0, 100)
	us := utils.MapRange(percent, 0, 100, float64(p.cfg.MinUS), float64(p.cfg.MaxUS))
	return uint16(us + 0.5)
}

func (p *PulseOutput) Write(c Command) error {
	var pulses [MotorCount]uint16
	for i, v := range c {
		pulses[i] = p.Pulse(v)
	}
	return p.w.WritePulses(pulses)
}
