package utils

import "sort"

// SignalDef describes one little-endian signal inside a classic CAN payload.
type SignalDef struct {
	Name      string
	StartBit  int
	BitLength int
	Signed    bool
	Factor    float64
	Offset    float64
	Min       float64
	Max       float64
	Default   float64
	Unit      string
}

type FrameDef struct {
	ID        uint32
	Name      string
	DLC       int
	Direction string // "rx" frames are consumed by the flight core, "tx" frames are produced by it
	CycleMS   int
	Signals   []SignalDef
}

type CANMap struct {
	ByID   map[uint32]*FrameDef
	ByName map[string]*FrameDef
}

func (m *CANMap) FrameNames() []string {
	out := make([]string, 0, len(m.ByName))
	for k := range m.ByName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Frame names the flight core relies on.
const (
	FrameRCChannels     = "RC_CHANNELS"
	FrameRCAux          = "RC_AUX"
	FrameAttitudeAngles = "ATTITUDE_ANGLES"
	FrameAttitudeRates  = "ATTITUDE_RATES"
	FrameOpticalFlow    = "OPTICAL_FLOW"
	FrameMotorPWM       = "MOTOR_PWM"
	FrameStatus         = "FC_STATUS"
	FrameStatus2        = "FC_STATUS_2"
)
