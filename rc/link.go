package rc

import (
	"fmt"
	"strings"

	"quad-flight-core/utils"
)

// FailsafeMode selects the values substituted when the link is lost.
type FailsafeMode int

const (
	FailsafeHold   FailsafeMode = iota // keep the last received values
	FailsafeZero                       // all channels 0
	FailsafeCustom                     // sticks centred, throttle at minimum, switches hold
)

// LinkConfig configures a LinkMonitor.
type LinkConfig struct {
	// TimeoutMS is the frame interval times the tolerated consecutive losses plus one.
	TimeoutMS uint32       `yaml:"timeout_ms"`
	Failsafe  FailsafeMode `yaml:"failsafe_mode"`
}

func DefaultLinkConfig() LinkConfig {
	return LinkConfig{TimeoutMS: 4 * (10 + 1), Failsafe: FailsafeCustom}
}

// LinkMonitor decides whether the radio link is up and produces the raw frame the validator
// sees: received values while connected, failsafe values otherwise. Times are scheduler ticks (ms).
type LinkMonitor struct {
	cfg LinkConfig

	raw       Channels
	lastFrame uint32
	connected bool
	since     uint32
	losses    uint64
}

// NewLinkMonitor starts disconnected with failsafe values.
func NewLinkMonitor(cfg LinkConfig) *LinkMonitor {
	m := &LinkMonitor{cfg: cfg}
	m.raw = m.failsafe(Channels{})
	return m
}

// Observe records a freshly received frame. receiverConnected is the receiver's own link flag.
func (m *LinkMonitor) Observe(ch Channels, receiverConnected bool, now uint32) {
	if !receiverConnected {
		m.drop()
		return
	}
	m.raw = ch
	m.lastFrame = now
	if !m.connected {
		m.connected = true
		m.since = now
	}
}

// Update applies the timeout and returns the frame to validate.
func (m *LinkMonitor) Update(now uint32) Frame {
	if m.connected && utils.Elapsed(m.lastFrame, now) > m.cfg.TimeoutMS {
		m.drop()
	}
	return Frame{Channels: m.raw, Connected: m.connected}
}

func (m *LinkMonitor) drop() {
	if m.connected {
		m.losses++
	}
	m.connected = false
	m.raw = m.failsafe(m.raw)
}

func (m *LinkMonitor) failsafe(last Channels) Channels {
	switch m.cfg.Failsafe {
	case FailsafeZero:
		return Channels{}
	case FailsafeCustom:
		last[RX] = 0
		last[RY] = 0
		last[LY] = ValueMin
		last[LX] = 0
		return last
	default:
		return last
	}
}

// Alive reports a connected link whose last frame is within the timeout at now. It does not
// change state, so the fast safety check can call it between control ticks.
func (m *LinkMonitor) Alive(now uint32) bool {
	return m.connected && utils.Elapsed(m.lastFrame, now) <= m.cfg.TimeoutMS
}

// ConnectedFor returns how long the link has been continuously up, 0 when it is down.
func (m *LinkMonitor) ConnectedFor(now uint32) uint32 {
	if !m.connected {
		return 0
	}
	return utils.Elapsed(m.since, now)
}

// Losses counts link drops.
func (m *LinkMonitor) Losses() uint64 { return m.losses }

var failsafeNames = map[FailsafeMode]string{
	FailsafeHold:   "hold",
	FailsafeZero:   "zero",
	FailsafeCustom: "custom",
}

func (m FailsafeMode) String() string {
	if s, ok := failsafeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("FailsafeMode(%d)", int(m))
}

func (m FailsafeMode) MarshalText() ([]byte, error) {
	if _, ok := failsafeNames[m]; !ok {
		return nil, fmt.Errorf("unknown failsafe mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *FailsafeMode) UnmarshalText(text []byte) error {
	for mode, name := range failsafeNames {
		if strings.EqualFold(string(text), name) {
			*m = mode
			return nil
		}
	}
	return fmt.Errorf("unknown failsafe mode %q", text)
}
