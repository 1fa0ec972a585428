package rc

import (
	"quad-flight-core/utils"
)

// ValidatorConfig holds the anomaly detector tuning. The values are empirical.
type ValidatorConfig struct {
	StickThreshold  int `yaml:"stick_threshold"`
	SwitchThreshold int `yaml:"switch_threshold"`
	AnomalyVotes    int `yaml:"anomaly_votes"`
	InitFrames      int `yaml:"init_frames"`
	// SpikeFloor: a stick previously above this value may not jump straight to -100.
	SpikeFloor int8 `yaml:"spike_floor"`
	// ThreePositionTolerance is the accepted distance from -100, 0 and 100.
	ThreePositionTolerance int8   `yaml:"three_position_tolerance"`
	SelfCenteringTolerance int8   `yaml:"self_centering_tolerance"`
	WheelBlacklist         []int8 `yaml:"wheel_blacklist"`
}

func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		StickThreshold:         10,
		SwitchThreshold:        50,
		AnomalyVotes:           3,
		InitFrames:             20,
		SpikeFloor:             -50,
		ThreePositionTolerance: 10,
		SelfCenteringTolerance: 10,
		WheelBlacklist:         []int8{-35, -65},
	}
}

// ValidatorStats counts what the validator did since construction.
type ValidatorStats struct {
	Frames         uint64
	RejectedFrames uint64
	HeldSpikes     uint64
	Reconnects     uint64
	Disconnected   uint64
}

// Validator filters raw frames. It is not safe for concurrent use; it belongs to the control task.
type Validator struct {
	cfg ValidatorConfig

	filtered Channels
	last     Channels

	initialized   bool
	initCounter   int
	lastConnected bool
	lastRejected  bool

	stats ValidatorStats
}

func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{cfg: cfg, lastConnected: true}
}

// Filtered returns the current filtered channel set.
func (v *Validator) Filtered() Channels { return v.filtered }

// LastRejected reports whether the most recent frame was treated as corrupted.
func (v *Validator) LastRejected() bool { return v.lastRejected }

func (v *Validator) Stats() ValidatorStats { return v.stats }

// Process consumes one raw frame and returns the new filtered channel set.
func (v *Validator) Process(raw Frame) Channels {
	v.stats.Frames++
	v.lastRejected = false

	// failsafe values come from upstream and are taken as they are
	if !raw.Connected {
		v.filtered = raw.Channels
		v.last = v.filtered
		v.initialized = false
		v.initCounter = 0
		if v.lastConnected {
			v.stats.Disconnected++
		}
		v.lastConnected = false
		return v.filtered
	}

	// first frame after recovery: restart history from it and skip the init window
	if !v.lastConnected {
		v.last = raw.Channels
		v.filtered = raw.Channels
		v.initialized = true
		v.initCounter = v.cfg.InitFrames
		v.lastConnected = true
		v.stats.Reconnects++
		return v.filtered
	}

	if v.initCounter < v.cfg.InitFrames {
		v.initCounter++
	}

	if !v.initialized {
		v.filtered = raw.Channels
		v.last = v.filtered
		v.initialized = true
		return v.filtered
	}

	in := raw.Channels
	if v.frameConsistent(in) {
		for ch := RX; ch <= LX; ch++ {
			v.filtered[ch] = in[ch]
			if v.last[ch] > v.cfg.SpikeFloor && in[ch] == ValueMin {
				v.filtered[ch] = v.last[ch]
				v.stats.HeldSpikes++
			}
		}
		for ch := SA; ch < NumChannels; ch++ {
			if v.valid(ch, in[ch], v.filtered[ch]) {
				v.filtered[ch] = in[ch]
			}
		}
	} else {
		v.lastRejected = true
		v.stats.RejectedFrames++
		// a released self-centering switch must still be able to return
		if v.valid(SE, in[SE], v.filtered[SE]) {
			v.filtered[SE] = in[SE]
		}
	}

	v.last = v.filtered
	return v.filtered
}

// frameConsistent votes over the sticks and switches SA..SE. Too many simultaneous jumps mean
// the frame itself is corrupted.
func (v *Validator) frameConsistent(in Channels) bool {
	if v.initCounter < v.cfg.InitFrames {
		return true
	}
	votes := 0
	for ch := RX; ch <= SE; ch++ {
		threshold := v.cfg.SwitchThreshold
		if Layout[ch] == KindStick {
			threshold = v.cfg.StickThreshold
		}
		if utils.Abs(int(in[ch])-int(v.last[ch])) > threshold {
			votes++
		}
	}
	return votes < v.cfg.AnomalyVotes
}

func (v *Validator) valid(ch Channel, current, previous int8) bool {
	switch Layout[ch] {
	case KindButton, KindStick:
		return true
	case KindThreePosition:
		tol := int(v.cfg.ThreePositionTolerance)
		c := int(current)
		return near(c, -100, tol) || near(c, 0, tol) || near(c, 100, tol)
	case KindSelfCentering:
		tol := int(v.cfg.SelfCenteringTolerance)
		c := int(current)
		return near(c, -100, tol) || near(c, 100, tol) || current == previous
	case KindWheel:
		if current < ValueMin || current > ValueMax {
			return false
		}
		for _, bad := range v.cfg.WheelBlacklist {
			if current == bad {
				return false
			}
		}
		return true
	}
	return false
}

// near is true for c within tol of target, restricted to the channel range.
func near(c, target, tol int) bool {
	lo := utils.Clamp(target-tol, int(ValueMin), int(ValueMax))
	hi := utils.Clamp(target+tol, int(ValueMin), int(ValueMax))
	return c >= lo && c <= hi
}
