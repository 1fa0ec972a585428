package rc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseline = Channels{
	RX: 0, RY: 0, LY: -100, LX: 0,
	SA: -100, SB: -100, SC: 0, SD: -100, SE: -100, SL: 0,
}

func connected(c Channels) Frame { return Frame{Channels: c, Connected: true} }

// warm feeds enough identical frames to close the initialization window.
func warm(t *testing.T, v *Validator) {
	t.Helper()
	for i := 0; i < 25; i++ {
		v.Process(connected(baseline))
	}
	require.Equal(t, baseline, v.Filtered())
}

func TestDisconnectedMirrorsFailsafe(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	warm(t, v)

	inputs := []Channels{
		{0, 0, -100, 0, -100, -100, 0, -100, -100, 0},
		{55, -70, -100, 33, 12, 47, -3, 80, 5, -35},
		{-128, 127, 0, 0, 0, 0, 0, 0, 0, 0},
	}
	for _, in := range inputs {
		out := v.Process(Frame{Channels: in, Connected: false})
		assert.Equal(t, in, out)
		assert.Equal(t, in, v.Filtered())
	}
}

func TestFirstFrameAfterReconnectPassesThrough(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	warm(t, v)
	v.Process(Frame{Channels: baseline, Connected: false})

	// every channel jumps and SB sits between positions
	first := Channels{40, -40, 20, 60, 100, 50, 100, 100, 30, -35}
	assert.Equal(t, first, v.Process(connected(first)))
	assert.Equal(t, uint64(1), v.Stats().Reconnects)

	// history restarted from the reconnect frame and the init window is already closed
	jumped := first
	jumped[RX], jumped[RY], jumped[LX] = 0, 0, 0
	assert.Equal(t, first, v.Process(connected(jumped)))
	assert.True(t, v.LastRejected())
}

func TestCorruptedFrameHoldsAllButSelfCentering(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	warm(t, v)

	in := baseline
	in[RX], in[RY], in[LX] = 40, 40, 40
	in[SB] = 0
	in[SE] = 100
	in[SL] = 70

	out := v.Process(connected(in))
	want := baseline
	want[SE] = 100
	assert.Equal(t, want, out)
	assert.True(t, v.LastRejected())
	assert.Equal(t, uint64(1), v.Stats().RejectedFrames)
}

func TestTwoViolationsAreAccepted(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	warm(t, v)

	in := baseline
	in[RX], in[RY] = 40, -40
	out := v.Process(connected(in))
	assert.False(t, v.LastRejected())
	assert.Equal(t, int8(40), out[RX])
	assert.Equal(t, int8(-40), out[RY])
}

func TestVoteCountIsConfigurable(t *testing.T) {
	cfg := DefaultValidatorConfig()
	cfg.AnomalyVotes = 2
	v := NewValidator(cfg)
	warm(t, v)

	in := baseline
	in[RX], in[RY] = 40, -40
	assert.Equal(t, baseline, v.Process(connected(in)))
}

func TestInitWindowSkipsConsistencyCheck(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	v.Process(connected(baseline))

	in := baseline
	in[RX], in[RY], in[LX], in[LY] = 50, 50, 50, 0
	assert.Equal(t, in, v.Process(connected(in)))
	assert.False(t, v.LastRejected())
}

func TestStickSpikeToLowRailIsHeld(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	warm(t, v)

	in := baseline
	in[RX] = -100
	out := v.Process(connected(in))
	assert.Equal(t, int8(0), out[RX])
	assert.Equal(t, uint64(1), v.Stats().HeldSpikes)

	// a stick that is already low may reach the rail
	cfg := DefaultValidatorConfig()
	cfg.StickThreshold = 100
	v = NewValidator(cfg)
	low := baseline
	low[RY] = -60
	for i := 0; i < 25; i++ {
		v.Process(connected(low))
	}
	low[RY] = -100
	assert.Equal(t, int8(-100), v.Process(connected(low))[RY])
}

func TestSwitchClassification(t *testing.T) {
	tests := []struct {
		name string
		ch   Channel
		in   int8
		want int8
	}{
		{"three position middle", SC, 8, 8},
		{"three position between", SC, 30, 0},
		{"three position rail", SC, 10, 10},
		{"three position up", SB, -91, -91},
		{"button passes anything", SA, -70, -70},
		{"self centering pressed", SE, 95, 95},
		{"self centering half way", SE, 0, -100},
		{"wheel spike", SL, -35, 0},
		{"wheel spike 65", SL, -65, 0},
		{"wheel normal", SL, -34, -34},
		{"wheel out of range", SL, 110, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(DefaultValidatorConfig())
			warm(t, v)
			in := baseline
			in[tt.ch] = tt.in
			assert.Equal(t, tt.want, v.Process(connected(in))[tt.ch])
		})
	}
}

func TestSelfCenteringAcceptsUnchangedValue(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	warm(t, v)
	v.Process(Frame{Channels: baseline, Connected: false})

	in := baseline
	in[SE] = 30
	v.Process(connected(in))
	assert.Equal(t, int8(30), v.Process(connected(in))[SE])
}
