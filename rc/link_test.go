package rc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkMonitorStartsInFailsafe(t *testing.T) {
	m := NewLinkMonitor(DefaultLinkConfig())
	f := m.Update(0)
	assert.False(t, f.Connected)
	assert.Equal(t, ValueMin, f.Channels[LY])
	assert.False(t, m.Alive(0))
}

func TestLinkMonitorTimeout(t *testing.T) {
	m := NewLinkMonitor(DefaultLinkConfig())
	in := baseline
	in[RX], in[LY], in[SA] = 20, 10, 100

	m.Observe(in, true, 10)
	f := m.Update(20)
	assert.True(t, f.Connected)
	assert.Equal(t, in, f.Channels)

	assert.True(t, m.Alive(54))
	assert.False(t, m.Alive(55))
	assert.Equal(t, uint32(44), m.ConnectedFor(54))

	f = m.Update(55)
	assert.False(t, f.Connected)
	assert.Equal(t, int8(0), f.Channels[RX])
	assert.Equal(t, ValueMin, f.Channels[LY])
	assert.Equal(t, int8(100), f.Channels[SA], "switches hold in custom failsafe")
	assert.Equal(t, uint64(1), m.Losses())
	assert.Zero(t, m.ConnectedFor(60))
}

func TestLinkMonitorReceiverDisconnect(t *testing.T) {
	m := NewLinkMonitor(DefaultLinkConfig())
	m.Observe(baseline, true, 0)
	m.Observe(baseline, false, 4)

	assert.False(t, m.Alive(4))
	assert.False(t, m.Update(4).Connected)

	m.Observe(baseline, true, 8)
	assert.True(t, m.Alive(8))
	assert.Zero(t, m.ConnectedFor(8))
	assert.Equal(t, uint64(1), m.Losses())
}

func TestLinkMonitorFailsafeModes(t *testing.T) {
	in := Channels{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	m := NewLinkMonitor(LinkConfig{TimeoutMS: 10, Failsafe: FailsafeZero})
	m.Observe(in, true, 0)
	assert.Equal(t, Channels{}, m.Update(11).Channels)

	m = NewLinkMonitor(LinkConfig{TimeoutMS: 10, Failsafe: FailsafeHold})
	m.Observe(in, true, 0)
	f := m.Update(11)
	assert.False(t, f.Connected)
	assert.Equal(t, in, f.Channels)
}

func TestLinkMonitorTickWraparound(t *testing.T) {
	m := NewLinkMonitor(DefaultLinkConfig())
	m.Observe(baseline, true, 0xFFFFFFF0)
	assert.True(t, m.Alive(10))
	assert.True(t, m.Update(10).Connected)
	assert.False(t, m.Alive(40))
}

func TestFailsafeModeText(t *testing.T) {
	var m FailsafeMode
	assert.NoError(t, m.UnmarshalText([]byte("Zero")))
	assert.Equal(t, FailsafeZero, m)
	assert.Error(t, m.UnmarshalText([]byte("panic")))

	b, err := FailsafeCustom.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "custom", string(b))
	_, err = FailsafeMode(7).MarshalText()
	assert.Error(t, err)
}

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel("ly")
	require.NoError(t, err)
	assert.Equal(t, LY, ch)

	ch, err = ParseChannel("SL")
	require.NoError(t, err)
	assert.Equal(t, SL, ch)

	_, err = ParseChannel("ch11")
	assert.Error(t, err)
}
