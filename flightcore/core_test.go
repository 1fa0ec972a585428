package flightcore

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quad-flight-core/arming"
	"quad-flight-core/cascade"
	"quad-flight-core/config"
	"quad-flight-core/propulsion"
	"quad-flight-core/rc"
	"quad-flight-core/scheduler"
	"quad-flight-core/sensors"
	"quad-flight-core/telemetry"
	"quad-flight-core/utils"
)

type motorLog struct {
	mu     sync.Mutex
	last   propulsion.Command
	writes int
}

func (m *motorLog) Write(c propulsion.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = c
	m.writes++
	return nil
}

func (m *motorLog) Last() propulsion.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type statusLog struct {
	snaps []telemetry.Snapshot
	err   error
}

func (s *statusLog) PublishStatus(snap telemetry.Snapshot) error {
	s.snaps = append(s.snaps, snap)
	return s.err
}

var idleSticks = rc.Channels{
	rc.RX: 0, rc.RY: 0, rc.LY: -100, rc.LX: 0,
	rc.SA: -100, rc.SB: -100, rc.SC: 0, rc.SD: -100, rc.SE: -100, rc.SL: 0,
}

// harness plays the receiver (250 Hz) and the orientation sensor (200 Hz) against a core
// driven by a manual millisecond clock.
type harness struct {
	t      *testing.T
	clk    *scheduler.ManualClock
	core   *Core
	motors *motorLog
	status *statusLog
	exp    *telemetry.Exporter
	logBuf *bytes.Buffer

	sticks    rc.Channels
	connected bool
	rcLive    bool
	lastRC    uint32

	att     sensors.Orientation
	imuLive bool
	lastIMU uint32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		clk:       scheduler.NewManualClock(1000),
		motors:    &motorLog{},
		status:    &statusLog{},
		exp:       telemetry.NewExporter(),
		logBuf:    &bytes.Buffer{},
		sticks:    idleSticks,
		connected: true,
		rcLive:    true,
		att:       sensors.Orientation{Online: true, Valid: true},
		imuLive:   true,
	}
	log := utils.NewLogger(h.logBuf, utils.INFO)
	core, err := New(config.Default(), h.clk, h.motors, log, Options{Exporter: h.exp, Status: h.status})
	require.NoError(t, err)
	require.NoError(t, core.Init())
	h.core = core
	return h
}

func (h *harness) run(ms int) {
	for i := 0; i < ms; i++ {
		now := h.clk.Add(1)
		if h.rcLive && now%4 == 0 {
			h.core.RC.Store(rc.Frame{Channels: h.sticks, Connected: h.connected}, now)
			h.lastRC = now
		}
		if h.imuLive && now%5 == 0 {
			h.core.Attitude.Store(h.att, now)
			h.lastIMU = now
		}
		h.core.Tick()
	}
}

// runUntil ticks until the core reaches state, at most limit milliseconds.
func (h *harness) runUntil(state arming.State, limit int) bool {
	for i := 0; i < limit; i++ {
		if h.core.State() == state {
			return true
		}
		h.run(1)
	}
	return h.core.State() == state
}

func (h *harness) set(ch rc.Channel, v int8) { h.sticks[ch] = v }

// arm performs the arm gesture and leaves the vehicle ARMED with the safety switches off.
func (h *harness) arm() {
	h.t.Helper()
	h.run(600)
	require.Equal(h.t, arming.Disarmed, h.core.State())

	h.set(rc.LX, 100)
	h.run(50)
	require.Equal(h.t, arming.PreArm, h.core.State())
	h.run(2050)
	require.Equal(h.t, arming.PreArm, h.core.State())

	h.set(rc.LX, 0)
	h.run(50)
	require.Equal(h.t, arming.Armed, h.core.State())
}

// fly arms, closes the safety switches and sets half throttle.
func (h *harness) fly() {
	h.t.Helper()
	h.arm()
	h.set(rc.SA, 100)
	h.set(rc.SD, 100)
	h.run(50)
	h.set(rc.LY, 0)
	h.run(50)
	require.Equal(h.t, propulsion.Command{50, 50, 50, 50}, h.motors.Last())
}

func TestArmAndFly(t *testing.T) {
	h := newHarness(t)
	h.arm()
	assert.True(t, h.core.PID().ArmFlag())
	assert.Equal(t, propulsion.Command{}, h.motors.Last(), "safety switches still off")

	h.set(rc.SA, 100)
	h.set(rc.SD, 100)
	h.run(50)
	h.set(rc.LY, 0)
	h.run(50)
	assert.Equal(t, propulsion.Command{50, 50, 50, 50}, h.motors.Last())
	assert.Equal(t, 50.0, h.core.PID().Outputs().Throttle)

	// a nose-down reading is corrected through the cascade
	h.att.Pitch = 5
	h.run(100)
	m := h.motors.Last()
	assert.Less(t, m[propulsion.FL], 50.0)
	assert.Greater(t, m[propulsion.FR], 50.0)
	assert.Equal(t, m[propulsion.FL], m[propulsion.BL])
}

func TestSafetySwitchGatesMotors(t *testing.T) {
	h := newHarness(t)
	h.fly()

	h.set(rc.SD, -100)
	h.run(30)
	assert.Equal(t, arming.Armed, h.core.State())
	assert.Equal(t, propulsion.Command{}, h.motors.Last())
}

func TestLinkTimeoutForcesEmergencyFromSafetyTask(t *testing.T) {
	h := newHarness(t)
	h.fly()

	h.rcLive = false
	h.run(100)
	require.Equal(t, arming.Emergency, h.core.State())

	entered := h.core.arm.EnteredAt()
	assert.GreaterOrEqual(t, entered-h.lastRC, uint32(45))
	assert.LessOrEqual(t, entered-h.lastRC, uint32(46))
	assert.Equal(t, propulsion.Command{}, h.motors.Last())
	assert.False(t, h.core.PID().ArmFlag())
	assert.Equal(t, cascade.Outputs{}, h.core.PID().Outputs())
}

func TestReceiverDisconnectForcesEmergency(t *testing.T) {
	h := newHarness(t)
	h.fly()

	h.connected = false
	require.True(t, h.runUntil(arming.Emergency, 10))
	assert.LessOrEqual(t, h.core.arm.EnteredAt()-h.lastRC, uint32(2))
	assert.Equal(t, propulsion.Command{}, h.motors.Last())
}

func TestInvalidOrientationForcesEmergency(t *testing.T) {
	h := newHarness(t)
	h.fly()

	h.att.Valid = false
	require.True(t, h.runUntil(arming.Emergency, 10))
	assert.LessOrEqual(t, h.core.arm.EnteredAt()-h.lastIMU, uint32(2))
}

func TestTiltForcesEmergency(t *testing.T) {
	h := newHarness(t)
	h.fly()

	h.att.Roll = -70
	h.run(200)
	assert.Equal(t, arming.Emergency, h.core.State())
	assert.Equal(t, propulsion.Command{}, h.motors.Last())
	assert.Equal(t, uint64(1), h.core.Emergencies())
}

func TestOutOfRangeStickForcesEmergency(t *testing.T) {
	h := newHarness(t)
	h.fly()

	h.set(rc.RX, 120)
	h.run(20)
	assert.Equal(t, arming.Emergency, h.core.State())
	assert.Contains(t, h.logBuf.String(), "control input out of range")
}

func TestEmergencyDwellThenDisarmed(t *testing.T) {
	h := newHarness(t)
	h.arm()

	// a single step from centre to the low rail looks like a dropped frame and is held
	h.set(rc.LX, -100)
	h.run(30)
	require.Equal(t, arming.Armed, h.core.State())
	assert.Equal(t, int8(0), h.core.Channels()[rc.LX])

	// through an intermediate position the disarm gesture is accepted
	h.set(rc.LX, -60)
	h.run(20)
	require.Equal(t, int8(-60), h.core.Channels()[rc.LX])
	h.set(rc.LX, -100)
	h.run(20)
	require.Equal(t, arming.Emergency, h.core.State())
	entered := h.core.arm.EnteredAt()

	// gesture released immediately
	h.set(rc.LX, 0)
	h.run(int(entered + 499 - h.clk.Millis()))
	assert.Equal(t, arming.Emergency, h.core.State())
	h.run(11)
	assert.Equal(t, arming.Disarmed, h.core.State())
}

func TestRateModeSwitch(t *testing.T) {
	h := newHarness(t)
	h.run(600)
	assert.Equal(t, cascade.ModeAngle, h.core.PID().Mode())

	h.set(rc.SB, 100)
	h.run(20)
	assert.Equal(t, cascade.ModeRate, h.core.PID().Mode())
	h.set(rc.SB, 0)
	h.run(20)
	assert.Equal(t, cascade.ModeAngle, h.core.PID().Mode())
	assert.Contains(t, h.logBuf.String(), "flight mode RATE")
}

func TestShutdownStopsMotors(t *testing.T) {
	h := newHarness(t)
	h.fly()
	require.NoError(t, h.core.Shutdown())
	assert.Equal(t, arming.Emergency, h.core.State())
	assert.Equal(t, propulsion.Command{}, h.motors.Last())
}

func TestTelemetryAndStatus(t *testing.T) {
	h := newHarness(t)
	h.arm()
	h.run(1000)

	require.NotEmpty(t, h.status.snaps)
	last := h.status.snaps[len(h.status.snaps)-1]
	assert.Equal(t, arming.Armed, last.State)
	assert.True(t, last.LinkAlive)
	assert.NotEmpty(t, last.Tasks)

	assert.Equal(t, 1.0, gaugeValue(t, h.exp, "fc_arm_state", "ARMED"))
	assert.Equal(t, 1.0, gaugeValue(t, h.exp, "fc_link_alive", ""))

	logs := h.logBuf.String()
	assert.Contains(t, logs, "DISARMED -> PRE_ARM")
	assert.Contains(t, logs, "PRE_ARM -> ARMED")
	assert.Contains(t, logs, "state=ARMED")

	stats := h.core.Tasks()
	require.Len(t, stats, 4)
	assert.Equal(t, "safety", stats[0].Name)
	assert.Greater(t, stats[0].Runs, stats[1].Runs)
}

func TestStatusPublishErrorIsLogged(t *testing.T) {
	h := newHarness(t)
	h.status.err = errors.New("bus off")
	h.run(200)
	assert.Contains(t, h.logBuf.String(), "bus off")
	assert.Equal(t, arming.Disarmed, h.core.State())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.ControlHz = 0
	_, err := New(cfg, scheduler.NewManualClock(0), &motorLog{}, utils.NewLogger(nil, utils.INFO), Options{})
	assert.Error(t, err)
}

func gaugeValue(t *testing.T, e *telemetry.Exporter, name, label string) float64 {
	t.Helper()
	mfs, err := e.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" {
				return m.GetGauge().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{%s} not found", name, label)
	return 0
}
