package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quad-flight-core/arming"
	"quad-flight-core/config"
	"quad-flight-core/propulsion"
	"quad-flight-core/telemetry"
	"quad-flight-core/utils"
)

func TestSampleScenario(t *testing.T) {
	scen, err := LoadScenario("arm_and_hover.json")
	require.NoError(t, err)

	var buf bytes.Buffer
	res, err := RunBench(scen, config.Default(), utils.NewLogger(&buf, utils.INFO), telemetry.NewExporter())
	require.NoError(t, err)

	assert.Equal(t, uint32(7000), res.DurationMS)
	assert.Equal(t, arming.Disarmed, res.FinalState)
	assert.Equal(t, uint64(1), res.Emergencies)
	assert.InDelta(t, 50.0, res.PeakMotor, 1e-9)
	assert.Equal(t, propulsion.Command{}, res.LastMotors)

	var path []arming.State
	for _, tr := range res.Transitions {
		path = append(path, tr.To)
	}
	assert.Equal(t, []arming.State{arming.PreArm, arming.Armed, arming.Emergency, arming.Disarmed}, path)
	require.Len(t, res.Transitions, 4)
	assert.Equal(t, arming.ReasonLinkLost, res.Transitions[2].Reason)
	assert.Contains(t, buf.String(), `Bench "arm_and_hover" done`)
}

func TestScenarioEval(t *testing.T) {
	scen, err := LoadScenario("arm_and_hover.json")
	require.NoError(t, err)

	s := scen.Eval(1.0)
	assert.Equal(t, 1, s.SegmentIdx)
	assert.Equal(t, int8(100), s.Frame.Channels[3])
	assert.Equal(t, int8(-100), s.Frame.Channels[2])
	assert.True(t, s.Frame.Connected)
	assert.False(t, s.RCSilent)

	s = scen.Eval(6.1)
	assert.True(t, s.RCSilent)
	assert.Equal(t, int8(0), s.Frame.Channels[2])

	// open-ended last segment
	s = scen.Eval(6.9)
	assert.Equal(t, 6, s.SegmentIdx)
	assert.Equal(t, int8(-100), s.Frame.Channels[4])
}

func TestParseScenarioRejects(t *testing.T) {
	cases := map[string]string{
		"no duration":     `{"timing":{"duration_s":0}}`,
		"unknown channel": `{"timing":{"duration_s":1},"defaults":{"channels":{"CH11":0}}}`,
		"bad segment":     `{"timing":{"duration_s":1},"segments":[{"t0":0.5,"t1":0.2}]}`,
		"unknown field":   `{"timing":{"duration_s":1},"wind":3}`,
	}
	for name, js := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScenario([]byte(js))
			assert.Error(t, err)
		})
	}
}

func TestBenchAttitudeSilenceTripsEmergency(t *testing.T) {
	scen, err := ParseScenario([]byte(`{
		"timing": {"duration_s": 3.5},
		"defaults": {
			"channels": {"LY": -100, "SA": -100, "SB": -100, "SD": -100, "SE": -100},
			"link_connected": true,
			"attitude": {"online": true, "valid": true}
		},
		"segments": [
			{"t0": 0.6, "t1": 2.75, "channels": {"LX": 100}},
			{"t0": 3.0, "t1": -1, "attitude": {"silent": true}}
		]
	}`))
	require.NoError(t, err)

	res, err := RunBench(scen, config.Default(), utils.NewLogger(nil, utils.INFO), nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Transitions)
	last := res.Transitions[len(res.Transitions)-1]
	assert.Equal(t, arming.Emergency, last.To)
	assert.Equal(t, arming.ReasonIMUFault, last.Reason)
	assert.Equal(t, arming.Emergency, res.FinalState)
}
