package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"quad-flight-core/rc"
	"quad-flight-core/sensors"
)

// Scenario scripts the radio and the orientation sensor for a bench run without CAN hardware.
type Scenario struct {
	Meta     ScenarioMeta      `json:"meta"`
	Timing   ScenarioTiming    `json:"timing"`
	Defaults BenchInputs       `json:"defaults"`
	Segments []ScenarioSegment `json:"segments"`
}

type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
}

type ScenarioTiming struct {
	DurationS float64 `json:"duration_s"`
	// Producer periods; zero selects the receiver's 4 ms and the sensor's 5 ms.
	RCPeriodMS       uint32 `json:"rc_period_ms,omitempty"`
	AttitudePeriodMS uint32 `json:"attitude_period_ms,omitempty"`
}

// BenchInputs is what the producers publish at a given instant.
type BenchInputs struct {
	Channels  map[string]int8 `json:"channels"`
	Connected bool            `json:"link_connected"`
	// RCSilent stops the receiver from publishing at all.
	RCSilent bool          `json:"rc_silent,omitempty"`
	Attitude AttitudeInput `json:"attitude"`
}

type AttitudeInput struct {
	Roll   float64 `json:"roll"`
	Pitch  float64 `json:"pitch"`
	Yaw    float64 `json:"yaw"`
	GX     float64 `json:"gx"`
	GY     float64 `json:"gy"`
	GZ     float64 `json:"gz"`
	Online bool    `json:"online"`
	Valid  bool    `json:"valid"`
	Silent bool    `json:"silent,omitempty"`
}

// ScenarioSegment overrides the defaults between T0 and T1 seconds. A negative T1 runs to the end.
// Only the channels named in the segment change; link and attitude fields replace the defaults
// when present.
type ScenarioSegment struct {
	T0        float64         `json:"t0"`
	T1        float64         `json:"t1"`
	Channels  map[string]int8 `json:"channels,omitempty"`
	Connected *bool           `json:"link_connected,omitempty"`
	RCSilent  *bool           `json:"rc_silent,omitempty"`
	Attitude  *AttitudeInput  `json:"attitude,omitempty"`
	Comment   string          `json:"comment,omitempty"`
}

// Sample is the evaluated producer output.
type Sample struct {
	Frame      rc.Frame
	RCSilent   bool
	Attitude   sensors.Orientation
	IMUSilent  bool
	SegmentIdx int
}

func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read file: %w", err)
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (Scenario, error) {
	var scen Scenario
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&scen); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal: %w", err)
	}

	if scen.Timing.DurationS <= 0 {
		return Scenario{}, fmt.Errorf("invalid duration_s: %f", scen.Timing.DurationS)
	}
	if scen.Timing.RCPeriodMS == 0 {
		scen.Timing.RCPeriodMS = 4
	}
	if scen.Timing.AttitudePeriodMS == 0 {
		scen.Timing.AttitudePeriodMS = 5
	}
	if err := checkChannels(scen.Defaults.Channels); err != nil {
		return Scenario{}, fmt.Errorf("defaults: %w", err)
	}
	for i, seg := range scen.Segments {
		if seg.T1 >= 0 && seg.T1 <= seg.T0 {
			return Scenario{}, fmt.Errorf("segment %d: t1 %.3f not after t0 %.3f", i, seg.T1, seg.T0)
		}
		if err := checkChannels(seg.Channels); err != nil {
			return Scenario{}, fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return scen, nil
}

func checkChannels(m map[string]int8) error {
	for name := range m {
		if _, err := rc.ParseChannel(name); err != nil {
			return err
		}
	}
	return nil
}

// Eval returns the producer output at t seconds. The first segment covering t wins.
func (s *Scenario) Eval(t float64) Sample {
	in := s.Defaults
	out := Sample{SegmentIdx: -1}

	var seg *ScenarioSegment
	for i := range s.Segments {
		t1 := s.Segments[i].T1
		if t1 < 0 {
			t1 = s.Timing.DurationS
		}
		if t >= s.Segments[i].T0 && t < t1 {
			seg = &s.Segments[i]
			out.SegmentIdx = i
			break
		}
	}

	applyChannels(&out.Frame.Channels, in.Channels)
	out.Frame.Connected = in.Connected
	out.RCSilent = in.RCSilent
	att := in.Attitude
	if seg != nil {
		applyChannels(&out.Frame.Channels, seg.Channels)
		if seg.Connected != nil {
			out.Frame.Connected = *seg.Connected
		}
		if seg.RCSilent != nil {
			out.RCSilent = *seg.RCSilent
		}
		if seg.Attitude != nil {
			att = *seg.Attitude
		}
	}

	out.Attitude = sensors.Orientation{
		Roll: att.Roll, Pitch: att.Pitch, Yaw: att.Yaw,
		GX: att.GX, GY: att.GY, GZ: att.GZ,
		Online: att.Online, Valid: att.Valid,
	}
	out.IMUSilent = att.Silent
	return out
}

func applyChannels(dst *rc.Channels, m map[string]int8) {
	for name, v := range m {
		// names were checked when the scenario was parsed
		ch, _ := rc.ParseChannel(name)
		dst[ch] = v
	}
}
