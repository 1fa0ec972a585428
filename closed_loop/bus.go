package main

import (
	"context"
	"fmt"
	"time"

	"quad-flight-core/propulsion"
	"quad-flight-core/rc"
	"quad-flight-core/sensors"
	"quad-flight-core/telemetry"
	"quad-flight-core/utils"
)

// Mailboxes are the producer side of the flight core.
type Mailboxes struct {
	RC       *sensors.Mailbox[rc.Frame]
	Attitude *sensors.Mailbox[sensors.Orientation]
	Flow     *sensors.Mailbox[sensors.OpticalFlow]
}

// busDecoder assembles decoded bus frames into mailbox samples. The receiver splits its
// channels over RC_CHANNELS and RC_AUX; the orientation sensor splits angles and rates. The
// frame that carries the primary half publishes with the latest secondary half.
type busDecoder struct {
	aux   [2]int8
	link  bool
	rates [3]float64
}

func (d *busDecoder) apply(name string, v map[string]float64, now uint32, mb Mailboxes) bool {
	switch name {
	case "RC_CHANNELS":
		var f rc.Frame
		for i := 0; i < 8; i++ {
			f.Channels[i] = int8(utils.Clamp(v[fmt.Sprintf("ch%d", i+1)], -128, 127))
		}
		f.Channels[rc.SE] = d.aux[0]
		f.Channels[rc.SL] = d.aux[1]
		f.Connected = d.link
		mb.RC.Store(f, now)
	case "RC_AUX":
		d.aux[0] = int8(utils.Clamp(v["ch9"], -128, 127))
		d.aux[1] = int8(utils.Clamp(v["ch10"], -128, 127))
		d.link = v["link_connected"] != 0
	case "ATTITUDE_RATES":
		d.rates = [3]float64{v["gx"], v["gy"], v["gz"]}
	case "ATTITUDE_ANGLES":
		mb.Attitude.Store(sensors.Orientation{
			Roll: v["roll"], Pitch: v["pitch"], Yaw: v["yaw"],
			GX: d.rates[0], GY: d.rates[1], GZ: d.rates[2],
			Online: v["online"] != 0,
			Valid:  v["valid"] != 0,
		}, now)
	case "OPTICAL_FLOW":
		mb.Flow.Store(sensors.OpticalFlow{
			Online:   v["online"] != 0,
			Valid:    v["valid"] != 0,
			HeightMM: v["height_mm"],
			Quality:  uint8(v["quality"]),
			VelX:     v["vel_x"],
			VelY:     v["vel_y"],
		}, now)
	default:
		return false
	}
	return true
}

// publisher is satisfied by utils.FramePublisher.
type publisher interface {
	Publish(ctx context.Context, frameName string, values map[string]float64) error
}

// canPulses puts the ESC pulse widths on the bus as MOTOR_PWM.
type canPulses struct {
	pub     publisher
	timeout time.Duration
}

func (p *canPulses) WritePulses(pulses [propulsion.MotorCount]uint16) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.pub.Publish(ctx, "MOTOR_PWM", map[string]float64{
		"m1_us": float64(pulses[propulsion.FL]),
		"m2_us": float64(pulses[propulsion.FR]),
		"m3_us": float64(pulses[propulsion.BR]),
		"m4_us": float64(pulses[propulsion.BL]),
	})
}

// canStatus publishes FC_STATUS and FC_STATUS_2 from telemetry snapshots.
type canStatus struct {
	pub     publisher
	timeout time.Duration
}

func (s *canStatus) PublishStatus(snap telemetry.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.pub.Publish(ctx, "FC_STATUS", map[string]float64{
		"arm_state": float64(snap.State),
		"fault":     utils.BoolToFloat(snap.Fault),
		"arm_flag":  utils.BoolToFloat(snap.ArmFlag),
		"throttle":  snap.Outputs.Throttle,
		"pitch":     snap.Outputs.Pitch,
		"roll":      snap.Outputs.Roll,
	}); err != nil {
		return err
	}
	return s.pub.Publish(ctx, "FC_STATUS_2", map[string]float64{
		"yaw":            snap.Outputs.Yaw,
		"link_connected": utils.BoolToFloat(snap.LinkAlive),
		"attitude_valid": utils.BoolToFloat(snap.Attitude.Valid),
	})
}
