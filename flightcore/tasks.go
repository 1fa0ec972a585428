package flightcore

import (
	"time"

	"github.com/dustin/go-humanize"

	"quad-flight-core/arming"
	"quad-flight-core/cascade"
	"quad-flight-core/rc"
	"quad-flight-core/sensors"
	"quad-flight-core/utils"
)

// safetyTask runs faster than the control loop and reads the mailboxes directly, so a lost link
// or orientation sensor stops the motors without waiting for the next control tick.
func (c *Core) safetyTask(now uint32) {
	if c.arm.State() != arming.Armed {
		return
	}

	f, stamp, ok := c.RC.Peek()
	if !ok || !f.Connected || utils.Elapsed(stamp, now) > c.cfg.Link.TimeoutMS {
		c.emergency(arming.ReasonLinkLost, now)
		return
	}
	att, astamp, aok := c.Attitude.Peek()
	if !c.imu.Trusted(att, astamp, now, aok) {
		c.emergency(arming.ReasonIMUFault, now)
	}
}

// controlTask is the 100 Hz pipeline: inputs, arming, cascade, mixer.
func (c *Core) controlTask(now uint32) {
	c.refreshInputs(now)

	c.arm.Update(arming.Inputs{
		LX:            c.channels[rc.LX],
		LY:            c.channels[rc.LY],
		LinkConnected: c.raw.Connected,
		IMUOnline:     c.attitude.Online,
		IMUValid:      c.attitude.Valid,
		Pitch:         c.attitude.Pitch,
		Roll:          c.attitude.Roll,
	}, now)

	imuOK := c.attitude.Online && c.attitude.Valid
	if c.arm.State() == arming.Armed && (!c.raw.Connected || !imuOK) {
		reason := arming.ReasonLinkLost
		if c.raw.Connected {
			reason = arming.ReasonIMUFault
		}
		c.emergency(reason, now)
		return
	}

	if !c.controlAllowed() {
		c.stopMotors()
		return
	}

	ch := c.channels
	if !ch.SticksInRange() {
		c.log.Warn("stick out of range: %v", ch.Sticks())
		c.emergency(arming.ReasonInvalidInput, now)
		return
	}

	a := c.attitude
	fault := c.pid.UpdateAttitude(
		c.pid.StickToTarget(float64(ch[rc.RY])),
		c.pid.StickToTarget(float64(ch[rc.RX])),
		c.pid.StickToRate(float64(ch[rc.LX])),
		a.Pitch, a.Roll, a.Yaw,
		a.GX, a.GY, a.GZ,
	)
	if fault {
		c.emergency(arming.ReasonAttitudeFault, now)
		return
	}

	c.pid.SetThrottle(utils.Clamp((float64(ch[rc.LY])+100)/2, 0, 100))

	th := c.cfg.Flight.SafetySwitchThreshold
	if ch[rc.SA] <= th || ch[rc.SD] <= th {
		c.stopMotors()
		return
	}
	out := c.pid.Outputs()
	if _, err := c.mixer.Mix(out.Throttle, out.Pitch, out.Roll, out.Yaw); err != nil {
		c.log.Error("mix: %v", err)
	}
}

func (c *Core) refreshInputs(now uint32) {
	if f, stamp, fresh := c.RC.Take(); fresh {
		c.link.Observe(f.Channels, f.Connected, stamp)
	}
	c.raw = c.link.Update(now)
	c.channels = c.validator.Process(c.raw)
	if c.validator.LastRejected() {
		c.log.Debug("rc frame rejected: raw=%v held=%v", c.raw.Channels, c.channels)
	}

	att, stamp, ok := c.Attitude.Peek()
	c.attitude = c.imu.Update(att, stamp, now, ok)

	flow, fstamp, fok := c.Flow.Peek()
	c.flow = flow
	c.flowOnline = sensors.FlowCurrent(flow, fstamp, now, fok)

	mode := cascade.ModeAngle
	if c.channels[rc.SB] >= c.cfg.Flight.RateModeThreshold {
		mode = cascade.ModeRate
	}
	if c.pid.SetMode(mode) {
		c.log.Info("flight mode %s", mode)
	}
}

func (c *Core) controlAllowed() bool {
	return c.arm.State() == arming.Armed &&
		c.pid.ArmFlag() &&
		c.attitude.Online && c.attitude.Valid &&
		c.raw.Connected
}

func (c *Core) telemetryTask(now uint32) {
	if c.opts.Exporter == nil && c.opts.Status == nil {
		return
	}
	snap := c.Snapshot()
	if c.opts.Exporter != nil {
		c.opts.Exporter.Update(snap)
	}
	if c.opts.Status != nil {
		if err := c.opts.Status.PublishStatus(snap); err != nil {
			c.log.Warn("status publish at %d ms: %v", now, err)
		}
	}
}

func (c *Core) statusTask(now uint32) {
	st := c.validator.Stats()
	uptime := time.Duration(utils.Elapsed(c.started, now)) * time.Millisecond
	out := c.pid.Outputs()
	c.log.Info("up %s state=%s mode=%s link=%v imu=%v/%v thr=%.1f rc_frames=%s rejected=%s link_losses=%d emergencies=%d",
		uptime.Truncate(time.Second), c.arm.State(), c.pid.Mode(),
		c.link.Alive(now), c.attitude.Online, c.attitude.Valid, out.Throttle,
		humanize.Comma(int64(st.Frames)), humanize.Comma(int64(st.RejectedFrames)),
		c.link.Losses(), c.emergencies)
}
