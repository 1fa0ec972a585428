// Package telemetry exposes a read-only view of the flight core as Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quad-flight-core/arming"
	"quad-flight-core/cascade"
	"quad-flight-core/propulsion"
	"quad-flight-core/rc"
	"quad-flight-core/scheduler"
	"quad-flight-core/sensors"
	"quad-flight-core/utils"
)

const namespace = "fc"

// Snapshot is everything the flight core reports on one telemetry tick.
type Snapshot struct {
	State   arming.State
	ArmFlag bool
	Fault   bool
	Mode    cascade.Mode
	Outputs cascade.Outputs
	Motors  propulsion.Command

	Attitude sensors.Orientation

	LinkAlive  bool
	LinkLosses uint64
	Channels   rc.Channels
	RC         rc.ValidatorStats

	Flow       sensors.OpticalFlow
	FlowOnline bool

	Tasks    []scheduler.TaskStats
	UptimeMS uint64
}

// Exporter owns its own registry so several cores (or tests) never collide on the default one.
type Exporter struct {
	reg *prometheus.Registry

	armState   *prometheus.GaugeVec
	armFlag    prometheus.Gauge
	fault      prometheus.Gauge
	rateMode   prometheus.Gauge
	output     *prometheus.GaugeVec
	motor      *prometheus.GaugeVec
	attitude   *prometheus.GaugeVec
	imuOnline  prometheus.Gauge
	imuValid   prometheus.Gauge
	linkAlive  prometheus.Gauge
	linkLosses prometheus.Gauge
	channel    *prometheus.GaugeVec
	rcFrames   *prometheus.GaugeVec
	flowHeight prometheus.Gauge
	flowOnline prometheus.Gauge
	taskRuns   *prometheus.GaugeVec
	uptime     prometheus.Gauge
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

func gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func NewExporter() *Exporter {
	e := &Exporter{
		reg:        prometheus.NewRegistry(),
		armState:   gaugeVec("arm_state", "1 for the current arming state.", "state"),
		armFlag:    gauge("arm_flag", "Propulsion arm flag."),
		fault:      gauge("fault", "Attitude fault flag."),
		rateMode:   gauge("rate_mode", "1 in RATE mode, 0 in ANGLE mode."),
		output:     gaugeVec("control_output", "Last control output.", "axis"),
		motor:      gaugeVec("motor_percent", "Last motor command in percent.", "motor"),
		attitude:   gaugeVec("attitude", "Conditioned orientation, degrees or deg/s.", "axis"),
		imuOnline:  gauge("imu_online", "Orientation sensor online."),
		imuValid:   gauge("imu_valid", "Orientation reading in range."),
		linkAlive:  gauge("link_alive", "Radio link alive."),
		linkLosses: gauge("link_losses", "Radio link drops since start."),
		channel:    gaugeVec("rc_channel", "Filtered RC channel value.", "channel"),
		rcFrames:   gaugeVec("rc_frames", "RC validator frame counters.", "kind"),
		flowHeight: gauge("flow_height_mm", "Optical flow height."),
		flowOnline: gauge("flow_online", "Optical flow sensor online."),
		taskRuns:   gaugeVec("task_runs", "Scheduler task executions.", "task"),
		uptime:     gauge("uptime_seconds", "Time since the core started."),
	}
	e.reg.MustRegister(
		e.armState, e.armFlag, e.fault, e.rateMode, e.output, e.motor, e.attitude,
		e.imuOnline, e.imuValid, e.linkAlive, e.linkLosses, e.channel, e.rcFrames,
		e.flowHeight, e.flowOnline, e.taskRuns, e.uptime,
	)
	return e
}

func (e *Exporter) Registry() *prometheus.Registry { return e.reg }

// Handler serves the exporter's registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{})
}

// Update publishes s.
func (e *Exporter) Update(s Snapshot) {
	for st := arming.Disarmed; st <= arming.Emergency; st++ {
		e.armState.WithLabelValues(st.String()).Set(utils.BoolToFloat(st == s.State))
	}
	e.armFlag.Set(utils.BoolToFloat(s.ArmFlag))
	e.fault.Set(utils.BoolToFloat(s.Fault))
	e.rateMode.Set(utils.BoolToFloat(s.Mode == cascade.ModeRate))

	e.output.WithLabelValues("throttle").Set(s.Outputs.Throttle)
	e.output.WithLabelValues("pitch").Set(s.Outputs.Pitch)
	e.output.WithLabelValues("roll").Set(s.Outputs.Roll)
	e.output.WithLabelValues("yaw").Set(s.Outputs.Yaw)

	for id := propulsion.FL; id < propulsion.MotorCount; id++ {
		e.motor.WithLabelValues(id.String()).Set(s.Motors[id])
	}

	a := s.Attitude
	e.attitude.WithLabelValues("roll").Set(a.Roll)
	e.attitude.WithLabelValues("pitch").Set(a.Pitch)
	e.attitude.WithLabelValues("yaw").Set(a.Yaw)
	e.attitude.WithLabelValues("gx").Set(a.GX)
	e.attitude.WithLabelValues("gy").Set(a.GY)
	e.attitude.WithLabelValues("gz").Set(a.GZ)
	e.imuOnline.Set(utils.BoolToFloat(a.Online))
	e.imuValid.Set(utils.BoolToFloat(a.Valid))

	e.linkAlive.Set(utils.BoolToFloat(s.LinkAlive))
	e.linkLosses.Set(float64(s.LinkLosses))
	for ch := rc.RX; ch < rc.NumChannels; ch++ {
		e.channel.WithLabelValues(ch.String()).Set(float64(s.Channels[ch]))
	}
	e.rcFrames.WithLabelValues("total").Set(float64(s.RC.Frames))
	e.rcFrames.WithLabelValues("rejected").Set(float64(s.RC.RejectedFrames))
	e.rcFrames.WithLabelValues("spike_held").Set(float64(s.RC.HeldSpikes))
	e.rcFrames.WithLabelValues("reconnect").Set(float64(s.RC.Reconnects))

	e.flowHeight.Set(s.Flow.HeightMM)
	e.flowOnline.Set(utils.BoolToFloat(s.FlowOnline))

	for _, t := range s.Tasks {
		e.taskRuns.WithLabelValues(t.Name).Set(float64(t.Runs))
	}
	e.uptime.Set(float64(s.UptimeMS) / 1000)
}
