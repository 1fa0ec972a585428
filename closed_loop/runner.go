package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"quad-flight-core/config"
	"quad-flight-core/flightcore"
	"quad-flight-core/propulsion"
	"quad-flight-core/scheduler"
	"quad-flight-core/telemetry"
	"quad-flight-core/utils"
)

type RunnerConfig struct {
	Interface   string
	MapPath     string
	MetricsAddr string
	Flight      config.Config
}

// busFrames lists the frames the runner consumes and produces.
var busFrames = []string{
	"RC_CHANNELS", "RC_AUX", "ATTITUDE_ANGLES", "ATTITUDE_RATES", "OPTICAL_FLOW",
	"MOTOR_PWM", "FC_STATUS", "FC_STATUS_2",
}

// Runner drives the flight core from a 1 ms wall-clock ticker with CAN producers and actuators.
type Runner struct {
	cfg    RunnerConfig
	log    *utils.Logger
	cmap   *utils.CANMap
	writer utils.CANWriter
	reader utils.CANReader
	clock  *scheduler.TickClock
	core   *flightcore.Core
	exp    *telemetry.Exporter
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}
	if err := cmap.Require(busFrames...); err != nil {
		return nil, fmt.Errorf("can map: %w", err)
	}

	writer, err := utils.NewSocketCANWriter(ctx, cfg.Interface)
	if err != nil {
		return nil, err
	}
	reader, err := utils.NewSocketCANReader(ctx, cfg.Interface)
	if err != nil {
		_ = writer.Close()
		return nil, err
	}

	r := &Runner{
		cfg:    cfg,
		log:    log,
		cmap:   cmap,
		writer: writer,
		reader: reader,
		clock:  &scheduler.TickClock{},
		exp:    telemetry.NewExporter(),
	}

	pub := utils.NewFramePublisher(cmap, writer)
	out := propulsion.NewPulseOutput(cfg.Flight.Motors.Pulse, &canPulses{pub: pub, timeout: 2 * time.Millisecond})
	r.core, err = flightcore.New(cfg.Flight, r.clock, out, log.Named("core"), flightcore.Options{
		Exporter: r.exp,
		Status:   &canStatus{pub: pub, timeout: 5 * time.Millisecond},
	})
	if err != nil {
		r.Close()
		return nil, err
	}
	if err := r.core.Init(); err != nil {
		r.Close()
		return nil, fmt.Errorf("core init: %w", err)
	}
	return r, nil
}

func (r *Runner) Close() {
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
}

func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting flight core: iface=%s map=%s metrics=%q", r.cfg.Interface, r.cfg.MapPath, r.cfg.MetricsAddr)

	if r.cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: r.cfg.MetricsAddr, Handler: metricsMux(r.exp), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.log.Error("metrics server: %v", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	go r.receiveLoop(ctx)

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping motors")
			if err := r.core.Shutdown(); err != nil {
				r.log.Error("shutdown: %v", err)
			}
			r.log.Info("Stopped after %d ms, emergencies=%d", r.clock.Millis(), r.core.Emergencies())
			return ctx.Err()
		case <-ticker.C:
			// missed ticks are not replayed; the scheduler catches up from the clock
			r.clock.Advance()
			r.core.Tick()
		}
	}
}

func (r *Runner) receiveLoop(ctx context.Context) {
	r.log.Debug("RX loop started")
	defer r.log.Debug("RX loop stopped")

	mb := Mailboxes{RC: &r.core.RC, Attitude: &r.core.Attitude, Flow: &r.core.Flow}
	var dec busDecoder
	for {
		frame, err := r.reader.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				r.log.Warn("RX stopped: %v", err)
				return
			}
			r.log.Error("RX error: %v", err)
			continue
		}

		name, values, err := r.cmap.DecodeEinrideFrame(frame)
		if err != nil {
			r.log.Trace("RX id=0x%X ignored: %v", uint32(frame.ID), err)
			continue
		}
		if !dec.apply(name, values, r.clock.Millis(), mb) {
			r.log.Trace("RX %s not consumed", name)
		}
	}
}

func metricsMux(exp *telemetry.Exporter) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", exp.Handler())
	return mux
}
