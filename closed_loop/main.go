package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"quad-flight-core/config"
	"quad-flight-core/telemetry"
	"quad-flight-core/utils"
)

func main() {
	var (
		cfgPath  = flag.String("config", "", "Flight configuration YAML (defaults when empty)")
		iface    = flag.String("iface", "vcan0", "SocketCAN interface name")
		mapPath  = flag.String("map", "", "Path to a can_map.csv overriding the built-in map")
		scenPath = flag.String("scenario", "", "Scenario JSON; runs a bench replay instead of the CAN loop")
		metrics  = flag.String("metrics", ":9108", "Prometheus listen address, empty to disable")
		logPath  = flag.String("logfile", "flight_core.log", "Log file")
		logLevel = flag.String("log", "info", "trace|debug|info|warn|error|critical")
	)
	flag.Parse()

	log, err := utils.NewFileLogger(*logPath, utils.ParseLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open " + *logPath + ": " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	fc, err := config.Load(*cfgPath)
	if err != nil {
		log.Critical("Config: %v", err)
		os.Exit(1)
	}

	if *scenPath != "" {
		scen, err := LoadScenario(*scenPath)
		if err != nil {
			log.Critical("Scenario: %v", err)
			os.Exit(1)
		}
		if _, err := RunBench(scen, fc, log, telemetry.NewExporter()); err != nil {
			log.Critical("Bench failed: %v", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, RunnerConfig{
		Interface:   *iface,
		MapPath:     *mapPath,
		MetricsAddr: *metrics,
		Flight:      fc,
	}, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}
