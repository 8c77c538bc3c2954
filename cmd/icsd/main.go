package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/icsim/simcore/internal/orchestrator"
	"github.com/icsim/simcore/pkg/config"
	"github.com/icsim/simcore/pkg/logger"
	"github.com/icsim/simcore/pkg/utils"
)

func main() {
	var configPath string
	var scenarioPath string
	var logLevel string

	flag.StringVar(&configPath, "config", "config/config.yaml", "path to the device/network configuration file")
	flag.StringVar(&scenarioPath, "scenario", "config/scenario.yaml", "path to the physics scenario overlay file")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger.SetDefault(logger.NewText(logLevel, os.Stdout))

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	if cfg.LogLevel != "" {
		logLevel = cfg.LogLevel
		logger.SetDefault(logger.NewText(logLevel, os.Stdout))
	}

	var scenario *config.Scenario
	if scenarioPath != "" {
		scenario, err = config.LoadScenario(scenarioPath)
		if err != nil {
			logger.Error("failed to load scenario", "path", scenarioPath, "error", err)
			os.Exit(1)
		}
	}

	bootStart := time.Now()
	orch, err := orchestrator.New(cfg, scenario, logger.Default)
	if err != nil {
		logger.Error("boot failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(); err != nil {
		logger.Error("start failed", "error", err)
		os.Exit(1)
	}
	logger.Info("kernel started",
		"clock_mode", cfg.Simulation.ClockMode,
		"devices", len(cfg.Devices),
		"boot_time", utils.FormatDuration(time.Since(bootStart)))

	<-ctx.Done()
	logger.Info("shutdown requested")

	done := make(chan error, 1)
	go func() { done <- orch.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", "error", err)
		}
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out, exiting anyway")
	}
}
