// Package main implements the entry point for the Synapse hub daemon.
// The hub maintains authenticated connections to edge devices, dispatches
// commands with retry, buffers telemetry streams, and fans events out to
// subscribers and the optional NATS bridge.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/funkyflowstudios/synapse-hub-sub000/config"
	"github.com/funkyflowstudios/synapse-hub-sub000/engine"
	"github.com/funkyflowstudios/synapse-hub-sub000/event"
	"github.com/funkyflowstudios/synapse-hub-sub000/metric"
	"github.com/funkyflowstudios/synapse-hub-sub000/pkg/tlsutil"
	"github.com/funkyflowstudios/synapse-hub-sub000/transport"
	"github.com/funkyflowstudios/synapse-hub-sub000/wire"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "synapse-hub"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "connectors", len(cfg.Connectors))
		return nil
	}

	eng, err := setupEngine(cfg)
	if err != nil {
		return err
	}

	return runWithSignalHandling(eng, cfg, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting Synapse hub",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, false, nil
}

// setupEngine wires the dialer, metrics, and event logging into an engine.
func setupEngine(cfg *config.Config) (*engine.Engine, error) {
	tlsCfg, err := tlsutil.ClientConfig(cfg.Security.Client)
	if err != nil {
		return nil, fmt.Errorf("client TLS config: %w", err)
	}

	dialer := &transport.WebSocketDialer{
		HandshakeTimeout: 10 * time.Second,
		RatePerSecond:    cfg.Transport.RatePerSecond,
		RateBurst:        cfg.Transport.RateBurst,
		WriteTimeout:     cfg.Transport.WriteTimeout.Std(),
		TLSConfig:        tlsCfg,
	}

	metricsRegistry := metric.NewMetricsRegistry()

	eng := engine.New(cfg, dialer,
		engine.WithLogger(slog.Default()),
		engine.WithMetricsRegistry(metricsRegistry),
	)

	// Surface alerts in the hub's own log even with no external
	// subscribers attached.
	eng.SubscribeAlerts("", func(a event.AlertRaised) {
		slog.Warn("device alert",
			"connector", a.ConnectorID,
			"code", a.Code,
			"severity", a.Severity,
			"message", a.Message)
	})

	return eng, nil
}

// connectAll opens the links declared in the config. Failures are logged
// and skipped so one unreachable device does not block the rest.
func connectAll(ctx context.Context, eng *engine.Engine, specs []config.ConnectorSpec) {
	for _, spec := range specs {
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		state, err := eng.Connect(connectCtx, spec.ID, spec.Endpoint, wire.Credentials{
			Token:  spec.Token,
			Secret: spec.Secret,
		})
		cancel()
		if err != nil {
			slog.Error("Connector failed to connect", "connector", spec.ID, "error", err)
			continue
		}
		slog.Info("Connector online", "connector", spec.ID, "state", state.String())
	}
}

// runWithSignalHandling starts the engine and handles shutdown signals
func runWithSignalHandling(eng *engine.Engine, cfg *config.Config, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := eng.Start(signalCtx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	connectAll(signalCtx, eng, cfg.Connectors)
	slog.Info("Synapse hub started", "connectors", len(cfg.Connectors))

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := eng.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	slog.Info("Synapse hub stopped cleanly")
	return nil
}
