// Command zhal-bridge runs the radio core IPC bridge.
//
// It connects to the radio core, logs every event it delivers and optionally
// offers an interactive console for sending requests by hand.
//
// Usage:
//
//	zhal-bridge [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-log-level string     Log level: debug, info, warn, error (overrides config)
//	-protocol-log string  Capture file for protocol events (overrides config)
//	-interactive          Enable interactive command mode
//
// Examples:
//
//	# Run against the local radio core
//	zhal-bridge
//
//	# Capture traffic and poke devices by hand
//	zhal-bridge -config /etc/zhal/bridge.yaml -protocol-log bridge.zlog -interactive
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zhal-ipc/zhal-go/cmd/zhal-bridge/interactive"
	"github.com/zhal-ipc/zhal-go/internal/config"
	"github.com/zhal-ipc/zhal-go/pkg/bridge"
	"github.com/zhal-ipc/zhal-go/pkg/log"
	"github.com/zhal-ipc/zhal-go/pkg/wire"
)

var (
	configFile      = flag.String("config", "", "Configuration file path (YAML)")
	logLevel        = flag.String("log-level", "", "Log level: debug, info, warn, error")
	protocolLog     = flag.String("protocol-log", "", "Capture file for protocol events")
	interactiveMode = flag.Bool("interactive", false, "Enable interactive command mode")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "zhal-bridge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *protocolLog != "" {
		cfg.Logging.ProtocolLog = *protocolLog
	}
	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	var console *interactive.Console
	if *interactiveMode {
		console, err = interactive.New()
		if err != nil {
			return err
		}
		// Log through readline to avoid interfering with input
		out = console.Stdout()
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	bcfg, err := cfg.ToBridgeConfig()
	if err != nil {
		return err
	}
	bcfg.Logger = logger
	bcfg.Handler = loggingHandler{logger: logger.With("component", "events")}
	bcfg.OnResponse = func(responseType string, code wire.ResultCode) {
		if !code.IsSuccess() {
			logger.Warn("radio core reported failure", "response_type", responseType, "code", code.String())
		}
	}

	if cfg.Logging.ProtocolLog != "" {
		fileLogger, err := log.NewFileLogger(cfg.Logging.ProtocolLog)
		if err != nil {
			return fmt.Errorf("failed to open protocol log: %w", err)
		}
		defer fileLogger.Close()
		capture := []log.Logger{fileLogger}
		if level <= slog.LevelDebug {
			capture = append(capture, log.NewSlogAdapter(logger))
		}
		bcfg.ProtocolLogger = log.NewMultiLogger(capture...)
		logger.Info("protocol capture enabled", "path", fileLogger.Path())
	}

	b, err := bridge.New(bcfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		return err
	}
	logger.Info("bridge running",
		"radio_core", bcfg.RadioCoreAddress(),
		"event_addr", b.EventAddr().String(),
		"codec", bcfg.Codec.Name())

	if console != nil {
		go console.Run(ctx, cancel, b)
	}

	// Wait for shutdown signal or context cancellation
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
		// Context was cancelled (e.g., by interactive quit command)
	}

	logger.Info("shutting down")
	cancel()
	return b.Stop()
}
