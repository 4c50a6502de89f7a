package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"echo/internal/logging"
	"echo/internal/otel"
	"echo/internal/version"
)

func runServer(args []string) int {
	return runServerWith(args, os.Stdout, os.Stderr)
}

func runServerWith(args []string, out io.Writer, errOut io.Writer) int {
	cfg, err := loadConfig(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(errOut, err)
		return 1
	}
	if cfg.ShowVersion {
		fmt.Fprintln(out, version.GetVersionInfo().String())
		return 0
	}

	logBuffer := logging.NewLogBuffer(logging.DefaultBufferSize)
	logger := logging.NewLoggerWithOutput(logBuffer, cfg.LogLevel, errOut)
	logVersionInfo(logger)
	logConfigSources(logger, cfg)

	tracingOptions := otel.OptionsFromEnv()
	tracingOptions.ServiceVersion = version.Version
	shutdownTracing, err := otel.SetupTracing(context.Background(), tracingOptions)
	if err != nil {
		logger.Warn("tracing setup failed", map[string]string{logging.FieldError: err.Error()})
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), phaseTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown failed", map[string]string{logging.FieldError: err.Error()})
		}
	}()

	stopCtx, stopCancel := context.WithCancel(context.Background())
	defer stopCancel()
	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	stopSignals := watchShutdownSignals(logger, stopCancel, signalCh)
	defer stopSignals()

	return serve(stopCtx, cfg, logger, serverDeps{})
}

// serve starts the pipeline, blocks until stop is done and shuts it down.
func serve(stop context.Context, cfg Config, logger *logging.Logger, deps serverDeps) int {
	server, err := startEchoServer(stop, cfg, logger, deps)
	if err != nil {
		logger.Error("echo server failed to start", map[string]string{
			logging.FieldError: err.Error(),
		})
		return 1
	}
	logger.Info("echo server running", map[string]string{
		"watchers": fmt.Sprint(len(server.watchers.ActiveNames())),
	})

	exitCode := 0
	if err := runUntilStopped(stop, cfg, server, logger); err != nil {
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), phaseTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		exitCode = 1
	}
	logger.Info("echo server stopped", nil)
	return exitCode
}

func logVersionInfo(logger *logging.Logger) {
	info := version.GetVersionInfo()
	fields := map[string]string{
		"version": info.Version,
	}
	if info.GitCommit != "" {
		fields["commit"] = info.GitCommit
	}
	if info.Built != "" {
		fields["built"] = info.Built
	}
	logger.Info("echo starting", fields)
}
