package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jo-hoe/cmsbuild/internal/core"
)

func getConfigPath() string {
	// First check if config path is provided via environment variable
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath
	}

	// Default to config.yaml in current working directory
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return filepath.Join(cwd, "config.yaml")
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := getConfigPath()
	config, err := core.LoadConfigOrDefault(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: core.ParseLogLevel(config.LogLevel),
	})))

	coreService, err := core.NewCoreService(config)
	if err != nil {
		slog.Error("failed to initialize core service", "error", err)
		return 1
	}
	defer func() {
		if err := coreService.Close(); err != nil {
			slog.Warn("core service close error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Remote failures are part of the report; only a failed run is an error
	report, err := coreService.Build(ctx, nil)
	if err != nil {
		slog.Error("build failed", "error", err)
		return 1
	}
	slog.Info("build completed", "run_id", report.RunID, "status", report.Status)
	return 0
}
