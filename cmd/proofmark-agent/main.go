package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/proofmark/proofmark/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML configuration file")
	targetDir := flag.String("target-dir", "", "Circuit target directory to watch")
	socketPath := flag.String("socket", "", "Unix socket path for IPC")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")

	flag.Parse()

	var level slog.Level
	switch strings.ToLower(*logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	cfg, err := buildConfig(*configPath, *targetDir, *socketPath)
	if err != nil {
		logger.Error("failed to build configuration", "error", err)
		os.Exit(1)
	}

	paths := config.DefaultPaths()
	if err := paths.EnsureDirectories(); err != nil {
		logger.Error("failed to create directories", "error", err)
		os.Exit(1)
	}

	daemon, err := NewDaemon(cfg, logger)
	if err != nil {
		logger.Error("failed to create daemon", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	logger.Info("starting proofmark-agent",
		"targetDir", cfg.Circuit.TargetDir,
		"socket", cfg.Agent.SocketPath,
	)

	if err := daemon.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("daemon error", "error", err)
		os.Exit(1)
	}

	logger.Info("daemon stopped gracefully")
}

// buildConfig loads the configuration file, if any, and applies flag
// overrides. Flags win over file settings.
func buildConfig(configPath, targetDir, socketPath string) (*config.Config, error) {
	if configPath == "" {
		configPath = config.DefaultPaths().ConfigFile
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	if targetDir != "" {
		cfg.Circuit.TargetDir = config.ExpandPath(targetDir)
	}
	if socketPath != "" {
		cfg.Agent.SocketPath = config.ExpandPath(socketPath)
	}
	return cfg, nil
}
