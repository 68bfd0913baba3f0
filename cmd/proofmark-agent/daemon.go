package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/proofmark/proofmark/internal/artifacts"
	"github.com/proofmark/proofmark/internal/config"
	"github.com/proofmark/proofmark/internal/ipc"
	"github.com/proofmark/proofmark/internal/watch"
	"github.com/proofmark/proofmark/pkg/fingerprint"
)

// Daemon watches the circuit target directory and serves its fingerprint
// and the recovered artifacts over IPC.
type Daemon struct {
	cfg     *config.Config
	tracker *watch.Tracker
	store   *artifacts.Store
	logger  *slog.Logger

	events chan watch.FileEvent
}

// NewDaemon creates a daemon for cfg. A nil logger uses slog.Default().
func NewDaemon(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg.Agent.SocketPath == "" {
		return nil, errors.New("agent.socket_path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	debounce := time.Duration(cfg.Agent.DebounceMillis) * time.Millisecond
	d := &Daemon{
		cfg:     cfg,
		tracker: watch.NewTracker(cfg.Circuit.TargetDir, debounce, logger),
		store:   artifacts.NewStore(cfg.Circuit.ProofPath, cfg.Circuit.PublicParamsPath),
		logger:  logger,
		events:  make(chan watch.FileEvent, 100),
	}
	d.tracker.OnChange(d.onFingerprintChange)
	return d, nil
}

// onFingerprintChange flags stored artifacts that predate the new build.
func (d *Daemon) onFingerprintChange(old, current fingerprint.Fingerprint) {
	if _, err := os.Stat(d.cfg.Circuit.ProofPath); err == nil {
		d.logger.Warn("stored proof belongs to a previous circuit build; run verify to refresh",
			"proof", d.cfg.Circuit.ProofPath,
			"old", old.String(),
			"new", current.String(),
		)
	}
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(d.cfg.Agent.SocketPath), 0700); err != nil {
		return err
	}

	watcher, err := watch.NewWatcher(d.cfg.Circuit.TargetDir, d.events, watch.Options{
		Excludes: d.cfg.Agent.ExcludePatterns,
		OnError: func(err error) {
			d.logger.Error("watcher error", "error", err)
		},
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", d.cfg.Circuit.TargetDir, err)
	}
	defer watcher.Close()

	// A failed first computation is logged by the tracker; the next change
	// retries.
	d.tracker.Refresh()

	server, err := ipc.NewServer(d.cfg.Agent.SocketPath, &ipc.Service{
		Fingerprints: d.tracker,
		Artifacts:    d.store,
	}, d.logger)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		d.logger.Info("starting IPC server", "socket", d.cfg.Agent.SocketPath)
		serverErr <- server.Start()
	}()

	go watcher.Run(ctx)
	go d.tracker.Run(ctx, d.events)
	d.logger.Info("watching directory", "dir", d.cfg.Circuit.TargetDir)

	select {
	case <-ctx.Done():
		d.logger.Info("shutting down daemon")
	case err := <-serverErr:
		d.logger.Error("server error", "error", err)
		server.Stop()
		return err
	}

	server.Stop()
	return nil
}
