// Package daemonrun hosts the castsyncd process lifecycle: logging, pid file,
// app wiring and the daemon itself, torn down on SIGINT or SIGTERM.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"castsync/internal/app"
	"castsync/internal/config"
	"castsync/internal/daemon"
	"castsync/internal/logging"
	"castsync/internal/preflight"
)

// PIDFileName is written to the log directory while the daemon runs.
const PIDFileName = "castsyncd.pid"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// OutputPaths overrides the console log destinations.
	OutputPaths []string
	// AppOptions are forwarded to app.Build.
	AppOptions []app.Option
}

// Run starts the castsync daemon and blocks until cmdCtx ends or a
// termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: opts.OutputPaths,
		FilePath:    filepath.Join(cfg.Paths.LogDir, logging.LogFileName),
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	buildOpts := append([]app.Option{app.WithRuntimeMetrics()}, opts.AppOptions...)
	a, err := app.Build(signalCtx, cfg, logger, buildOpts...)
	if err != nil {
		logging.ErrorWithContext(logger, "app wiring failed", "daemon_build_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run castsync config validate and castsync status"),
		)
		return err
	}
	if err := a.Preflight(signalCtx); err != nil {
		logging.WarnWithContext(logger, "preflight checks failed", "preflight_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run castsync status for details"),
			logging.String(logging.FieldImpact, "passes may fail until the environment is fixed"),
		)
	}

	d, err := daemon.New(a, logger)
	if err != nil {
		_ = a.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("castsync daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	for _, dep := range preflight.CheckSystemDeps(ctx, cfg) {
		logger.Info("dependency snapshot",
			logging.String(logging.FieldEventType, "dependency_snapshot"),
			logging.String("dependency", dep.Name),
			logging.Bool("available", dep.Available),
			logging.String("path", dep.Path),
			logging.String("version", dep.Version),
		)
	}
	logger.Info("service snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("storage_backend", cfg.Storage.Backend),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}
