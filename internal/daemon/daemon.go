package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"castsync/internal/app"
	"castsync/internal/logging"
	"castsync/internal/runlock"
	"castsync/internal/server"
	"castsync/internal/staging"
	"castsync/internal/workflow"
)

// Daemon runs the trigger server and scheduler for one App.
type Daemon struct {
	app    *app.App
	logger *slog.Logger

	lockPath string
	lock     *runlock.Lock
	server   *server.Server

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Address      string
	LockFilePath string
	Interval     time.Duration
	Workflow     workflow.Status
}

// New constructs a daemon around a built App.
func New(a *app.App, logger *slog.Logger) (*Daemon, error) {
	if a == nil || a.Config == nil || a.Orchestrator == nil {
		return nil, errors.New("daemon requires a built app")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	srv, err := server.New(server.Options{
		Bind:              a.Config.Server.Bind,
		RequestsPerMinute: a.Config.Server.RequestsPerMinute,
		Token:             a.Config.Server.Token,
		LockPath:          a.Config.LockPath(),
		Runner:            a.Orchestrator,
		Metrics:           a.Metrics.Handler(),
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	return &Daemon{
		app:      a,
		logger:   logger,
		lockPath: filepath.Join(a.Config.Paths.StateDir, "castsyncd.lock"),
		server:   srv,
	}, nil
}

// Start acquires the instance lock and launches the server, scheduler and
// source watcher. They stop when ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	lock, err := runlock.Acquire(d.lockPath)
	if err != nil {
		if errors.Is(err, runlock.ErrBusy) {
			return errors.New("another castsync daemon instance is already running")
		}
		return fmt.Errorf("acquire lock: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.server.Start(runCtx); err != nil {
		cancel()
		_ = lock.Release()
		return fmt.Errorf("start server: %w", err)
	}
	d.lock = lock
	d.cancel = cancel
	d.running.Store(true)

	d.cleanStaging(runCtx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.app.Sources.Watch(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "source watcher stopped", "source_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "source definition changes need a daemon restart"),
			)
		}
	}()

	if interval := d.app.Config.SyncInterval(); interval > 0 {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.schedule(runCtx, interval)
		}()
	}

	d.logger.Info("castsync daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("address", d.server.Addr()),
		logging.String("lock", d.lockPath),
		logging.Duration("sync_interval", d.app.Config.SyncInterval()),
	)
	return nil
}

// Stop stops background work, waits for a running pass to end and releases
// the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.Stop()
	d.wg.Wait()
	d.server.Wait()
	if err := d.lock.Release(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.lock = nil
	d.running.Store(false)
	d.logger.Info("castsync daemon stopped")
}

// Close stops the daemon and releases the App.
func (d *Daemon) Close() error {
	d.Stop()
	return d.app.Close()
}

// Addr returns the server's listening address.
func (d *Daemon) Addr() string { return d.server.Addr() }

// Trigger starts a pass through the server's single-flight guard.
func (d *Daemon) Trigger(kind string, filter []string) error {
	return d.server.Trigger(kind, filter)
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Address:      d.server.Addr(),
		LockFilePath: d.lockPath,
		Interval:     d.app.Config.SyncInterval(),
		Workflow:     d.app.Orchestrator.Status(),
	}
}

func (d *Daemon) cleanStaging(ctx context.Context) {
	maxAge := d.app.Config.StagingMaxAge()
	if maxAge <= 0 {
		return
	}
	staging.CleanStale(ctx, d.app.Config.Paths.StagingDir, maxAge, d.logger)
}
