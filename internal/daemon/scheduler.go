package daemon

import (
	"context"
	"errors"
	"time"

	"castsync/internal/logging"
	"castsync/internal/runlock"
	"castsync/internal/workflow"
)

// schedule triggers a sync every interval until ctx ends. A tick that finds
// a pass already running is skipped, not queued.
func (d *Daemon) schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Daemon) tick(ctx context.Context) {
	d.cleanStaging(ctx)
	err := d.server.Trigger(workflow.KindSync, nil)
	switch {
	case err == nil:
		d.logger.Info("scheduled sync started", logging.String(logging.FieldEventType, "scheduled_sync"))
	case errors.Is(err, runlock.ErrBusy):
		d.logger.Info("scheduled sync skipped, a pass is already running",
			logging.String(logging.FieldEventType, "scheduled_sync_skipped"),
		)
	default:
		logging.WarnWithContext(d.logger, "scheduled sync failed to start", "scheduled_sync_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the state directory is writable"),
			logging.String(logging.FieldImpact, "the next tick retries"),
		)
	}
}
