// Package ratelimit implements the persisted dual limiter that gates item
// processing and metadata generation: a daily quota that resets at UTC
// midnight plus a minimum spacing of 86400/quota seconds between consumptions.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"castsync/internal/logging"
)

// Resources gated by the orchestrator.
const (
	ResourceItems    = "items"
	ResourceMetadata = "metadata"
)

// Denial reasons.
const (
	ReasonDailyLimit    = "daily_limit"
	ReasonPeriodicLimit = "periodic_limit"
)

const dateLayout = "2006-01-02"

// State is the persisted limiter state for one resource.
type State struct {
	LastResetDate  string     `json:"last_reset_date"`
	ConsumedToday  int        `json:"consumed_today"`
	LastConsumedAt *time.Time `json:"last_consumed_at,omitempty"`
}

// Persister loads and saves limiter state. found is false when nothing has
// been stored yet.
type Persister interface {
	LoadLimiterState(ctx context.Context, resource string) (state State, found bool, err error)
	SaveLimiterState(ctx context.Context, resource string, state State) error
}

// Decision is the outcome of TryConsume.
type Decision struct {
	Allowed     bool
	Reason      string
	RetryAfter  time.Duration
	WaitMinutes int
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithLogger sets the logger used for state anomalies.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// Gate authorizes consumptions of a single resource.
type Gate struct {
	mu        sync.Mutex
	resource  string
	quota     int
	interval  time.Duration
	persister Persister
	clock     func() time.Time
	logger    *slog.Logger
	state     State
}

// New creates a gate with the given daily quota. A quota of zero or less
// denies every request.
func New(resource string, quota int, persister Persister, opts ...Option) *Gate {
	g := &Gate{
		resource:  resource,
		quota:     quota,
		persister: persister,
		clock:     time.Now,
	}
	if quota > 0 {
		g.interval = time.Duration(float64(24*time.Hour) / float64(quota))
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "ratelimit").With(logging.String("resource", resource))
	return g
}

// Resource returns the gated resource name.
func (g *Gate) Resource() string { return g.resource }

// Quota returns the daily quota.
func (g *Gate) Quota() int { return g.quota }

// Interval returns the minimum spacing between consumptions.
func (g *Gate) Interval() time.Duration { return g.interval }

// Load reads persisted state. Missing state starts a fresh day.
func (g *Gate) Load(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.state = State{LastResetDate: now.Format(dateLayout)}
	if g.persister == nil {
		return nil
	}
	state, found, err := g.persister.LoadLimiterState(ctx, g.resource)
	if err != nil {
		return fmt.Errorf("load %s limiter state: %w", g.resource, err)
	}
	if !found {
		return nil
	}
	if state.ConsumedToday < 0 {
		state.ConsumedToday = 0
	}
	if state.LastConsumedAt != nil && state.LastConsumedAt.After(now) {
		logging.WarnWithContext(g.logger, "limiter state has a future timestamp; clamping", "limiter_clock_skew",
			logging.String("last_consumed_at", state.LastConsumedAt.UTC().Format(time.RFC3339)),
			logging.String(logging.FieldErrorHint, "check the system clock of every host writing this store"),
			logging.String(logging.FieldImpact, "next consumption waits one full interval"),
		)
		clamped := now
		state.LastConsumedAt = &clamped
	}
	g.state = state
	g.rollover(now)
	return nil
}

// TryConsume reports whether one consumption is authorized now. It does not
// consume; call RecordConsumption after the work is done.
func (g *Gate) TryConsume(_ context.Context) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rollover(now)

	if g.state.ConsumedToday >= g.quota {
		tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		retry := tomorrow.Sub(now)
		return Decision{Reason: ReasonDailyLimit, RetryAfter: retry, WaitMinutes: ceilMinutes(retry)}
	}

	if g.interval > 0 && g.state.LastConsumedAt != nil {
		elapsed := now.Sub(*g.state.LastConsumedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed < g.interval {
			retry := g.interval - elapsed
			return Decision{Reason: ReasonPeriodicLimit, RetryAfter: retry, WaitMinutes: ceilMinutes(retry)}
		}
	}
	return Decision{Allowed: true}
}

// RecordConsumption counts one consumption and persists the state before
// returning. The in-memory count is updated even when persisting fails.
func (g *Gate) RecordConsumption(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rollover(now)
	g.state.ConsumedToday++
	g.state.LastConsumedAt = &now

	if g.persister == nil {
		return nil
	}
	if err := g.persister.SaveLimiterState(ctx, g.resource, g.snapshotLocked()); err != nil {
		return fmt.Errorf("save %s limiter state: %w", g.resource, err)
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (g *Gate) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover(g.now())
	return g.snapshotLocked()
}

// Remaining returns the number of consumptions left today.
func (g *Gate) Remaining() int {
	snap := g.Snapshot()
	if left := g.quota - snap.ConsumedToday; left > 0 {
		return left
	}
	return 0
}

func (g *Gate) snapshotLocked() State {
	snap := g.state
	if g.state.LastConsumedAt != nil {
		at := *g.state.LastConsumedAt
		snap.LastConsumedAt = &at
	}
	return snap
}

func (g *Gate) rollover(now time.Time) {
	today := now.Format(dateLayout)
	if g.state.LastResetDate == today {
		return
	}
	if g.state.LastResetDate != "" {
		g.logger.Debug("daily quota reset",
			logging.String("previous_date", g.state.LastResetDate),
			logging.Int("previous_count", g.state.ConsumedToday),
		)
	}
	g.state.LastResetDate = today
	g.state.ConsumedToday = 0
}

func (g *Gate) now() time.Time {
	return g.clock().UTC()
}

func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds() / 60))
}
