package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castsync/internal/ratelimit"
)

type memPersister struct {
	mu      sync.Mutex
	states  map[string]ratelimit.State
	saves   int
	saveErr error
}

func newMemPersister() *memPersister {
	return &memPersister{states: map[string]ratelimit.State{}}
}

func (p *memPersister) LoadLimiterState(_ context.Context, resource string) (ratelimit.State, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[resource]
	return s, ok, nil
}

func (p *memPersister) SaveLimiterState(_ context.Context, resource string, state ratelimit.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saves++
	p.states[resource] = state
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newGate(t *testing.T, quota int, p ratelimit.Persister, clock *fakeClock) *ratelimit.Gate {
	t.Helper()
	g := ratelimit.New(ratelimit.ResourceItems, quota, p, ratelimit.WithClock(clock.Now))
	require.NoError(t, g.Load(context.Background()))
	return g
}

func TestDailyQuotaDeniesAfterLimit(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	g := newGate(t, 3, newMemPersister(), clock)

	for i := 0; i < 3; i++ {
		if i > 0 {
			clock.Advance(g.Interval())
		}
		d := g.TryConsume(ctx)
		require.True(t, d.Allowed, "consumption %d", i)
		require.NoError(t, g.RecordConsumption(ctx))
	}

	d := g.TryConsume(ctx)
	assert.False(t, d.Allowed)
	assert.Equal(t, ratelimit.ReasonDailyLimit, d.Reason)
	assert.Equal(t, 0, g.Remaining())
}

func TestCadenceDeniesWithinInterval(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	g := newGate(t, 24, newMemPersister(), clock)
	require.Equal(t, time.Hour, g.Interval())

	require.True(t, g.TryConsume(ctx).Allowed)
	require.NoError(t, g.RecordConsumption(ctx))

	clock.Advance(10 * time.Minute)
	d := g.TryConsume(ctx)
	assert.False(t, d.Allowed)
	assert.Equal(t, ratelimit.ReasonPeriodicLimit, d.Reason)
	assert.Equal(t, 50*time.Minute, d.RetryAfter)
	assert.Equal(t, 50, d.WaitMinutes)

	clock.Advance(50*time.Minute - 30*time.Second)
	d = g.TryConsume(ctx)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, d.WaitMinutes, "partial minutes round up")

	clock.Advance(30 * time.Second)
	assert.True(t, g.TryConsume(ctx).Allowed)
}

func TestDailyCheckPrecedesCadence(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	g := newGate(t, 1, newMemPersister(), clock)

	require.NoError(t, g.RecordConsumption(ctx))
	d := g.TryConsume(ctx)
	assert.Equal(t, ratelimit.ReasonDailyLimit, d.Reason)
}

func TestUTCDayRolloverResetsCount(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC)}
	g := newGate(t, 2, p, clock)

	require.NoError(t, g.RecordConsumption(ctx))
	clock.Advance(12 * time.Hour)
	require.NoError(t, g.RecordConsumption(ctx))
	assert.Equal(t, ratelimit.ReasonDailyLimit, g.TryConsume(ctx).Reason)

	clock.now = time.Date(2026, 3, 2, 0, 30, 1, 0, time.UTC)
	d := g.TryConsume(ctx)
	assert.True(t, d.Allowed)
	snap := g.Snapshot()
	assert.Equal(t, "2026-03-02", snap.LastResetDate)
	assert.Equal(t, 0, snap.ConsumedToday)
}

func TestStatePersistsAcrossGates(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}

	first := newGate(t, 2, p, clock)
	require.NoError(t, first.RecordConsumption(ctx))
	require.NoError(t, first.RecordConsumption(ctx))
	assert.Equal(t, 2, p.saves, "every consumption persists immediately")

	clock.Advance(13 * time.Hour)
	second := newGate(t, 2, p, clock)
	d := second.TryConsume(ctx)
	assert.False(t, d.Allowed)
	assert.Equal(t, ratelimit.ReasonDailyLimit, d.Reason)
}

func TestFutureTimestampIsClamped(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	future := now.Add(6 * time.Hour)
	p.states[ratelimit.ResourceItems] = ratelimit.State{LastResetDate: "2026-03-01", ConsumedToday: 1, LastConsumedAt: &future}

	clock := &fakeClock{now: now}
	g := newGate(t, 24, p, clock)
	snap := g.Snapshot()
	require.NotNil(t, snap.LastConsumedAt)
	assert.True(t, snap.LastConsumedAt.Equal(now))

	d := g.TryConsume(ctx)
	assert.Equal(t, ratelimit.ReasonPeriodicLimit, d.Reason)
	assert.Equal(t, time.Hour, d.RetryAfter)
}

func TestZeroQuotaDeniesEverything(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	g := newGate(t, 0, newMemPersister(), clock)
	d := g.TryConsume(context.Background())
	assert.False(t, d.Allowed)
	assert.Equal(t, ratelimit.ReasonDailyLimit, d.Reason)
	assert.Equal(t, time.Duration(0), g.Interval())
}

func TestRecordConsumptionSurfacesPersistError(t *testing.T) {
	p := newMemPersister()
	p.saveErr = errors.New("bucket unavailable")
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	g := newGate(t, 5, p, clock)

	err := g.RecordConsumption(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, g.Snapshot().ConsumedToday, "in-memory count still advances")
}
