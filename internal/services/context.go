package services

import "context"

// scopeKey indexes the pass scope carried through a context: run, source,
// item and state machine stage.
type scopeKey uint8

const (
	runKey scopeKey = iota
	sourceKey
	itemKey
	stageKey
)

func with(ctx context.Context, key scopeKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func lookup(ctx context.Context, key scopeKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithRunID tags ctx with the sync or refresh run it belongs to.
func WithRunID(ctx context.Context, id string) context.Context { return with(ctx, runKey, id) }

// RunIDFromContext returns the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, runKey) }

// WithSourceID tags ctx with the configured source being processed.
func WithSourceID(ctx context.Context, id string) context.Context { return with(ctx, sourceKey, id) }

func SourceIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, sourceKey) }

// WithItemID tags ctx with the video item being ingested.
func WithItemID(ctx context.Context, id string) context.Context { return with(ctx, itemKey, id) }

func ItemIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, itemKey) }

// WithStage tags ctx with the current state machine stage.
func WithStage(ctx context.Context, stage string) context.Context { return with(ctx, stageKey, stage) }

func StageFromContext(ctx context.Context) (string, bool) { return lookup(ctx, stageKey) }
