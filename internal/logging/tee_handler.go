package logging

import (
	"context"
	"log/slog"
)

// tee sends each record to every member enabled for its level. The console
// and the log file run at independent levels.
type tee []slog.Handler

func newTee(handlers ...slog.Handler) slog.Handler {
	var members tee
	for _, h := range handlers {
		if h != nil {
			members = append(members, h)
		}
	}
	if len(members) == 0 {
		return NoopHandler{}
	}
	if len(members) == 1 {
		return members[0]
	}
	return members
}

func (t tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, record slog.Record) error {
	var first error
	for _, h := range t {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t tee) WithGroup(name string) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t tee) each(fn func(slog.Handler) slog.Handler) tee {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = fn(h)
	}
	return out
}
