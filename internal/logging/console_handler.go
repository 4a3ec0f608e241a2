package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// leadKeys are printed before any other field, in this order.
var leadKeys = []string{
	FieldEventType,
	FieldDecisionType,
	"decision_result",
	FieldReason,
	"title",
	"error",
	FieldErrorHint,
	FieldImpact,
}

// consoleHandler renders one line per record:
//
//	2026-01-02 15:04:05 INFO  [ingest] talks/abc123 (transcoding) message  key=value ...
//
// Component, source, item and stage form the line prefix instead of fields.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	addSource bool
	groups    []string
	fields    []field
}

type field struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = slices.Clone(h.fields)
	for _, a := range attrs {
		next.fields = appendField(next.fields, h.groups, a)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(slices.Clone(h.groups), name)
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}
	all := slices.Clone(h.fields)
	record.Attrs(func(a slog.Attr) bool {
		all = appendField(all, h.groups, a)
		return true
	})

	var scope struct{ component, source, item, stage string }
	rest := make([]field, 0, len(all))
	for _, f := range latestByKey(all) {
		switch f.key {
		case FieldComponent:
			scope.component = attrString(f.value)
		case FieldSourceID:
			scope.source = attrString(f.value)
		case FieldItemID:
			scope.item = attrString(f.value)
		case FieldStage:
			scope.stage = attrString(f.value)
		case FieldRunID:
			// Run IDs are noise on the console above debug.
			if record.Level < slog.LevelInfo {
				rest = append(rest, f)
			}
		default:
			rest = append(rest, f)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(consoleTime(ts))
	b.WriteByte(' ')
	b.WriteString(levelLabel(record.Level))
	if scope.component != "" {
		b.WriteString(" [" + scope.component + "]")
	}
	if subject := FormatSubject(scope.source, scope.item, scope.stage); subject != "" {
		b.WriteString(" " + subject)
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(" " + msg)
	for _, f := range leadFirst(rest) {
		b.WriteString("  " + f.key + "=" + formatValueForKey(f.key, f.value))
	}
	if h.addSource && record.Level < slog.LevelInfo {
		if src := record.Source(); src != nil {
			b.WriteString("  @" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line))
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// FormatSubject joins source, item and stage as "source/item (stage)".
func FormatSubject(sourceID, itemID, stage string) string {
	subject := strings.TrimSpace(sourceID)
	if itemID = strings.TrimSpace(itemID); itemID != "" {
		if subject != "" {
			subject += "/"
		}
		subject += itemID
	}
	if stage = strings.TrimSpace(stage); stage != "" {
		if subject != "" {
			subject += " "
		}
		subject += "(" + stage + ")"
	}
	return subject
}

func appendField(dst []field, groups []string, a slog.Attr) []field {
	if a.Equal(slog.Attr{}) {
		return dst
	}
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		inner := groups
		if a.Key != "" {
			inner = append(slices.Clone(groups), a.Key)
		}
		for _, ga := range a.Value.Group() {
			dst = appendField(dst, inner, ga)
		}
		return dst
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return append(dst, field{key: key, value: a.Value})
}

// latestByKey keeps the first position of each key with its last value.
func latestByKey(fields []field) []field {
	index := make(map[string]int, len(fields))
	out := fields[:0:0]
	for _, f := range fields {
		if f.key == "" {
			continue
		}
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func leadFirst(fields []field) []field {
	rank := func(key string) int {
		if i := slices.Index(leadKeys, key); i >= 0 {
			return i
		}
		return len(leadKeys)
	}
	slices.SortStableFunc(fields, func(a, b field) int { return rank(a.key) - rank(b.key) })
	return fields
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN "
	case level >= slog.LevelInfo:
		return "INFO "
	default:
		return "DEBUG"
	}
}
