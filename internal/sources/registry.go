package sources

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"castsync/internal/logging"
)

// Registry holds the current set of source definitions.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	sources  []Source
	failures []FileError
}

// NewRegistry creates a registry over dir. Call Reload to populate it.
func NewRegistry(dir string, logger *slog.Logger) *Registry {
	return &Registry{dir: dir, logger: logging.NewComponentLogger(logger, "sources")}
}

// NewStaticRegistry returns a registry with a fixed set of sources.
func NewStaticRegistry(list ...Source) *Registry {
	sorted := slices.Clone(list)
	slices.SortFunc(sorted, func(a, b Source) int { return strings.Compare(a.ID, b.ID) })
	return &Registry{sources: sorted, logger: logging.NewNop()}
}

// Dir returns the watched directory.
func (r *Registry) Dir() string { return r.dir }

// Reload re-reads the sources directory. The previous set is kept when the
// directory itself cannot be read.
func (r *Registry) Reload() error {
	if r.dir == "" {
		return nil
	}
	loaded, failures, err := LoadDir(r.dir)
	if err != nil {
		return err
	}
	for _, failure := range failures {
		logging.WarnWithContext(r.logger, "source definition rejected", "source_invalid",
			logging.String("path", failure.Path),
			logging.Error(failure.Err),
			logging.String(logging.FieldErrorHint, "fix the file or run castsync sources validate"),
			logging.String(logging.FieldImpact, "source is not synced until fixed"),
		)
	}
	r.mu.Lock()
	r.sources = loaded
	r.failures = failures
	r.mu.Unlock()
	r.logger.Info("sources loaded",
		logging.Int("sources", len(loaded)),
		logging.Int("rejected", len(failures)),
		logging.String("dir", r.dir),
	)
	return nil
}

// All returns every loaded source in ID order.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.sources)
}

// Failures returns the files rejected by the last reload.
func (r *Registry) Failures() []FileError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.failures)
}

// Get returns the source with the given ID.
func (r *Registry) Get(id string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, src := range r.sources {
		if src.ID == id {
			return src, true
		}
	}
	return Source{}, false
}

// Select returns the enabled sources matching ids, in ID order. An empty
// filter selects every enabled source. Unknown IDs are an error.
func (r *Registry) Select(ids []string) ([]Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(ids) == 0 {
		var out []Source
		for _, src := range r.sources {
			if src.IsEnabled() {
				out = append(out, src)
			}
		}
		return out, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[strings.TrimSpace(id)] = true
	}
	var out []Source
	for _, src := range r.sources {
		if want[src.ID] {
			out = append(out, src)
			delete(want, src.ID)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for id := range want {
			missing = append(missing, id)
		}
		slices.Sort(missing)
		return nil, fmt.Errorf("unknown source(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}
