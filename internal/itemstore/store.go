package itemstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"

	"castsync/internal/logging"
	"castsync/internal/objectstore"
	"castsync/internal/ratelimit"
	"castsync/internal/services"
)

const (
	recordSuffix   = ".json"
	stateDir       = "state/"
	limiterSuffix  = ".limiter"
	legacyStateKey = "sync_state.json"
)

// Store reads and writes records for one source's key prefix.
type Store struct {
	objects objectstore.Store
	prefix  string
	logger  *slog.Logger
}

// KeyError describes a record that could not be read during listing.
type KeyError struct {
	Key string
	Err error
}

// ListResult holds the records that were readable plus per-key failures.
type ListResult struct {
	Records  []Record
	Failures []KeyError
}

// New wraps objects with a key prefix. A non-empty prefix is normalized to
// end in a slash.
func New(objects objectstore.Store, prefix string, logger *slog.Logger) *Store {
	return &Store{
		objects: objects,
		prefix:  NormalizePrefix(prefix),
		logger:  logging.NewComponentLogger(logger, "itemstore"),
	}
}

// NormalizePrefix trims surrounding slashes and whitespace, then appends a
// trailing slash when the prefix is non-empty.
func NormalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// Objects exposes the underlying object store.
func (s *Store) Objects() objectstore.Store { return s.objects }

// Prefix returns the normalized key prefix.
func (s *Store) Prefix() string { return s.prefix }

func (s *Store) RecordKey(id string) string { return s.prefix + id + recordSuffix }

func (s *Store) AudioKey(id string) string { return s.prefix + id + ".mp3" }

func (s *Store) ImageKey(id string) string { return s.prefix + id + ".jpg" }

func (s *Store) FeedKey(filename string) string { return s.prefix + filename }

func (s *Store) LimiterKey(resource string) string {
	return s.prefix + stateDir + resource + limiterSuffix
}

// IsRecordKey reports whether key names an item record under prefix. State
// files and nested keys are excluded.
func IsRecordKey(prefix, key string) bool {
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	rest := strings.TrimPrefix(key, prefix)
	if !strings.HasSuffix(rest, recordSuffix) || rest == recordSuffix {
		return false
	}
	if strings.Contains(rest, "/") || rest == legacyStateKey {
		return false
	}
	return true
}

// Get loads the record for id. Missing records return an error wrapping
// services.ErrNotFound; undecodable ones wrap services.ErrValidation.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	return s.getKey(ctx, s.RecordKey(id))
}

func (s *Store) getKey(ctx context.Context, key string) (Record, error) {
	data, err := s.objects.Get(ctx, key)
	if err != nil {
		return Record{}, err
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		return Record{}, services.Wrap(services.ErrValidation, "itemstore", "decode", key, err)
	}
	return rec, nil
}

// Exists reports whether a record for id is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	return s.objects.Exists(ctx, s.RecordKey(id))
}

// Put writes rec in full, replacing any previous record.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return services.Wrap(services.ErrValidation, "itemstore", "put", "record id is empty", nil)
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		return services.Wrap(services.ErrValidation, "itemstore", "encode", rec.ID, err)
	}
	return s.objects.Put(ctx, s.RecordKey(rec.ID), data, objectstore.ContentTypeJSON)
}

// List reads every record under the prefix. A listing failure is returned as
// an error; individual read failures are collected in the result.
func (s *Store) List(ctx context.Context) (ListResult, error) {
	keys, err := s.objects.ListKeysBySuffix(ctx, s.prefix, recordSuffix)
	if err != nil {
		return ListResult{}, err
	}
	var result ListResult
	for _, key := range keys {
		if !IsRecordKey(s.prefix, key) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rec, err := s.getKey(ctx, key)
		if err != nil {
			logging.WarnWithContext(s.logger, "skipping unreadable record", "record_read_failed",
				logging.String("key", key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect or delete the record; it is reprocessed on the next sync"),
				logging.String(logging.FieldImpact, "item omitted from the feed"),
			)
			result.Failures = append(result.Failures, KeyError{Key: key, Err: err})
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// LoadLimiterState implements ratelimit.Persister.
func (s *Store) LoadLimiterState(ctx context.Context, resource string) (ratelimit.State, bool, error) {
	data, err := s.objects.Get(ctx, s.LimiterKey(resource))
	if errors.Is(err, services.ErrNotFound) {
		return ratelimit.State{}, false, nil
	}
	if err != nil {
		return ratelimit.State{}, false, err
	}
	var state ratelimit.State
	if err := json.Unmarshal(data, &state); err != nil {
		logging.WarnWithContext(s.logger, "discarding corrupt limiter state", "limiter_state_corrupt",
			logging.String("resource", resource),
			logging.Error(err),
			logging.String(logging.FieldImpact, "quota for today restarts from zero"),
		)
		return ratelimit.State{}, false, nil
	}
	return state, true, nil
}

// SaveLimiterState implements ratelimit.Persister.
func (s *Store) SaveLimiterState(ctx context.Context, resource string, state ratelimit.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode limiter state: %w", err)
	}
	return s.objects.Put(ctx, s.LimiterKey(resource), data, objectstore.ContentTypeJSON)
}
