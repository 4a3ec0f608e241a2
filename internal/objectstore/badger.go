package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"castsync/internal/logging"
	"castsync/internal/services"
)

// Badger keeps objects in an embedded Badger database. Keys are stored
// verbatim; the content type is not retained.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a database at dir. An empty dir opens an
// in-memory database.
func OpenBadger(dir string, logger *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	if strings.TrimSpace(dir) == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{logger: logging.NewComponentLogger(logger, "badger")})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", "open badger", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Exists(_ context.Context, key string) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "storage", "exists", key, err)
	}
	return true, nil
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "get", key, err)
	}
	return data, nil
}

func (b *Badger) Put(_ context.Context, key string, data []byte, _ string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), append([]byte(nil), data...))
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "storage", "put", key, err)
	}
	return nil
}

func (b *Badger) ListKeysBySuffix(_ context.Context, prefix, suffix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().KeyCopy(nil))
			if strings.HasSuffix(key, suffix) {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "list", fmt.Sprintf("prefix %q", prefix), err)
	}
	return keys, nil
}

// Close flushes and closes the database.
func (b *Badger) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// badgerLogger routes Badger's internal logging through slog, demoting its
// chatty info output to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)),
		logging.String(logging.FieldEventType, "badger_warning"),
		logging.String(logging.FieldErrorHint, "inspect the badger directory for corruption or disk pressure"),
		logging.String(logging.FieldImpact, "storage may be degraded"),
	)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
