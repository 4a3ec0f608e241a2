package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"

	"castsync/internal/config"
	"castsync/internal/services"
)

// Content types written by the ingestion pipeline.
const (
	ContentTypeMP3  = "audio/mpeg"
	ContentTypeJPEG = "image/jpeg"
	ContentTypeXML  = "application/xml"
	ContentTypeJSON = "application/json"
)

// Store is the durable key/value surface.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Get returns an error wrapping services.ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// ListKeysBySuffix returns keys under prefix ending in suffix, sorted.
	ListKeysBySuffix(ctx context.Context, prefix, suffix string) ([]string, error)
	Close() error
}

// FileUploader is implemented by stores that can stream a local file without
// buffering it in memory.
type FileUploader interface {
	PutFile(ctx context.Context, key, localPath, contentType string) error
}

// PutFile uploads a local file, streaming when the store supports it.
func PutFile(ctx context.Context, store Store, key, localPath, contentType string) error {
	if uploader, ok := store.(FileUploader); ok {
		return uploader.PutFile(ctx, key, localPath, contentType)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}
	return store.Put(ctx, key, data, contentType)
}

// PublicURL joins a public base URL with an object key, escaping each segment.
func PublicURL(base, key string) string {
	base = strings.TrimRight(base, "/")
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return base + "/" + strings.Join(segments, "/")
}

// Open constructs the store selected by storage.backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", "config is required", nil)
	}
	switch cfg.Storage.Backend {
	case config.BackendS3:
		return NewS3(ctx, S3Options{
			Endpoint:  cfg.Storage.S3.Endpoint,
			Bucket:    cfg.Storage.S3.Bucket,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Region:    cfg.Storage.S3.Region,
			UseSSL:    cfg.Storage.S3.UseSSL,
		})
	case config.BackendDir:
		return NewDir(cfg.Storage.Dir)
	case config.BackendSQLite:
		return OpenSQLite(ctx, cfg.Storage.SQLitePath)
	case config.BackendBadger:
		return OpenBadger(cfg.Storage.BadgerDir, logger)
	case config.BackendMemory:
		return NewMemory(), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", fmt.Sprintf("unknown backend %q", cfg.Storage.Backend), nil)
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return services.Wrap(services.ErrValidation, "storage", "key", "empty object key", nil)
	}
	cleaned := path.Clean("/" + key)
	if cleaned != "/"+strings.TrimLeft(key, "/") || strings.Contains(key, "..") {
		return services.Wrap(services.ErrValidation, "storage", "key", fmt.Sprintf("invalid object key %q", key), nil)
	}
	return nil
}

func notFound(key string) error {
	return services.Wrap(services.ErrNotFound, "storage", "get", key, nil)
}

func matchKey(key, prefix, suffix string) bool {
	return strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix)
}

func sortedKeys(keys []string) []string {
	sort.Strings(keys)
	return keys
}
