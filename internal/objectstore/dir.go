package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"castsync/internal/fileutil"
	"castsync/internal/services"
)

// Dir stores objects as files beneath a root directory, suitable for serving
// with any static web server.
type Dir struct {
	root string
}

// NewDir creates the root directory if needed.
func NewDir(root string) (*Dir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", "storage.dir is empty", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", "create storage dir", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(strings.TrimLeft(key, "/"))), nil
}

func (d *Dir) Exists(_ context.Context, key string) (bool, error) {
	p, err := d.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "storage", "exists", key, err)
	}
	return !info.IsDir(), nil
}

func (d *Dir) Get(_ context.Context, key string) ([]byte, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "get", key, err)
	}
	return data, nil
}

func (d *Dir) Put(_ context.Context, key string, data []byte, _ string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := fileutil.WriteAtomic(p, data, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "storage", "put", key, err)
	}
	return nil
}

func (d *Dir) PutFile(_ context.Context, key, localPath, _ string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := fileutil.CopyFileAtomic(localPath, p, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "storage", "put_file", key, err)
	}
	return nil
}

func (d *Dir) ListKeysBySuffix(_ context.Context, prefix, suffix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if matchKey(key, prefix, suffix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "list", fmt.Sprintf("walk %s", d.root), err)
	}
	return sortedKeys(keys), nil
}

func (d *Dir) Close() error { return nil }
