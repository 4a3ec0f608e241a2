// Package staging manages per-item scratch directories under the staging
// root and reclaims the ones a crashed run left behind.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Workspace is a scratch directory owned by one item while it is processed.
type Workspace struct {
	path string
}

// Acquire creates a fresh workspace for an item.
func Acquire(root, sourceID, itemID string) (*Workspace, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("staging root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	pattern := sanitize(sourceID) + "-" + sanitize(itemID) + "-*"
	dir, err := os.MkdirTemp(root, pattern)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{path: dir}, nil
}

// Path returns the workspace directory.
func (w *Workspace) Path() string { return w.path }

// File returns a path inside the workspace.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.path, filepath.Base(name))
}

// Remove deletes the workspace and everything in it. It is safe to call
// more than once.
func (w *Workspace) Remove() error {
	if w == nil || w.path == "" {
		return nil
	}
	if err := os.RemoveAll(w.path); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

func sanitize(value string) string {
	value = unsafeName.ReplaceAllString(strings.TrimSpace(value), "_")
	if value == "" {
		return "item"
	}
	if len(value) > 64 {
		value = value[:64]
	}
	return value
}
