package staging

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"castsync/internal/logging"
)

// DirInfo describes one workspace under the staging root.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// CleanResult reports what a cleanup removed and what it could not.
type CleanResult struct {
	Removed []string
	Freed   int64
	Errors  []CleanupError
}

// CleanupError pairs a workspace path with the error that kept it around.
type CleanupError struct {
	Path  string
	Error error
}

// ListDirectories returns every workspace under stagingDir. A missing or
// blank root lists nothing.
func ListDirectories(stagingDir string) ([]DirInfo, error) {
	dirs, _, err := scan(stagingDir)
	return dirs, err
}

// CleanStale removes workspaces last modified before maxAge ago. Workspaces
// a crashed run left behind are reclaimed this way.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	cutoff := time.Now().Add(-maxAge)
	return clean(ctx, stagingDir, logger, "stale", func(d DirInfo) bool { return d.ModTime.Before(cutoff) })
}

// CleanAll removes every workspace regardless of age.
func CleanAll(ctx context.Context, stagingDir string, logger *slog.Logger) CleanResult {
	return clean(ctx, stagingDir, logger, "all", func(DirInfo) bool { return true })
}

func clean(ctx context.Context, stagingDir string, logger *slog.Logger, mode string, match func(DirInfo) bool) CleanResult {
	var result CleanResult
	dirs, skipped, err := scan(stagingDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		return result
	}
	result.Errors = append(result.Errors, skipped...)

	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		if !match(dir) {
			continue
		}
		if err := os.RemoveAll(dir.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir.Path, Error: err})
			logging.WarnWithContext(logger, "failed to remove staging workspace", "staging_cleanup_failed",
				logging.String("path", dir.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dir.Path)
		result.Freed += dir.Size
		if logger != nil {
			logger.Info("removed staging workspace",
				logging.String(logging.FieldEventType, "staging_cleanup"),
				logging.String("path", dir.Path),
				logging.String("mode", mode),
				logging.Duration("age", time.Since(dir.ModTime).Truncate(time.Second)),
				logging.Int64("freed_bytes", dir.Size),
			)
		}
	}
	return result
}

// scan lists the workspace directories directly under root. Plain files are
// ignored. Entries whose metadata cannot be read are returned as skipped.
func scan(root string) ([]DirInfo, []CleanupError, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, nil, nil
	}
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var (
		dirs    []DirInfo
		skipped []CleanupError
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			skipped = append(skipped, CleanupError{Path: path, Error: err})
			continue
		}
		dirs = append(dirs, DirInfo{Name: entry.Name(), Path: path, ModTime: info.ModTime(), Size: treeSize(path)})
	}
	return dirs, skipped, nil
}

// treeSize sums regular file sizes below path, skipping unreadable entries.
func treeSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, infoErr := d.Info(); infoErr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
