package testsupport

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path, and its parent directories, holding size filler
// bytes. Sizes below one write a single byte so the file is never empty.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if err := writeBytes(path, size); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// filler is an endless stream of 'B' bytes.
type filler struct{}

func (filler) Read(p []byte) (int, error) {
	copy(p, bytes.Repeat([]byte{'B'}, len(p)))
	return len(p), nil
}

func writeBytes(path string, size int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(f, filler{}, max(size, 1)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
