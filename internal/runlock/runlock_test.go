package runlock_test

import (
	"errors"
	"path/filepath"
	"testing"

	"castsync/internal/runlock"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "castsync.lock")

	first, err := runlock.Acquire(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if held, err := runlock.Held(path); err != nil || !held {
		t.Fatalf("Held = %v, %v; want true", held, err)
	}

	if _, err := runlock.Acquire(path); !errors.Is(err, runlock.ErrBusy) {
		t.Fatalf("second acquire error = %v, want ErrBusy", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}

	again, err := runlock.Acquire(path)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestHeldWithoutLockFile(t *testing.T) {
	held, err := runlock.Held(filepath.Join(t.TempDir(), "missing.lock"))
	if err != nil || held {
		t.Fatalf("Held = %v, %v; want false, nil", held, err)
	}
}
