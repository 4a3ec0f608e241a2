package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"castsync/internal/app"
	"castsync/internal/objectstore"
	"castsync/internal/testsupport"
)

func TestRunWritesPIDAndStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.SyncIntervalMinutes = 0
	logOut := filepath.Join(t.TempDir(), "console.log")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, Options{
			LogLevel:    "debug",
			OutputPaths: []string{logOut},
			AppOptions: []app.Option{app.WithOverrides(app.Overrides{
				Objects:       objectstore.NewMemory(),
				SkipPreflight: true,
			})},
		})
	}()

	pidPath := filepath.Join(cfg.Paths.LogDir, PIDFileName)
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, err := os.ReadFile(pidPath)
		if err == nil {
			if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
				t.Fatalf("unexpected pid file contents %q", data)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pid file not written: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, stat err=%v", err)
	}

	logData, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "castsync.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(logData), "dependency_snapshot") {
		t.Fatalf("expected dependency snapshot in log, got %s", logData)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}
