package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"castsync/internal/testsupport"
)

func TestSourcesListAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteSourceFile(t, env.cfg, "talks", "https://yt/talks")

	out, _, err := runCLI(t, []string{"sources", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("sources list: %v", err)
	}
	requireContains(t, out, "talks")
	requireContains(t, out, "talks/podcast.xml")

	out, _, err = runCLI(t, []string{"sources", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("sources validate: %v", err)
	}
	requireContains(t, out, "1 sources valid")

	if err := os.WriteFile(filepath.Join(env.cfg.Paths.SourcesDir, "bad.yml"), []byte("id: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err = runCLI(t, []string{"sources", "validate"}, env.configPath)
	if err == nil {
		t.Fatal("expected validate to fail")
	}
	requireContains(t, out, "invalid")
}

func TestStagingListAndClean(t *testing.T) {
	env := setupCLITestEnv(t)
	workspace := filepath.Join(env.cfg.Paths.StagingDir, "talks-v1")
	testsupport.WriteFile(t, filepath.Join(workspace, "media_raw.webm"), 2048)

	out, _, err := runCLI(t, []string{"staging", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("staging list: %v", err)
	}
	requireContains(t, out, "talks-v1")
	requireContains(t, out, "Total: 1 workspaces")

	out, _, err = runCLI(t, []string{"staging", "clean"}, env.configPath)
	if err != nil {
		t.Fatalf("staging clean: %v", err)
	}
	requireContains(t, out, "No stale workspaces to clean")

	out, _, err = runCLI(t, []string{"staging", "clean", "--all"}, env.configPath)
	if err != nil {
		t.Fatalf("staging clean --all: %v", err)
	}
	requireContains(t, out, "Removed 1 staging workspaces")
	if _, err := os.Stat(workspace); !os.IsNotExist(err) {
		t.Fatalf("workspace still present: %v", err)
	}
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	testsupport.WriteSourceFile(t, env.cfg, "talks", "https://yt/talks")

	out, _, err := runCLI(t, []string{"--json", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var payload struct {
		DaemonRunning bool   `json:"daemon_running"`
		SyncRunning   bool   `json:"sync_running"`
		Backend       string `json:"storage_backend"`
		Sources       int    `json:"sources"`
		Missing       int    `json:"missing"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if payload.DaemonRunning || payload.SyncRunning {
		t.Fatalf("expected idle status, got %+v", payload)
	}
	if payload.Backend != "dir" || payload.Sources != 1 || payload.Missing != 0 {
		t.Fatalf("unexpected status %+v", payload)
	}
}

func TestStatusText(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Storage\n-------")
	requireContains(t, out, "Dependencies\n------------")
	requireContains(t, out, "Not running")
}

func TestTestNotifyPublishes(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t, testsupport.WithNtfyTopic(srv.URL+"/castsync"))
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 || !strings.Contains(bodies[0], "Notification system test") {
		t.Fatalf("unexpected notification bodies %q", bodies)
	}
}

func TestTestNotifyRequiresTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"test-notify"}, env.configPath); err == nil {
		t.Fatal("expected error without topic")
	}
}
