package main

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"castsync/internal/runlock"
	"castsync/internal/testsupport"
)

func TestSyncItemsAndLimits(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteSourceFile(t, env.cfg, "talks", "https://yt/talks")

	out, _, err := runCLI(t, []string{"sync"}, env.configPath)
	if err != nil {
		t.Fatalf("sync: %v\n%s", err, out)
	}
	requireContains(t, out, "talks")
	requireContains(t, out, "2 published, 0 failed")

	out, _, err = runCLI(t, []string{"items", "talks"}, env.configPath)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	requireContains(t, out, "v1")
	requireContains(t, out, "v2")
	requireContains(t, out, "published")
	requireContains(t, out, "2 records")

	out, _, err = runCLI(t, []string{"--json", "limits"}, env.configPath)
	if err != nil {
		t.Fatalf("limits: %v", err)
	}
	var rows []struct {
		Source   string `json:"source"`
		Resource string `json:"resource"`
		Used     int    `json:"used"`
	}
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode limits: %v\n%s", err, out)
	}
	if len(rows) != 1 || rows[0].Source != "talks" || rows[0].Resource != "items" || rows[0].Used != 2 {
		t.Fatalf("unexpected limits %+v", rows)
	}

	// A second pass finds every item recorded.
	out, _, err = runCLI(t, []string{"--json", "sync", "--source", "talks"}, env.configPath)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	var summary struct {
		Kind      string `json:"kind"`
		Published int    `json:"published"`
		Sources   []struct {
			ID        string `json:"id"`
			Skipped   int    `json:"skipped"`
			FeedItems int    `json:"feed_items"`
		} `json:"sources"`
	}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	if summary.Kind != "sync" || summary.Published != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(summary.Sources) != 1 || summary.Sources[0].Skipped != 2 || summary.Sources[0].FeedItems != 2 {
		t.Fatalf("unexpected source summary %+v", summary.Sources)
	}
	if got := len(env.fetcher.Fetched()); got != 2 {
		t.Fatalf("expected 2 fetches across both passes, got %d", got)
	}
}

func TestRefreshDoesNotList(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteSourceFile(t, env.cfg, "talks", "https://yt/talks")

	out, _, err := runCLI(t, []string{"refresh"}, env.configPath)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	requireContains(t, out, "refresh")
	if calls := env.lister.Calls(); len(calls) != 0 {
		t.Fatalf("refresh listed channels: %v", calls)
	}
}

func TestSyncRejectsUnknownSource(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteSourceFile(t, env.cfg, "talks", "https://yt/talks")

	_, _, err := runCLI(t, []string{"sync", "--source", "missing"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected unknown source error, got %v", err)
	}
}

func TestSyncRefusesWhileLockHeld(t *testing.T) {
	env := setupCLITestEnv(t)
	lock, err := runlock.Acquire(env.cfg.LockPath())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lock.Release()

	_, _, err = runCLI(t, []string{"sync"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected busy error, got %v", err)
	}
}

func TestItemsUnknownSource(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"items", "nope"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown source")
	}
}
