package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"castsync/internal/app"
	"castsync/internal/catalog"
	"castsync/internal/config"
	"castsync/internal/sources"
	"castsync/internal/testsupport"
	"castsync/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	lister     *testsupport.Lister
	fetcher    *testsupport.Fetcher
}

// setupCLITestEnv writes a config using the dir backend so state survives
// between command invocations, and swaps the external tools for fakes.
func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	opts = append([]testsupport.ConfigOption{testsupport.WithBackend(config.BackendDir)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Workflow.MinFreeSpaceMB = 0
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	configPath := filepath.Join(base, "castsync.toml")
	writeTestConfig(t, configPath, cfg)

	env := &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		lister: testsupport.NewLister(map[string]testsupport.Listing{
			"https://yt/talks": {Entries: []catalog.Entry{
				{ID: "v1", Title: "First talk"},
				{ID: "v2", Title: "Second talk"},
			}},
		}),
		fetcher: &testsupport.Fetcher{},
	}

	previous := extraAppOptions
	extraAppOptions = []app.Option{app.WithOverrides(app.Overrides{
		Listers:       map[string]workflow.Lister{sources.ListerYTDLP: env.lister},
		Fetcher:       env.fetcher,
		Transcoder:    testsupport.Transcoder{Size: 4096},
		Validator:     testsupport.Validator{Duration: 1800},
		SkipPreflight: true,
	})}
	t.Cleanup(func() { extraAppOptions = previous })

	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
