package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"castsync/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultConfigRequiresStorageEndpoint(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected validation error without storage endpoint")
	}
	if !strings.Contains(err.Error(), "storage.s3.endpoint") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadExpandsPathsAndAppliesEnvFallbacks(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OPENROUTER_API_KEY", "llm-key")
	t.Setenv("AWS_ACCESS_KEY_ID", "ak")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "sk")

	path := writeConfig(t, `
[storage.s3]
endpoint = "https://s3.example.com/"
bucket = "podcasts"
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "castsync", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.SourcesDir != filepath.Join(tempHome, ".config", "castsync", "sources") {
		t.Fatalf("unexpected sources dir: %q", cfg.Paths.SourcesDir)
	}
	if cfg.LLM.APIKey != "llm-key" {
		t.Fatalf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Storage.S3.AccessKey != "ak" || cfg.Storage.S3.SecretKey != "sk" {
		t.Fatalf("expected S3 credentials from env, got %+v", cfg.Storage.S3)
	}
	if cfg.Storage.S3.Endpoint != "s3.example.com" || !cfg.Storage.S3.UseSSL {
		t.Fatalf("expected scheme stripped from endpoint, got %+v", cfg.Storage.S3)
	}
	if got := cfg.PublicBaseURL(); got != "https://s3.example.com/podcasts" {
		t.Fatalf("unexpected public base url: %q", got)
	}
	if cfg.Storage.SQLitePath != filepath.Join(cfg.Paths.StateDir, "objects.db") {
		t.Fatalf("unexpected sqlite path: %q", cfg.Storage.SQLitePath)
	}
	if cfg.FFmpeg.Loudness != -19 || cfg.FFmpeg.TruePeak != -1.5 || cfg.FFmpeg.LoudnessRange != 11 {
		t.Fatalf("unexpected loudness defaults: %+v", cfg.FFmpeg)
	}
	if len(cfg.YTDLP.PlayerClients) != 3 {
		t.Fatalf("expected default player clients, got %v", cfg.YTDLP.PlayerClients)
	}
}

func TestConfigPrefersExplicitCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CASTSYNC_LLM_API_KEY", "env-key")

	path := writeConfig(t, `
[storage]
backend = "dir"
public_base_url = "https://cdn.example.com/podcasts/"

[llm]
api_key = "file-key"
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "file-key" {
		t.Fatalf("expected file key to win, got %q", cfg.LLM.APIKey)
	}
	if got := cfg.PublicBaseURL(); got != "https://cdn.example.com/podcasts" {
		t.Fatalf("unexpected public base url: %q", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown backend", func(c *config.Config) { c.Storage.Backend = "ftp" }, "storage.backend"},
		{"dir without base url", func(c *config.Config) { c.Storage.Backend = config.BackendDir }, "storage.public_base_url"},
		{"relative base url", func(c *config.Config) { c.Storage.PublicBaseURL = "podcasts" }, "absolute URL"},
		{"positive loudness", func(c *config.Config) { c.FFmpeg.Loudness = 3 }, "ffmpeg.loudness"},
		{"zero channels", func(c *config.Config) { c.FFmpeg.Channels = 0 }, "ffmpeg.channels"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"negative interval", func(c *config.Config) { c.Workflow.SyncIntervalMinutes = -1 }, "workflow.sync_interval_minutes"},
		{"bind without port", func(c *config.Config) { c.Server.Bind = "localhost" }, "server.bind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage.S3.Endpoint = "s3.example.com"
			cfg.Storage.S3.Bucket = "podcasts"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %v", tt.want, err)
			}
		})
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if decoded.Storage.S3.Bucket != "podcasts" {
		t.Fatalf("unexpected sample bucket: %q", decoded.Storage.S3.Bucket)
	}

	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LogDir, cfg.Paths.StateDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s", dir)
		}
	}
	if cfg.LockPath() != filepath.Join(cfg.Paths.StateDir, "castsync.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
}
