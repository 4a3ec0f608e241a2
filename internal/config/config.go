package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	StateDir   string `toml:"state_dir"`
	SourcesDir string `toml:"sources_dir"`
}

// S3 contains connection settings for an S3-compatible bucket.
type S3 struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Storage selects the durable store that holds records, limiter state,
// media and feeds.
type Storage struct {
	Backend       string `toml:"backend"`
	PublicBaseURL string `toml:"public_base_url"`
	S3            S3     `toml:"s3"`
	Dir           string `toml:"dir"`
	SQLitePath    string `toml:"sqlite_path"`
	BadgerDir     string `toml:"badger_dir"`
}

// LLM contains connection settings for the metadata generator.
type LLM struct {
	APIKey                 string  `toml:"api_key"`
	BaseURL                string  `toml:"base_url"`
	Model                  string  `toml:"model"`
	Referer                string  `toml:"referer"`
	Title                  string  `toml:"title"`
	Temperature            float64 `toml:"temperature"`
	TimeoutSeconds         int     `toml:"timeout_seconds"`
	PromptPath             string  `toml:"prompt_path"`
	BreakerFailures        int     `toml:"breaker_failures"`
	BreakerCooldownSeconds int     `toml:"breaker_cooldown_seconds"`
}

// YTDLP contains yt-dlp invocation settings.
type YTDLP struct {
	Binary            string   `toml:"binary"`
	PlayerClients     []string `toml:"player_clients"`
	AudioFormat       string   `toml:"audio_format"`
	CookiesFile       string   `toml:"cookies_file"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
	TimeoutSeconds    int      `toml:"timeout_seconds"`
}

// FFmpeg contains transcoding settings.
type FFmpeg struct {
	FFmpegBinary   string  `toml:"ffmpeg_binary"`
	FFprobeBinary  string  `toml:"ffprobe_binary"`
	Loudness       float64 `toml:"loudness"`
	TruePeak       float64 `toml:"true_peak"`
	LoudnessRange  float64 `toml:"loudness_range"`
	SampleRate     int     `toml:"sample_rate"`
	Channels       int     `toml:"channels"`
	Bitrate        string  `toml:"bitrate"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Thumbnails contains thumbnail download settings.
type Thumbnails struct {
	Enabled           bool `toml:"enabled"`
	RequestsPerMinute int  `toml:"requests_per_minute"`
	TimeoutSeconds    int  `toml:"timeout_seconds"`
}

// Server contains HTTP trigger server settings.
type Server struct {
	Bind              string `toml:"bind"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	// Token, when set, is required as a bearer token on trigger endpoints.
	Token string `toml:"token"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	SyncSummary    bool   `toml:"sync_summary"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Workflow contains scheduling and housekeeping settings.
type Workflow struct {
	SyncIntervalMinutes int `toml:"sync_interval_minutes"`
	StagingMaxAgeHours  int `toml:"staging_max_age_hours"`
	MinFreeSpaceMB      int `toml:"min_free_space_mb"`
}

// Config encapsulates all configuration values for castsync.
//
// Configuration sections by subsystem:
//   - Paths: working directories and the sources directory
//   - Storage: durable store backend and public URL
//   - LLM: metadata generation over an OpenAI-compatible chat API
//   - YTDLP: listing, detail and download settings
//   - FFmpeg: loudness normalization and MP3 encoding
//   - Thumbnails: thumbnail downloads
//   - Server: HTTP trigger endpoint
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
//   - Workflow: daemon scheduling and staging housekeeping
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	LLM           LLM           `toml:"llm"`
	YTDLP         YTDLP         `toml:"ytdlp"`
	FFmpeg        FFmpeg        `toml:"ffmpeg"`
	Thumbnails    Thumbnails    `toml:"thumbnails"`
	Server        Server        `toml:"server"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Workflow      Workflow      `toml:"workflow"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("castsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the working directories used by sync runs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the single-flight lock shared by the CLI and the daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "castsync.lock")
}

// PublicBaseURL returns the base under which stored objects are reachable by
// podcast clients. Without an explicit value the S3 endpoint and bucket are used.
func (c *Config) PublicBaseURL() string {
	if base := strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/"); base != "" {
		return base
	}
	if c.Storage.Backend != BackendS3 {
		return ""
	}
	scheme := "http"
	if c.Storage.S3.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, c.Storage.S3.Endpoint, c.Storage.S3.Bucket)
}

// SyncInterval returns the daemon scheduler interval; zero disables scheduling.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Workflow.SyncIntervalMinutes) * time.Minute
}

// StagingMaxAge returns the age after which staging workspaces are removed.
func (c *Config) StagingMaxAge() time.Duration {
	return time.Duration(c.Workflow.StagingMaxAgeHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
