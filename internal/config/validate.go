package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateYTDLP(); err != nil {
		return err
	}
	if err := c.validateFFmpeg(); err != nil {
		return err
	}
	if err := c.validateThumbnails(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateWorkflow()
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case BackendS3:
		if c.Storage.S3.Endpoint == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("storage.s3.endpoint is required for the s3 backend. Edit %s (create with 'castsync config init') or choose another storage.backend", defaultPath)
		}
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required for the s3 backend")
		}
	case BackendDir, BackendSQLite, BackendBadger, BackendMemory:
		if c.Storage.PublicBaseURL == "" {
			return fmt.Errorf("storage.public_base_url is required for the %s backend", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage.backend must be one of s3, dir, sqlite, badger, memory (got %q)", c.Storage.Backend)
	}
	if c.Storage.PublicBaseURL != "" {
		parsed, err := url.Parse(c.Storage.PublicBaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("storage.public_base_url must be an absolute URL (got %q)", c.Storage.PublicBaseURL)
		}
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	if c.LLM.BreakerFailures < 0 {
		return errors.New("llm.breaker_failures must be non-negative")
	}
	if c.LLM.BreakerCooldownSeconds < 0 {
		return errors.New("llm.breaker_cooldown_seconds must be non-negative")
	}
	return nil
}

func (c *Config) validateYTDLP() error {
	if c.YTDLP.RequestsPerMinute < 0 {
		return errors.New("ytdlp.requests_per_minute must be non-negative")
	}
	return nil
}

func (c *Config) validateFFmpeg() error {
	if c.FFmpeg.SampleRate <= 0 {
		return errors.New("ffmpeg.sample_rate must be positive")
	}
	if c.FFmpeg.Channels <= 0 {
		return errors.New("ffmpeg.channels must be positive")
	}
	if c.FFmpeg.Loudness >= 0 {
		return errors.New("ffmpeg.loudness must be negative (LUFS)")
	}
	if c.FFmpeg.TruePeak > 0 {
		return errors.New("ffmpeg.true_peak must not be positive (dBTP)")
	}
	if c.FFmpeg.LoudnessRange <= 0 {
		return errors.New("ffmpeg.loudness_range must be positive")
	}
	return nil
}

func (c *Config) validateThumbnails() error {
	if c.Thumbnails.RequestsPerMinute < 0 {
		return errors.New("thumbnails.requests_per_minute must be non-negative")
	}
	if c.Thumbnails.TimeoutSeconds <= 0 {
		return errors.New("thumbnails.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if !strings.Contains(c.Server.Bind, ":") {
		return fmt.Errorf("server.bind must be host:port (got %q)", c.Server.Bind)
	}
	if c.Server.RequestsPerMinute < 0 {
		return errors.New("server.requests_per_minute must be non-negative")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console, or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.SyncIntervalMinutes < 0 {
		return errors.New("workflow.sync_interval_minutes must be non-negative")
	}
	if c.Workflow.StagingMaxAgeHours < 0 {
		return errors.New("workflow.staging_max_age_hours must be non-negative")
	}
	if c.Workflow.MinFreeSpaceMB < 0 {
		return errors.New("workflow.min_free_space_mb must be non-negative")
	}
	return nil
}
