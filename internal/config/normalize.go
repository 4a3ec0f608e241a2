package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	if err := c.normalizeLLM(); err != nil {
		return err
	}
	if err := c.normalizeYTDLP(); err != nil {
		return err
	}
	c.normalizeFFmpeg()
	c.normalizeServer()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SourcesDir) == "" {
		c.Paths.SourcesDir = defaultSourcesDir
	}
	if c.Paths.SourcesDir, err = expandPath(c.Paths.SourcesDir); err != nil {
		return fmt.Errorf("paths.sources_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendS3
	}
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")

	s3 := &c.Storage.S3
	s3.Endpoint = strings.TrimRight(strings.TrimSpace(s3.Endpoint), "/")
	switch {
	case strings.HasPrefix(s3.Endpoint, "https://"):
		s3.Endpoint = strings.TrimPrefix(s3.Endpoint, "https://")
		s3.UseSSL = true
	case strings.HasPrefix(s3.Endpoint, "http://"):
		s3.Endpoint = strings.TrimPrefix(s3.Endpoint, "http://")
		s3.UseSSL = false
	}
	s3.Bucket = strings.TrimSpace(s3.Bucket)
	if s3.AccessKey == "" {
		s3.AccessKey = lookupFirstEnv("CASTSYNC_S3_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	}
	if s3.SecretKey == "" {
		s3.SecretKey = lookupFirstEnv("CASTSYNC_S3_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	}
	if strings.TrimSpace(s3.Region) == "" {
		s3.Region = defaultS3Region
	}

	var err error
	if strings.TrimSpace(c.Storage.Dir) == "" {
		c.Storage.Dir = defaultStorageDir
	}
	if c.Storage.Dir, err = expandPath(c.Storage.Dir); err != nil {
		return fmt.Errorf("storage.dir: %w", err)
	}
	if strings.TrimSpace(c.Storage.SQLitePath) == "" {
		c.Storage.SQLitePath = filepath.Join(c.Paths.StateDir, defaultSQLiteFile)
	}
	if c.Storage.SQLitePath, err = expandPath(c.Storage.SQLitePath); err != nil {
		return fmt.Errorf("storage.sqlite_path: %w", err)
	}
	if strings.TrimSpace(c.Storage.BadgerDir) == "" {
		c.Storage.BadgerDir = filepath.Join(c.Paths.StateDir, defaultBadgerDir)
	}
	if c.Storage.BadgerDir, err = expandPath(c.Storage.BadgerDir); err != nil {
		return fmt.Errorf("storage.badger_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLLM() error {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = lookupFirstEnv("CASTSYNC_LLM_API_KEY", "OPENROUTER_API_KEY")
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if strings.TrimSpace(c.LLM.PromptPath) != "" {
		var err error
		if c.LLM.PromptPath, err = expandPath(strings.TrimSpace(c.LLM.PromptPath)); err != nil {
			return fmt.Errorf("llm.prompt_path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeYTDLP() error {
	c.YTDLP.Binary = strings.TrimSpace(c.YTDLP.Binary)
	if c.YTDLP.Binary == "" {
		c.YTDLP.Binary = defaultYTDLPBinary
	}
	clients := make([]string, 0, len(c.YTDLP.PlayerClients))
	for _, client := range c.YTDLP.PlayerClients {
		if client = strings.TrimSpace(client); client != "" {
			clients = append(clients, client)
		}
	}
	c.YTDLP.PlayerClients = clients
	c.YTDLP.AudioFormat = strings.TrimSpace(c.YTDLP.AudioFormat)
	if c.YTDLP.AudioFormat == "" {
		c.YTDLP.AudioFormat = defaultYTDLPAudioFormat
	}
	if strings.TrimSpace(c.YTDLP.CookiesFile) != "" {
		var err error
		if c.YTDLP.CookiesFile, err = expandPath(strings.TrimSpace(c.YTDLP.CookiesFile)); err != nil {
			return fmt.Errorf("ytdlp.cookies_file: %w", err)
		}
	}
	if c.YTDLP.TimeoutSeconds <= 0 {
		c.YTDLP.TimeoutSeconds = defaultYTDLPTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeFFmpeg() {
	c.FFmpeg.FFmpegBinary = strings.TrimSpace(c.FFmpeg.FFmpegBinary)
	if c.FFmpeg.FFmpegBinary == "" {
		c.FFmpeg.FFmpegBinary = defaultFFmpegBinary
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
	c.FFmpeg.Bitrate = strings.TrimSpace(c.FFmpeg.Bitrate)
	if c.FFmpeg.Bitrate == "" {
		c.FFmpeg.Bitrate = defaultBitrate
	}
	if c.FFmpeg.TimeoutSeconds <= 0 {
		c.FFmpeg.TimeoutSeconds = defaultFFmpegTimeoutSeconds
	}
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	c.Server.Token = strings.TrimSpace(c.Server.Token)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupFirstEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
