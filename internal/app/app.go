// Package app wires configuration into a ready orchestrator. The CLI and the
// daemon share it so both run passes with identical collaborators.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"castsync/internal/config"
	"castsync/internal/deps"
	"castsync/internal/ingest"
	"castsync/internal/logging"
	"castsync/internal/media/ffprobe"
	"castsync/internal/metrics"
	"castsync/internal/notifications"
	"castsync/internal/objectstore"
	"castsync/internal/preflight"
	"castsync/internal/services/channelfeed"
	"castsync/internal/services/ffmpeg"
	"castsync/internal/services/llm"
	"castsync/internal/services/thumbnail"
	"castsync/internal/services/ytdlp"
	"castsync/internal/sources"
	"castsync/internal/workflow"
)

// Overrides replaces collaborators Build would otherwise construct from
// configuration. Nil fields keep the configured implementation.
type Overrides struct {
	Objects    objectstore.Store
	Sources    *sources.Registry
	Listers    map[string]workflow.Lister
	Fetcher    ingest.Fetcher
	Transcoder ingest.Transcoder
	Validator  ingest.Validator
	Generator  ingest.Generator
	Thumbnails ingest.Thumbnailer
	Notifier   notifications.Service
	Clock      func() time.Time
	// SkipPreflight disables the binary and directory checks.
	SkipPreflight bool
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	overrides      Overrides
	runtimeMetrics bool
}

// WithOverrides injects collaborators, primarily for tests.
func WithOverrides(o Overrides) Option {
	return func(b *buildOptions) { b.overrides = o }
}

// WithRuntimeMetrics registers Go runtime and process collectors.
func WithRuntimeMetrics() Option {
	return func(b *buildOptions) { b.runtimeMetrics = true }
}

// App holds the wired components.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Objects      objectstore.Store
	Sources      *sources.Registry
	Metrics      *metrics.Recorder
	Notifier     notifications.Service
	Orchestrator *workflow.Orchestrator

	skipPreflight bool
}

// Build constructs every collaborator from cfg and loads the source
// definitions. Callers must Close the returned App.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}
	ov := bo.overrides

	objects := ov.Objects
	if objects == nil {
		opened, err := objectstore.Open(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("open object store: %w", err)
		}
		objects = opened
	}

	registry := ov.Sources
	if registry == nil {
		registry = sources.NewRegistry(cfg.Paths.SourcesDir, logger)
		if err := registry.Reload(); err != nil {
			_ = objects.Close()
			return nil, fmt.Errorf("load sources: %w", err)
		}
	}

	orchestratorOpts, err := collaborators(cfg, logger, ov)
	if err != nil {
		_ = objects.Close()
		return nil, err
	}

	recorder := metrics.New(bo.runtimeMetrics)
	notifier := ov.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	orchestratorOpts.Sources = registry
	orchestratorOpts.Objects = objects
	orchestratorOpts.PublicBaseURL = cfg.PublicBaseURL()
	orchestratorOpts.StagingDir = cfg.Paths.StagingDir
	orchestratorOpts.Metrics = recorder
	orchestratorOpts.Notifier = notifier
	orchestratorOpts.Logger = logger
	orchestratorOpts.Clock = ov.Clock

	orchestrator, err := workflow.New(orchestratorOpts)
	if err != nil {
		_ = objects.Close()
		return nil, err
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		Objects:       objects,
		Sources:       registry,
		Metrics:       recorder,
		Notifier:      notifier,
		Orchestrator:  orchestrator,
		skipPreflight: ov.SkipPreflight,
	}, nil
}

func collaborators(cfg *config.Config, logger *slog.Logger, ov Overrides) (workflow.Options, error) {
	var opts workflow.Options

	var ytClient *ytdlp.Client
	if ov.Fetcher == nil || ov.Listers == nil {
		client, err := ytdlp.New(ytdlp.Config{
			Binary:            cfg.YTDLP.Binary,
			PlayerClients:     cfg.YTDLP.PlayerClients,
			AudioFormat:       cfg.YTDLP.AudioFormat,
			CookiesFile:       cfg.YTDLP.CookiesFile,
			RequestsPerMinute: cfg.YTDLP.RequestsPerMinute,
			TimeoutSeconds:    cfg.YTDLP.TimeoutSeconds,
		})
		if err != nil {
			return opts, fmt.Errorf("configure yt-dlp: %w", err)
		}
		ytClient = client
	}

	opts.Listers = ov.Listers
	if opts.Listers == nil {
		opts.Listers = map[string]workflow.Lister{
			sources.ListerYTDLP: ytClient,
			sources.ListerRSS:   channelfeed.New(nil, time.Duration(cfg.YTDLP.TimeoutSeconds)*time.Second),
		}
	}
	opts.Fetcher = ov.Fetcher
	if opts.Fetcher == nil {
		opts.Fetcher = ytClient
	}

	opts.Transcoder = ov.Transcoder
	if opts.Transcoder == nil {
		opts.Transcoder = ffmpeg.New(ffmpeg.Settings{
			Binary:         cfg.FFmpeg.FFmpegBinary,
			Loudness:       cfg.FFmpeg.Loudness,
			TruePeak:       cfg.FFmpeg.TruePeak,
			LoudnessRange:  cfg.FFmpeg.LoudnessRange,
			SampleRate:     cfg.FFmpeg.SampleRate,
			Channels:       cfg.FFmpeg.Channels,
			Bitrate:        cfg.FFmpeg.Bitrate,
			TimeoutSeconds: cfg.FFmpeg.TimeoutSeconds,
		}, logger)
	}
	opts.Validator = ov.Validator
	if opts.Validator == nil {
		opts.Validator = ffprobe.Prober{Binary: deps.ResolveFFprobe(cfg.FFmpeg.FFmpegBinary, cfg.FFmpeg.FFprobeBinary), Codec: "mp3"}
	}

	opts.Generator = ov.Generator
	if opts.Generator == nil && strings.TrimSpace(cfg.LLM.APIKey) != "" {
		prompt, err := llm.LoadPrompt(cfg.LLM.PromptPath)
		if err != nil {
			return opts, err
		}
		client := llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			Referer:        cfg.LLM.Referer,
			Title:          cfg.LLM.Title,
			Temperature:    cfg.LLM.Temperature,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		})
		opts.Generator = llm.NewGenerator(client, prompt, llm.BreakerSettings{
			Failures: cfg.LLM.BreakerFailures,
			Cooldown: time.Duration(cfg.LLM.BreakerCooldownSeconds) * time.Second,
		}, logger)
	}

	opts.Thumbnails = ov.Thumbnails
	if opts.Thumbnails == nil && cfg.Thumbnails.Enabled {
		timeout := time.Duration(cfg.Thumbnails.TimeoutSeconds) * time.Second
		opts.Thumbnails = thumbnail.New(&http.Client{Timeout: timeout}, cfg.Thumbnails.RequestsPerMinute, timeout)
	}
	return opts, nil
}

// Preflight runs the checks a pass needs and returns a combined error for
// any failure.
func (a *App) Preflight(ctx context.Context) error {
	if a.skipPreflight {
		return nil
	}
	return preflight.Failed(preflight.RunAll(ctx, a.Config))
}

// Close releases the object store.
func (a *App) Close() error {
	if a == nil || a.Objects == nil {
		return nil
	}
	return a.Objects.Close()
}
