package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"castsync/internal/catalog"
	"castsync/internal/feed"
	"castsync/internal/itemstore"
	"castsync/internal/logging"
	"castsync/internal/objectstore"
	"castsync/internal/ratelimit"
	"castsync/internal/services"
	"castsync/internal/staging"
	"castsync/internal/textmatch"
)

// Fetcher resolves item details and downloads source media.
type Fetcher interface {
	FetchDetail(ctx context.Context, url string) (catalog.Detail, error)
	DownloadMedia(ctx context.Context, url, dir string) (string, error)
}

// Transcoder converts downloaded media into the published audio format.
type Transcoder interface {
	Normalize(ctx context.Context, rawPath, outPath string) error
}

// Validator checks transcoded output and reports its duration in seconds.
type Validator interface {
	Validate(ctx context.Context, path string) (float64, error)
}

// Generator produces structured metadata for an item URL.
type Generator interface {
	Generate(ctx context.Context, url string) (*itemstore.Metadata, error)
}

// Thumbnailer downloads an image to a local path.
type Thumbnailer interface {
	Fetch(ctx context.Context, imageURL, destPath string) error
}

// Gate is the quota surface consulted before consuming a resource.
type Gate interface {
	TryConsume(ctx context.Context) ratelimit.Decision
	RecordConsumption(ctx context.Context) error
}

// Config carries the per-source settings of a Machine.
type Config struct {
	SourceID            string
	Matcher             textmatch.Matcher
	AIEnabled           bool
	DescriptionTemplate string
	PublicBaseURL       string
	StagingDir          string
}

// Deps are the collaborators of a Machine. Generator, Metadata and
// Thumbnails may be nil.
type Deps struct {
	Store      *itemstore.Store
	Fetcher    Fetcher
	Transcoder Transcoder
	Validator  Validator
	Generator  Generator
	Thumbnails Thumbnailer
	Items      Gate
	Metadata   Gate
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Machine drives items of one source through the pipeline. Runs are
// sequential; a Machine is not safe for concurrent use.
type Machine struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

// New validates deps and returns a Machine.
func New(cfg Config, deps Deps) (*Machine, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("ingest: item store is required")
	case deps.Fetcher == nil:
		return nil, errors.New("ingest: fetcher is required")
	case deps.Transcoder == nil:
		return nil, errors.New("ingest: transcoder is required")
	case deps.Validator == nil:
		return nil, errors.New("ingest: validator is required")
	case deps.Items == nil:
		return nil, errors.New("ingest: items gate is required")
	case strings.TrimSpace(cfg.StagingDir) == "":
		return nil, errors.New("ingest: staging dir is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Machine{
		cfg:    cfg,
		deps:   deps,
		logger: logging.NewComponentLogger(deps.Logger, "ingest"),
	}, nil
}

// Run processes one candidate and reports where it ended.
func (m *Machine) Run(ctx context.Context, c Candidate) Result {
	ctx = services.WithItemID(ctx, c.ID)
	ctx = services.WithStage(ctx, "discover")
	logger := logging.WithContext(ctx, m.logger)

	if strings.TrimSpace(c.URL) == "" {
		c.URL = catalog.WatchURL(c.ID)
	}

	retryRejected := false
	existing, err := m.deps.Store.Get(ctx, c.ID)
	switch {
	case err == nil:
		if existing.Complete() {
			if !existing.Rejected() || !m.discoveryTitlePasses(c) {
				logger.Debug("item already processed", logging.Decision("discover", "skip", ReasonAlreadyExists)...)
				return skipped(c.ID, ReasonAlreadyExists)
			}
			retryRejected = true
			logger.Info("re-evaluating rejected item", logging.Decision("discover", "retry", "title_now_passes")...)
		}
	case errors.Is(err, services.ErrNotFound):
	case errors.Is(err, services.ErrValidation):
		logging.WarnWithContext(logger, "unreadable record; reprocessing", "record_unreadable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "item is processed again and the record overwritten"),
		)
	default:
		return failed(c.ID, ReasonPipelineFailure, err, false)
	}

	decision := m.deps.Items.TryConsume(ctx)
	if !decision.Allowed {
		logger.Info("item quota reached",
			logging.String(logging.FieldReason, decision.Reason),
			logging.Int("wait_minutes", decision.WaitMinutes),
		)
		return deferred(c.ID, decision.Reason, true)
	}

	return m.process(ctx, c, retryRejected)
}

func (m *Machine) discoveryTitlePasses(c Candidate) bool {
	return strings.TrimSpace(c.Title) != "" && m.cfg.Matcher.Match(c.Title, "")
}

func (m *Machine) process(ctx context.Context, c Candidate, retryRejected bool) Result {
	now := m.deps.Clock()
	detail, err := m.deps.Fetcher.FetchDetail(ctx, c.URL)
	if err != nil {
		return m.pipelineFailure(ctx, c.ID, "fetch detail", err)
	}

	rec := itemstore.Record{
		ID:          c.ID,
		SourceID:    m.cfg.SourceID,
		Title:       firstNonEmpty(detail.Title, c.Title),
		OriginalURL: c.URL,
		PubDate:     detail.PubDate(now),
		Duration:    wholeSeconds(detail.Duration),
	}
	rec.OriginalTitle = rec.Title

	// Title filter.
	ctx = services.WithStage(ctx, "filter")
	logger := logging.WithContext(ctx, m.logger)
	if !m.cfg.Matcher.Match(rec.OriginalTitle, detail.Description) {
		if retryRejected {
			logger.Info("item still rejected", logging.Decision("title_filter", "skip", ReasonStillRejected)...)
			return skipped(c.ID, ReasonStillRejected)
		}
		rec.TitleMatch = itemstore.TitleMatchRejected
		logger.Info("title filter rejected item", logging.Decision("title_filter", "reject", ReasonTitleMismatch)...)
		return m.finish(ctx, rec, StateSkippedTitleMismatch, ReasonTitleMismatch)
	}
	if !m.cfg.Matcher.Empty() {
		rec.TitleMatch = itemstore.TitleMatchMatched
	}

	// Metadata.
	if m.cfg.AIEnabled && m.deps.Generator != nil {
		ctx = services.WithStage(ctx, "metadata")
		if res, stop := m.generate(ctx, &rec); stop {
			return res
		}
	}

	// Media.
	ctx = services.WithStage(ctx, "media")
	logger = logging.WithContext(ctx, m.logger)
	if rec.NotFriendly() {
		logger.Info("item not podcast friendly", logging.Decision("friendliness", "skip", ReasonNotPodcastFriendly)...)
		return m.finish(ctx, rec, StateSkippedFriendlyFalse, ReasonNotPodcastFriendly)
	}
	if err := m.processMedia(ctx, &rec, detail); err != nil {
		return m.pipelineFailure(ctx, c.ID, "process media", err)
	}

	ctx = services.WithStage(ctx, "publish")
	return m.finish(ctx, rec, StatePublished, ReasonPublished)
}

// generate asks the generator for metadata. stop is true when the item must
// leave the pipeline with res.
func (m *Machine) generate(ctx context.Context, rec *itemstore.Record) (res Result, stop bool) {
	logger := logging.WithContext(ctx, m.logger)
	if m.deps.Metadata != nil {
		decision := m.deps.Metadata.TryConsume(ctx)
		if !decision.Allowed {
			reason := "ai_" + decision.Reason
			logger.Info("metadata quota reached",
				logging.String(logging.FieldReason, reason),
				logging.Int("wait_minutes", decision.WaitMinutes),
			)
			return deferred(rec.ID, reason, false), true
		}
	}

	meta, err := m.deps.Generator.Generate(ctx, rec.OriginalURL)
	if err != nil {
		if errors.Is(err, services.ErrRateLimited) {
			logging.WarnWithContext(logger, "metadata provider rate limited", "ai_rate_limited",
				logging.Error(err),
				logging.String(logging.FieldImpact, "remaining items of this source wait for the next sync"),
			)
			return deferred(rec.ID, ReasonAIRateLimited, true), true
		}
		logging.ErrorWithContext(logger, "metadata generation failed", "ai_generation_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the llm settings and provider status"),
			logging.String("error_kind", services.Classify(err)),
		)
		return failed(rec.ID, ReasonGenerationFailed, err, false), true
	}
	// Every completed provider call counts, even one that returned nothing.
	if m.deps.Metadata != nil {
		if err := m.deps.Metadata.RecordConsumption(ctx); err != nil {
			logging.WarnWithContext(logger, "failed to persist metadata quota", "limiter_persist_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "quota may be exceeded after a restart"),
			)
		}
	}
	if meta == nil {
		return Result{}, false
	}
	if err := rec.SetMetadata(*meta); err != nil {
		return failed(rec.ID, ReasonGenerationFailed, err, false), true
	}
	if tc := meta.TitleComponents; tc != nil {
		rec.Title = textmatch.FormatTitle(rec.OriginalTitle, textmatch.TitleParts{
			Series:  tc.SeriesName,
			Episode: string(tc.EpisodeNumber),
			Topic:   tc.TopicSummary,
		})
	}
	logger.Debug("metadata attached", logging.String("title", rec.Title))
	return Result{}, false
}

func (m *Machine) processMedia(ctx context.Context, rec *itemstore.Record, detail catalog.Detail) error {
	logger := logging.WithContext(ctx, m.logger)
	ws, err := staging.Acquire(m.cfg.StagingDir, m.cfg.SourceID, rec.ID)
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			logging.WarnWithContext(logger, "failed to remove staging workspace", "staging_cleanup_failed",
				logging.String("path", ws.Path()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale workspace is removed by staging clean"),
			)
		}
	}()

	rawPath, err := m.deps.Fetcher.DownloadMedia(ctx, rec.OriginalURL, ws.Path())
	if err != nil {
		return err
	}
	audioPath := ws.File(rec.ID + ".mp3")
	if err := m.deps.Transcoder.Normalize(ctx, rawPath, audioPath); err != nil {
		return err
	}
	duration, err := m.deps.Validator.Validate(ctx, audioPath)
	if err != nil {
		return err
	}
	if rec.Duration <= 0 {
		rec.Duration = wholeSeconds(duration)
	}

	objects := m.deps.Store.Objects()
	audioKey := m.deps.Store.AudioKey(rec.ID)
	if err := objectstore.PutFile(ctx, objects, audioKey, audioPath, objectstore.ContentTypeMP3); err != nil {
		return services.Wrap(services.ErrTransient, "media", "upload", audioKey, err)
	}
	rec.AudioURL = objectstore.PublicURL(m.cfg.PublicBaseURL, audioKey)

	if m.deps.Thumbnails != nil && strings.TrimSpace(detail.Thumbnail) != "" {
		rec.ImageURL = m.uploadThumbnail(ctx, ws, rec.ID, detail.Thumbnail)
	}

	info, err := os.Stat(audioPath)
	if err != nil {
		return fmt.Errorf("stat audio: %w", err)
	}
	rec.LengthBytes = info.Size()
	logger.Info("media uploaded",
		logging.String("key", audioKey),
		logging.Int64("size_bytes", rec.LengthBytes),
		logging.Float64("duration_seconds", rec.Duration),
	)
	return nil
}

// uploadThumbnail returns the public image URL or "" when any step fails.
func (m *Machine) uploadThumbnail(ctx context.Context, ws *staging.Workspace, id, imageURL string) string {
	logger := logging.WithContext(ctx, m.logger)
	path := ws.File(id + ".jpg")
	key := m.deps.Store.ImageKey(id)
	err := m.deps.Thumbnails.Fetch(ctx, imageURL, path)
	if err == nil {
		err = objectstore.PutFile(ctx, m.deps.Store.Objects(), key, path, objectstore.ContentTypeJPEG)
	}
	if err != nil {
		logging.WarnWithContext(logger, "thumbnail skipped", "thumbnail_failed",
			logging.String("url", imageURL),
			logging.Error(err),
			logging.String(logging.FieldImpact, "episode is published without artwork"),
		)
		return ""
	}
	return objectstore.PublicURL(m.cfg.PublicBaseURL, key)
}

// finish persists rec as the terminal record and records the item
// consumption. The record is written first: a crash in between leaves the
// item done but uncounted, so the quota can undercount by one for the day,
// never block an item that was not persisted.
func (m *Machine) finish(ctx context.Context, rec itemstore.Record, state State, reason string) Result {
	logger := logging.WithContext(ctx, m.logger)
	rec.Description = feed.Describe(m.cfg.DescriptionTemplate, rec)
	rec.ProcessedAt = m.deps.Clock().UTC()
	if err := m.deps.Store.Put(ctx, rec); err != nil {
		return m.pipelineFailure(ctx, rec.ID, "persist record", err)
	}
	if err := m.deps.Items.RecordConsumption(ctx); err != nil {
		logging.WarnWithContext(logger, "failed to persist item quota", "limiter_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "quota may be exceeded after a restart"),
		)
	}
	logger.Info("item processed",
		logging.String(logging.FieldEventType, "item_"+string(state)),
		logging.String(logging.FieldReason, reason),
		logging.String("title", rec.Title),
	)
	return processed(state, reason, rec)
}

func (m *Machine) pipelineFailure(ctx context.Context, id, op string, err error) Result {
	halt := errors.Is(err, services.ErrRateLimited)
	logging.ErrorWithContext(logging.WithContext(ctx, m.logger), "item pipeline failed", "item_failed",
		logging.String("operation", op),
		logging.Error(err),
		logging.String("error_kind", services.Classify(err)),
		logging.Bool("halt_source", halt),
		logging.String(logging.FieldErrorHint, "the item is retried on the next sync"),
	)
	return failed(id, ReasonPipelineFailure, fmt.Errorf("%s: %w", op, err), halt)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// wholeSeconds rounds a duration in seconds to a non-negative whole number.
func wholeSeconds(seconds float64) float64 {
	return max(math.Round(seconds), 0)
}
