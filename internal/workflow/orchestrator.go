package workflow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"castsync/internal/catalog"
	"castsync/internal/feed"
	"castsync/internal/ingest"
	"castsync/internal/itemstore"
	"castsync/internal/logging"
	"castsync/internal/metrics"
	"castsync/internal/notifications"
	"castsync/internal/objectstore"
	"castsync/internal/ratelimit"
	"castsync/internal/runlock"
	"castsync/internal/services"
	"castsync/internal/sources"
)

// Lister enumerates the items of a channel URL.
type Lister interface {
	List(ctx context.Context, channelURL string) iter.Seq2[catalog.Entry, error]
}

// SourceSelector resolves the sources taking part in a pass.
type SourceSelector interface {
	Select(ids []string) ([]sources.Source, error)
}

// Options wires an Orchestrator. Generator, Thumbnails, Metrics and
// Notifier may be nil.
type Options struct {
	Sources    SourceSelector
	Objects    objectstore.Store
	Listers    map[string]Lister
	Fetcher    ingest.Fetcher
	Transcoder ingest.Transcoder
	Validator  ingest.Validator
	Generator  ingest.Generator
	Thumbnails ingest.Thumbnailer

	PublicBaseURL string
	StagingDir    string

	Metrics  *metrics.Recorder
	Notifier notifications.Service
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Orchestrator runs sync and refresh passes.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	current string
	last    *RunSummary
}

// New returns an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Sources == nil:
		return nil, errors.New("workflow: source selector is required")
	case opts.Objects == nil:
		return nil, errors.New("workflow: object store is required")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = notifications.NewService(nil)
	}
	return &Orchestrator{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "workflow"),
	}, nil
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Running bool
	Kind    string
	LastRun *RunSummary
}

// Status reports whether a pass is running and the last completed pass.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{Running: o.running, Kind: o.current}
	if o.last != nil {
		last := *o.last
		st.LastRun = &last
	}
	return st
}

// Running reports whether a pass is in progress.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Sync ingests new items for the selected sources and refreshes their feeds.
// An empty filter selects every enabled source.
func (o *Orchestrator) Sync(ctx context.Context, filter []string) (RunSummary, error) {
	return o.run(ctx, KindSync, filter)
}

// Refresh rebuilds feeds for the selected sources without ingesting.
func (o *Orchestrator) Refresh(ctx context.Context, filter []string) (RunSummary, error) {
	return o.run(ctx, KindRefresh, filter)
}

func (o *Orchestrator) begin(kind string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	o.current = kind
	return true
}

func (o *Orchestrator) end(summary RunSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	o.current = ""
	o.last = &summary
}

func (o *Orchestrator) run(ctx context.Context, kind string, filter []string) (RunSummary, error) {
	if !o.begin(kind) {
		return RunSummary{}, runlock.ErrBusy
	}
	summary := RunSummary{RunID: uuid.NewString(), Kind: kind, Started: o.opts.Clock()}
	defer func() {
		summary.Duration = o.opts.Clock().Sub(summary.Started)
		o.end(summary)
	}()

	ctx = services.WithRunID(ctx, summary.RunID)
	logger := logging.WithContext(ctx, o.logger)

	selected, err := o.opts.Sources.Select(filter)
	if err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "workflow", "select sources", strings.Join(filter, ","), err)
	}
	logger.Info("pass started",
		logging.String(logging.FieldEventType, kind+"_started"),
		logging.Int("sources", len(selected)),
	)

	for _, src := range selected {
		if err := ctx.Err(); err != nil {
			logger.Info("pass canceled", logging.Error(err))
			break
		}
		srcCtx := services.WithSourceID(ctx, src.ID)
		var report SourceReport
		if kind == KindSync {
			report = o.syncSource(srcCtx, src)
		} else {
			report = o.refreshSource(srcCtx, src, SourceReport{SourceID: src.ID})
		}
		summary.Sources = append(summary.Sources, report)
		o.countRun(src.ID, kind)
	}

	summary.Duration = o.opts.Clock().Sub(summary.Started)
	logger.Info("pass finished",
		logging.String(logging.FieldEventType, kind+"_finished"),
		logging.Int("sources", len(summary.Sources)),
		logging.Int("published", summary.Published()),
		logging.Int("failed", summary.Failed()),
		logging.Duration("duration", summary.Duration),
	)
	o.notify(ctx, notifications.EventSyncCompleted, notifications.Payload{
		"kind":      kind,
		"published": summary.Published(),
		"failed":    summary.Failed(),
		"sources":   len(summary.Sources),
		"duration":  summary.Duration,
	})
	return summary, nil
}

func (o *Orchestrator) syncSource(ctx context.Context, src sources.Source) SourceReport {
	logger := logging.WithContext(ctx, o.logger)
	report := SourceReport{SourceID: src.ID}
	store := itemstore.New(o.opts.Objects, src.Prefix(), o.opts.Logger)

	machine, err := o.buildMachine(ctx, src, store)
	if err != nil {
		report.Err = err
		logging.ErrorWithContext(logger, "source setup failed", "source_setup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the source definition and store access"),
		)
		o.notify(ctx, notifications.EventError, notifications.Payload{"context": "source " + src.ID, "error": err})
		return o.refreshSource(ctx, src, report)
	}
	lister, ok := o.opts.Listers[src.Lister]
	if !ok || lister == nil {
		report.Err = services.Wrap(services.ErrConfiguration, "workflow", "lister", fmt.Sprintf("no lister %q", src.Lister), nil)
		logging.ErrorWithContext(logger, "source lister unavailable", "lister_missing",
			logging.String("lister", src.Lister),
			logging.String(logging.FieldErrorHint, "set lister to ytdlp or rss"),
		)
		return o.refreshSource(ctx, src, report)
	}

	seen := make(map[string]struct{})
channels:
	for _, channelURL := range src.ChannelURLs {
		for entry, err := range lister.List(ctx, channelURL) {
			if err != nil {
				report.ListErrors++
				logging.WarnWithContext(logger, "channel listing failed", "listing_failed",
					logging.String("channel_url", channelURL),
					logging.Error(err),
					logging.String("error_kind", services.Classify(err)),
					logging.String(logging.FieldImpact, "remaining items of this channel are skipped for this pass"),
				)
				break
			}
			id := strings.TrimSpace(entry.ID)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				report.Duplicates++
				continue
			}
			seen[id] = struct{}{}
			report.Listed++

			res := machine.Run(ctx, ingest.Candidate{ID: id, URL: entry.URL, Title: entry.Title})
			report.record(res)
			o.countResult(src.ID, res)
			if res.Halt {
				logger.Info("source halted",
					logging.String(logging.FieldEventType, "source_halted"),
					logging.String(logging.FieldReason, res.Reason),
					logging.String("item_id", res.ItemID),
				)
				if res.Reason == ingest.ReasonAIRateLimited || errors.Is(res.Err, services.ErrRateLimited) {
					o.notify(ctx, notifications.EventSourceHalted, notifications.Payload{"source": src.ID, "reason": res.Reason})
				}
				break channels
			}
			if ctx.Err() != nil {
				break channels
			}
		}
	}

	logger.Info("source ingest finished",
		logging.Int("listed", report.Listed),
		logging.Int("published", report.Published),
		logging.Int("skipped", report.Skipped),
		logging.Int("deferred", report.Deferred),
		logging.Int("failed", report.Failed),
		logging.Bool("halted", report.Halted),
	)
	return o.refreshSource(ctx, src, report)
}

func (o *Orchestrator) buildMachine(ctx context.Context, src sources.Source, store *itemstore.Store) (*ingest.Machine, error) {
	gateOpts := []ratelimit.Option{ratelimit.WithClock(o.opts.Clock), ratelimit.WithLogger(o.opts.Logger)}
	items := ratelimit.New(ratelimit.ResourceItems, src.Sync.MaxItemsPerDay, store, gateOpts...)
	if err := items.Load(ctx); err != nil {
		return nil, err
	}
	deps := ingest.Deps{
		Store:      store,
		Fetcher:    o.opts.Fetcher,
		Transcoder: o.opts.Transcoder,
		Validator:  o.opts.Validator,
		Thumbnails: o.opts.Thumbnails,
		Items:      items,
		Logger:     o.opts.Logger,
		Clock:      o.opts.Clock,
	}
	if src.AI.Enabled && o.opts.Generator != nil {
		metadata := ratelimit.New(ratelimit.ResourceMetadata, src.AI.MaxCallsPerDay, store, gateOpts...)
		if err := metadata.Load(ctx); err != nil {
			return nil, err
		}
		deps.Generator = o.opts.Generator
		deps.Metadata = metadata
	}
	return ingest.New(ingest.Config{
		SourceID:            src.ID,
		Matcher:             src.TitleMatcher(),
		AIEnabled:           src.AI.Enabled,
		DescriptionTemplate: src.Podcast.DescriptionTemplate,
		PublicBaseURL:       o.opts.PublicBaseURL,
		StagingDir:          o.opts.StagingDir,
	}, deps)
}

func (o *Orchestrator) refreshSource(ctx context.Context, src sources.Source, report SourceReport) SourceReport {
	ctx = services.WithStage(ctx, "feed")
	refresher := feed.Refresher{
		Store:     itemstore.New(o.opts.Objects, src.Prefix(), o.opts.Logger),
		Publisher: feed.NewPublisher(o.opts.Objects),
		Channel:   ChannelFor(src, o.opts.PublicBaseURL),
		Template:  src.Podcast.DescriptionTemplate,
		Filename:  src.FeedFilename,
		Logger:    o.opts.Logger,
	}
	feedReport, err := refresher.Refresh(ctx)
	report.Feed = feedReport
	if err != nil {
		report.FeedErr = err
		logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "feed refresh failed", "feed_refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check object store access; the previous feed stays published"),
		)
		o.notify(ctx, notifications.EventError, notifications.Payload{"context": "feed " + src.ID, "error": err})
		return report
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.FeedFiltered.WithLabelValues(src.ID).Add(float64(feedReport.Filtered))
	}
	return report
}

// ChannelFor maps a source's podcast settings onto feed channel metadata.
func ChannelFor(src sources.Source, publicBaseURL string) feed.Channel {
	p := src.Podcast
	base := ""
	if strings.TrimSpace(publicBaseURL) != "" {
		base = objectstore.PublicURL(publicBaseURL, strings.TrimSuffix(src.Prefix(), "/"))
	}
	return feed.Channel{
		Title:       p.Title,
		Description: p.Description,
		Link:        p.Link,
		Language:    p.Language,
		Author:      p.Author,
		Email:       p.Email,
		Explicit:    p.Explicit,
		Category:    p.Category,
		Subcategory: p.Subcategory,
		ImageURL:    p.ImageURL,
		BaseURL:     base,
	}
}

func (o *Orchestrator) countResult(sourceID string, res ingest.Result) {
	m := o.opts.Metrics
	if m == nil {
		return
	}
	gated := res.Reason == ingest.ReasonDailyLimit || res.Reason == ingest.ReasonPeriodicLimit
	if !gated && res.Reason != ingest.ReasonAlreadyExists {
		m.Attempts.WithLabelValues(sourceID).Inc()
	}
	switch res.Outcome {
	case ingest.OutcomeProcessed:
		m.Successes.WithLabelValues(sourceID).Inc()
		if res.State != ingest.StatePublished {
			m.Skipped.WithLabelValues(sourceID, res.Reason).Inc()
		}
	case ingest.OutcomeDeferred:
		m.Skipped.WithLabelValues(sourceID, res.Reason).Inc()
	case ingest.OutcomeSkipped:
		if res.Reason != ingest.ReasonAlreadyExists {
			m.Skipped.WithLabelValues(sourceID, res.Reason).Inc()
		}
	case ingest.OutcomeFailed:
		m.Failures.WithLabelValues(sourceID).Inc()
	}
	switch res.Reason {
	case ingest.ReasonGenerationFailed:
		m.AIFailures.WithLabelValues(sourceID).Inc()
	case ingest.ReasonAIRateLimited:
		m.AIRateLimited.WithLabelValues(sourceID).Inc()
	}
}

func (o *Orchestrator) countRun(sourceID, kind string) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.Runs.WithLabelValues(sourceID, kind).Inc()
	}
}

func (o *Orchestrator) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := o.opts.Notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			o.logger.Debug("shutting down, notification not sent", logging.String("event", string(event)))
			return
		}
		o.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
