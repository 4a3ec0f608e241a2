package feed

import (
	"context"
	"log/slog"
	"time"

	"castsync/internal/itemstore"
	"castsync/internal/logging"
	"castsync/internal/objectstore"
	"castsync/internal/services"
)

// Publisher writes rendered feeds to the object store.
type Publisher struct {
	objects objectstore.Store
}

// NewPublisher returns a Publisher backed by objects.
func NewPublisher(objects objectstore.Store) *Publisher {
	return &Publisher{objects: objects}
}

// Publish stores doc under key, replacing any previous feed.
func (p *Publisher) Publish(ctx context.Context, key string, doc []byte) error {
	if err := p.objects.Put(ctx, key, doc, objectstore.ContentTypeXML); err != nil {
		return services.Wrap(services.ErrTransient, "feed", "publish", key, err)
	}
	return nil
}

// Report summarizes one feed refresh.
type Report struct {
	Key        string
	Records    int
	Unreadable int
	// Filtered counts rejected and not podcast friendly records.
	Filtered int
	// Pending counts records that still lack media.
	Pending   int
	Published int
	Bytes     int
	Duration  time.Duration
}

// Refresher rebuilds and publishes the feed for one source.
type Refresher struct {
	Store     *itemstore.Store
	Publisher *Publisher
	Channel   Channel
	Template  string
	Filename  string
	Logger    *slog.Logger
}

// Refresh lists every record, assembles and renders the feed, and publishes
// it. A listing failure aborts without publishing; unreadable records are
// skipped and counted.
func (r Refresher) Refresh(ctx context.Context) (Report, error) {
	start := time.Now()
	logger := logging.WithContext(ctx, logging.NewComponentLogger(r.Logger, "feed"))
	report := Report{Key: r.Store.FeedKey(r.Filename)}

	listed, err := r.Store.List(ctx)
	if err != nil {
		return report, services.Wrap(services.ErrTransient, "feed", "list records", r.Store.Prefix(), err)
	}
	report.Records = len(listed.Records)
	report.Unreadable = len(listed.Failures)
	for _, rec := range listed.Records {
		switch {
		case Filtered(rec):
			report.Filtered++
		case !Publishable(rec):
			report.Pending++
		}
	}

	entries := Assemble(listed.Records, r.Template)
	report.Published = len(entries)
	doc, err := Render(r.Channel, entries)
	if err != nil {
		return report, services.Wrap(services.ErrValidation, "feed", "render", report.Key, err)
	}
	if err := r.Publisher.Publish(ctx, report.Key, doc); err != nil {
		return report, err
	}
	report.Bytes = len(doc)
	report.Duration = time.Since(start)

	logger.Info("feed published",
		logging.String(logging.FieldEventType, "feed_published"),
		logging.String("key", report.Key),
		logging.Int("items", report.Published),
		logging.Int("filtered", report.Filtered),
		logging.Int("pending", report.Pending),
		logging.Int("unreadable", report.Unreadable),
		logging.Duration("duration", report.Duration),
	)
	return report, nil
}
