package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castsync/internal/catalog"
	"castsync/internal/itemstore"
	"castsync/internal/logging"
	"castsync/internal/objectstore"
	"castsync/internal/ratelimit"
	"castsync/internal/services"
	"castsync/internal/textmatch"
)

type fakeFetcher struct {
	details     map[string]catalog.Detail
	detailErr   error
	downloadErr error
	detailCalls int
	downloads   int
}

func (f *fakeFetcher) FetchDetail(_ context.Context, url string) (catalog.Detail, error) {
	f.detailCalls++
	if f.detailErr != nil {
		return catalog.Detail{}, f.detailErr
	}
	return f.details[url], nil
}

func (f *fakeFetcher) DownloadMedia(_ context.Context, url, dir string) (string, error) {
	f.downloads++
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	path := filepath.Join(dir, "item_raw.webm")
	return path, os.WriteFile(path, []byte("raw:"+url), 0o644)
}

type fakeTranscoder struct {
	err   error
	calls int
}

func (f *fakeTranscoder) Normalize(_ context.Context, rawPath, outPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("mp3-audio-bytes"), 0o644)
}

type fakeValidator struct{ duration float64 }

func (f fakeValidator) Validate(_ context.Context, path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	return f.duration, nil
}

type fakeGenerator struct {
	meta  *itemstore.Metadata
	err   error
	calls int
}

func (f *fakeGenerator) Generate(context.Context, string) (*itemstore.Metadata, error) {
	f.calls++
	return f.meta, f.err
}

type fakeThumbs struct{ err error }

func (f fakeThumbs) Fetch(_ context.Context, _ string, dest string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dest, []byte("jpeg"), 0o644)
}

type harness struct {
	t          *testing.T
	now        time.Time
	objects    *objectstore.Memory
	store      *itemstore.Store
	fetcher    *fakeFetcher
	transcoder *fakeTranscoder
	generator  *fakeGenerator
	items      *ratelimit.Gate
	metadata   *ratelimit.Gate
	staging    string
	cfg        Config
	thumbs     Thumbnailer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	objects := objectstore.NewMemory()
	store := itemstore.New(objects, "talks", logging.NewNop())
	h := &harness{
		t:       t,
		now:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		objects: objects,
		store:   store,
		fetcher: &fakeFetcher{details: map[string]catalog.Detail{
			catalog.WatchURL("vid1"): {
				ID:          "vid1",
				Title:       "Dhamma Talk 12 on Kindness",
				Description: "A talk",
				Timestamp:   time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC).Unix(),
				Duration:    1800,
				Thumbnail:   "https://img.example.com/vid1.jpg",
			},
		}},
		transcoder: &fakeTranscoder{},
		generator:  &fakeGenerator{},
		staging:    t.TempDir(),
		thumbs:     fakeThumbs{},
	}
	clock := ratelimit.WithClock(func() time.Time { return h.now })
	h.items = ratelimit.New(ratelimit.ResourceItems, 999, store, clock)
	h.metadata = ratelimit.New(ratelimit.ResourceMetadata, 999, store, clock)
	require.NoError(t, h.items.Load(context.Background()))
	require.NoError(t, h.metadata.Load(context.Background()))
	h.cfg = Config{
		SourceID:            "talks",
		Matcher:             textmatch.NewMatcher([]string{"dhamma"}, nil),
		DescriptionTemplate: "{title} <a href=\"{original_url}\">source</a>",
		PublicBaseURL:       "https://cdn.example.com",
		StagingDir:          h.staging,
	}
	return h
}

func (h *harness) machine() *Machine {
	h.t.Helper()
	m, err := New(h.cfg, Deps{
		Store:      h.store,
		Fetcher:    h.fetcher,
		Transcoder: h.transcoder,
		Validator:  fakeValidator{duration: 1799},
		Generator:  h.generator,
		Thumbnails: h.thumbs,
		Items:      h.items,
		Metadata:   h.metadata,
		Logger:     logging.NewNop(),
		Clock:      func() time.Time { return h.now },
	})
	require.NoError(h.t, err)
	return m
}

func (h *harness) run(id, title string) Result {
	return h.machine().Run(context.Background(), Candidate{ID: id, Title: title})
}

func (h *harness) assertStagingEmpty() {
	h.t.Helper()
	entries, err := os.ReadDir(h.staging)
	require.NoError(h.t, err)
	assert.Empty(h.t, entries)
}

func boolPtr(v bool) *bool { return &v }

func TestRunPublishesNewItem(t *testing.T) {
	h := newHarness(t)
	h.cfg.AIEnabled = true
	h.generator.meta = &itemstore.Metadata{
		PodcastFriendly: boolPtr(true),
		Description:     "Generated summary",
		TitleComponents: &itemstore.TitleComponents{SeriesName: "Dhamma Talk", EpisodeNumber: "12", TopicSummary: "Kindness"},
		Raw:             []byte(`{"podcast_friendly":true,"description":"Generated summary","extra":"kept"}`),
	}

	res := h.run("vid1", "Dhamma Talk 12 on Kindness")
	require.NoError(t, res.Err)
	assert.Equal(t, StatePublished, res.State)
	assert.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, ReasonPublished, res.Reason)
	assert.False(t, res.Halt)

	rec, err := h.store.Get(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, "Dhamma Talk 12 | Kindness", rec.Title)
	assert.Equal(t, "Dhamma Talk 12 on Kindness", rec.OriginalTitle)
	assert.Equal(t, "https://cdn.example.com/talks/vid1.mp3", rec.AudioURL)
	assert.Equal(t, "https://cdn.example.com/talks/vid1.jpg", rec.ImageURL)
	assert.Equal(t, int64(len("mp3-audio-bytes")), rec.LengthBytes)
	assert.Equal(t, 1800.0, rec.Duration)
	assert.Equal(t, "Thu, 01 Feb 2024 08:00:00 GMT", rec.PubDate)
	assert.Equal(t, itemstore.TitleMatchMatched, rec.TitleMatch)
	assert.JSONEq(t, `{"podcast_friendly":true,"description":"Generated summary","extra":"kept"}`, string(rec.AIResponse))
	assert.Equal(t, `Dhamma Talk 12 | Kindness <a href="https://www.youtube.com/watch?v=vid1">source</a><br /><br />Generated summary`, rec.Description)
	assert.True(t, h.now.Equal(rec.ProcessedAt))
	assert.Equal(t, objectstore.ContentTypeMP3, h.objects.ContentType("talks/vid1.mp3"))
	assert.Equal(t, objectstore.ContentTypeJPEG, h.objects.ContentType("talks/vid1.jpg"))

	assert.Equal(t, 1, h.items.Snapshot().ConsumedToday)
	assert.Equal(t, 1, h.metadata.Snapshot().ConsumedToday)
	h.assertStagingEmpty()
}

func TestRunSkipsCompleteRecord(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Put(context.Background(), itemstore.Record{ID: "vid1", AudioURL: "https://cdn/x.mp3"}))

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StateSkipped, res.State)
	assert.Equal(t, ReasonAlreadyExists, res.Reason)
	assert.Zero(t, h.fetcher.detailCalls)
	assert.Zero(t, h.items.Snapshot().ConsumedToday)
}

func TestRunReprocessesIncompleteRecord(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Put(context.Background(), itemstore.Record{ID: "vid1", Title: "partial"}))

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StatePublished, res.State)
	assert.Equal(t, 1, h.fetcher.downloads)
}

func TestRunReprocessesUnreadableRecord(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.objects.Put(context.Background(), "talks/vid1.json", []byte("{broken"), objectstore.ContentTypeJSON))

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StatePublished, res.State)
}

func TestRunRejectsTitleMismatch(t *testing.T) {
	h := newHarness(t)
	h.cfg.AIEnabled = true
	h.cfg.Matcher = textmatch.NewMatcher([]string{"meditation"}, nil)

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StateSkippedTitleMismatch, res.State)
	assert.Equal(t, ReasonTitleMismatch, res.Reason)
	assert.True(t, res.Persisted())
	assert.Zero(t, h.fetcher.downloads)
	assert.Zero(t, h.generator.calls)

	rec, err := h.store.Get(context.Background(), "vid1")
	require.NoError(t, err)
	assert.True(t, rec.Rejected())
	assert.Empty(t, rec.AudioURL)
	assert.True(t, rec.Complete())
	assert.Equal(t, 1, h.items.Snapshot().ConsumedToday)

	// A later pass with the same filter leaves it alone.
	h.now = h.now.Add(time.Hour)
	again := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, ReasonAlreadyExists, again.Reason)
}

func TestRunRetriesRejectedItemWhenTitleNowPasses(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Put(context.Background(), itemstore.Record{ID: "vid1", TitleMatch: itemstore.TitleMatchRejected}))

	res := h.run("vid1", "Dhamma Talk 12 on Kindness")
	assert.Equal(t, StatePublished, res.State)
	rec, err := h.store.Get(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, itemstore.TitleMatchMatched, rec.TitleMatch)
}

func TestRunLeavesStillRejectedRecordUntouched(t *testing.T) {
	h := newHarness(t)
	original := itemstore.Record{ID: "vid1", Title: "old", TitleMatch: itemstore.TitleMatchRejected}
	require.NoError(t, h.store.Put(context.Background(), original))
	h.fetcher.details[catalog.WatchURL("vid1")] = catalog.Detail{ID: "vid1", Title: "Unrelated upload"}

	res := h.run("vid1", "Dhamma talk teaser")
	assert.Equal(t, StateSkipped, res.State)
	assert.Equal(t, ReasonStillRejected, res.Reason)
	assert.False(t, res.Persisted())

	rec, err := h.store.Get(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, "old", rec.Title)
	assert.Zero(t, h.items.Snapshot().ConsumedToday)
}

func TestRunSkipsRejectedRecordWhenDiscoveryTitleFails(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Put(context.Background(), itemstore.Record{ID: "vid1", TitleMatch: itemstore.TitleMatchRejected}))

	res := h.run("vid1", "Cooking show")
	assert.Equal(t, ReasonAlreadyExists, res.Reason)
	assert.Zero(t, h.fetcher.detailCalls)
}

func TestRunPersistsNotFriendlyWithoutMedia(t *testing.T) {
	h := newHarness(t)
	h.cfg.AIEnabled = true
	h.generator.meta = &itemstore.Metadata{PodcastFriendly: boolPtr(false)}

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StateSkippedFriendlyFalse, res.State)
	assert.Equal(t, ReasonNotPodcastFriendly, res.Reason)
	assert.Zero(t, h.fetcher.downloads)

	rec, err := h.store.Get(context.Background(), "vid1")
	require.NoError(t, err)
	assert.True(t, rec.NotFriendly())
	assert.Empty(t, rec.AudioURL)
	assert.True(t, rec.Complete())
	assert.Equal(t, 1, h.items.Snapshot().ConsumedToday)
}

func TestRunDefersWhenItemQuotaExhausted(t *testing.T) {
	h := newHarness(t)
	h.items = ratelimit.New(ratelimit.ResourceItems, 1, h.store, ratelimit.WithClock(func() time.Time { return h.now }))
	require.NoError(t, h.items.RecordConsumption(context.Background()))

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StateDeferred, res.State)
	assert.Equal(t, ReasonDailyLimit, res.Reason)
	assert.True(t, res.Halt)
	assert.Zero(t, h.fetcher.detailCalls)
}

func TestRunDefersOnItemCadence(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.items.RecordConsumption(context.Background()))
	h.now = h.now.Add(10 * time.Second)

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, ReasonPeriodicLimit, res.Reason)
	assert.True(t, res.Halt)
}

func TestRunDefersOnMetadataQuotaWithoutHalting(t *testing.T) {
	h := newHarness(t)
	h.cfg.AIEnabled = true
	h.metadata = ratelimit.New(ratelimit.ResourceMetadata, 0, nil)

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StateDeferred, res.State)
	assert.Equal(t, ReasonAIDailyLimit, res.Reason)
	assert.False(t, res.Halt)
	assert.Zero(t, h.generator.calls)
	exists, err := h.store.Exists(context.Background(), "vid1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunHaltsOnProviderRateLimit(t *testing.T) {
	h := newHarness(t)
	h.cfg.AIEnabled = true
	h.generator.err = services.Wrap(services.ErrRateLimited, "metadata", "generate", "429", nil)

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StateDeferred, res.State)
	assert.Equal(t, ReasonAIRateLimited, res.Reason)
	assert.True(t, res.Halt)
	assert.Zero(t, h.metadata.Snapshot().ConsumedToday)
	assert.Zero(t, h.fetcher.downloads)
}

func TestRunFailsOnGenerationError(t *testing.T) {
	h := newHarness(t)
	h.cfg.AIEnabled = true
	h.generator.err = services.Wrap(services.ErrValidation, "metadata", "generate", "parse payload", nil)

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, ReasonGenerationFailed, res.Reason)
	assert.False(t, res.Halt)
	assert.ErrorIs(t, res.Err, services.ErrValidation)
	exists, err := h.store.Exists(context.Background(), "vid1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunSkipsGeneratorWhenAIDisabled(t *testing.T) {
	h := newHarness(t)
	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StatePublished, res.State)
	assert.Zero(t, h.generator.calls)
	assert.Empty(t, res.Record.AIResponse)
	assert.Equal(t, "Dhamma Talk 12 on Kindness", res.Record.Title)
}

func TestRunCountsEmptyGeneratorReply(t *testing.T) {
	h := newHarness(t)
	h.cfg.AIEnabled = true

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StatePublished, res.State)
	assert.Equal(t, 1, h.generator.calls)
	assert.Equal(t, 1, h.metadata.Snapshot().ConsumedToday)
	assert.Empty(t, res.Record.AIResponse)
}

func TestRunRoundsDurationToWholeSeconds(t *testing.T) {
	h := newHarness(t)
	detail := h.fetcher.details[catalog.WatchURL("vid1")]
	detail.Duration = 1234.6
	h.fetcher.details[catalog.WatchURL("vid1")] = detail

	res := h.run("vid1", "Dhamma Talk")
	require.NoError(t, res.Err)
	assert.Equal(t, 1235.0, res.Record.Duration)

	// Without a listed duration the probed one is used, also rounded.
	detail.Duration = 0
	h.fetcher.details[catalog.WatchURL("vid2")] = detail
	m, err := New(h.cfg, Deps{
		Store:      h.store,
		Fetcher:    h.fetcher,
		Transcoder: h.transcoder,
		Validator:  fakeValidator{duration: 61.4},
		Generator:  h.generator,
		Thumbnails: h.thumbs,
		Items:      h.items,
		Metadata:   h.metadata,
		Logger:     logging.NewNop(),
		Clock:      func() time.Time { return h.now },
	})
	require.NoError(t, err)
	h.now = h.now.Add(2 * time.Minute)
	res = m.Run(context.Background(), Candidate{ID: "vid2", Title: "Dhamma Talk"})
	require.NoError(t, res.Err)
	assert.Equal(t, 61.0, res.Record.Duration)
}

func TestRunFailsPipelineAndCleansStaging(t *testing.T) {
	h := newHarness(t)
	h.transcoder.err = services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", "exit 1", nil)

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, ReasonPipelineFailure, res.Reason)
	assert.False(t, res.Halt)
	assert.ErrorIs(t, res.Err, services.ErrExternalTool)
	exists, err := h.store.Exists(context.Background(), "vid1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Zero(t, h.items.Snapshot().ConsumedToday)
	h.assertStagingEmpty()
}

func TestRunHaltsWhenFetcherIsRateLimited(t *testing.T) {
	h := newHarness(t)
	h.fetcher.downloadErr = services.Wrap(services.ErrRateLimited, "ytdlp", "download", "HTTP Error 429", nil)

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, ReasonPipelineFailure, res.Reason)
	assert.True(t, res.Halt)
	h.assertStagingEmpty()
}

func TestRunFailsWhenDetailUnavailable(t *testing.T) {
	h := newHarness(t)
	h.fetcher.detailErr = errors.New("video unavailable")

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StateFailed, res.State)
	assert.Zero(t, h.transcoder.calls)
}

func TestRunPublishesWithoutThumbnailOnFailure(t *testing.T) {
	h := newHarness(t)
	h.thumbs = fakeThumbs{err: errors.New("404")}

	res := h.run("vid1", "Dhamma Talk")
	assert.Equal(t, StatePublished, res.State)
	assert.Empty(t, res.Record.ImageURL)
	exists, err := h.objects.Exists(context.Background(), "talks/vid1.jpg")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{StagingDir: t.TempDir()}, Deps{})
	assert.Error(t, err)
}
