package itemstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castsync/internal/itemstore"
	"castsync/internal/logging"
	"castsync/internal/objectstore"
	"castsync/internal/ratelimit"
	"castsync/internal/services"
)

func TestKeysUseNormalizedPrefix(t *testing.T) {
	s := itemstore.New(objectstore.NewMemory(), "/thero/", logging.NewNop())
	assert.Equal(t, "thero/", s.Prefix())
	assert.Equal(t, "thero/abc.json", s.RecordKey("abc"))
	assert.Equal(t, "thero/abc.mp3", s.AudioKey("abc"))
	assert.Equal(t, "thero/abc.jpg", s.ImageKey("abc"))
	assert.Equal(t, "thero/podcast.xml", s.FeedKey("podcast.xml"))
	assert.Equal(t, "thero/state/items.limiter", s.LimiterKey(ratelimit.ResourceItems))

	root := itemstore.New(objectstore.NewMemory(), "", logging.NewNop())
	assert.Equal(t, "abc.json", root.RecordKey("abc"))
}

func TestIsRecordKey(t *testing.T) {
	assert.True(t, itemstore.IsRecordKey("demo/", "demo/abc.json"))
	assert.False(t, itemstore.IsRecordKey("demo/", "demo/sync_state.json"))
	assert.False(t, itemstore.IsRecordKey("demo/", "demo/state/items.json"))
	assert.False(t, itemstore.IsRecordKey("demo/", "other/abc.json"))
	assert.False(t, itemstore.IsRecordKey("demo/", "demo/abc.mp3"))
	assert.False(t, itemstore.IsRecordKey("", "sync_state.json"))
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := itemstore.New(objectstore.NewMemory(), "demo", logging.NewNop())

	_, err := s.Get(ctx, "missing")
	require.True(t, errors.Is(err, services.ErrNotFound))

	rec := itemstore.Record{
		ID:          "abc",
		Title:       "Title",
		OriginalURL: "https://www.youtube.com/watch?v=abc",
		PubDate:     "Mon, 02 Mar 2026 10:00:00 GMT",
		Duration:    3600,
		AudioURL:    "https://cdn/demo/abc.mp3",
		TitleMatch:  itemstore.TitleMatchMatched,
		ProcessedAt: time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, rec.Title, got.Title)
	assert.Equal(t, rec.TitleMatch, got.TitleMatch)
	assert.True(t, got.ProcessedAt.Equal(rec.ProcessedAt))

	ok, err := s.Exists(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Error(t, s.Put(ctx, itemstore.Record{}))
}

func TestListToleratesCorruptRecords(t *testing.T) {
	ctx := context.Background()
	mem := objectstore.NewMemory()
	s := itemstore.New(mem, "demo", logging.NewNop())

	require.NoError(t, s.Put(ctx, itemstore.Record{ID: "good"}))
	require.NoError(t, mem.Put(ctx, "demo/bad.json", []byte("{not json"), objectstore.ContentTypeJSON))
	require.NoError(t, mem.Put(ctx, "demo/sync_state.json", []byte("{}"), objectstore.ContentTypeJSON))
	require.NoError(t, s.SaveLimiterState(ctx, ratelimit.ResourceItems, ratelimit.State{LastResetDate: "2026-03-01"}))

	result, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "good", result.Records[0].ID)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "demo/bad.json", result.Failures[0].Key)
	assert.True(t, errors.Is(result.Failures[0].Err, services.ErrValidation))
}

func TestLimiterStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := objectstore.NewMemory()
	s := itemstore.New(mem, "demo", logging.NewNop())

	_, found, err := s.LoadLimiterState(ctx, ratelimit.ResourceMetadata)
	require.NoError(t, err)
	assert.False(t, found)

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.SaveLimiterState(ctx, ratelimit.ResourceMetadata, ratelimit.State{
		LastResetDate: "2026-03-01", ConsumedToday: 4, LastConsumedAt: &at,
	}))
	state, found, err := s.LoadLimiterState(ctx, ratelimit.ResourceMetadata)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 4, state.ConsumedToday)
	require.NotNil(t, state.LastConsumedAt)
	assert.True(t, state.LastConsumedAt.Equal(at))

	require.NoError(t, mem.Put(ctx, s.LimiterKey("broken"), []byte("garbage"), objectstore.ContentTypeJSON))
	_, found, err = s.LoadLimiterState(ctx, "broken")
	require.NoError(t, err)
	assert.False(t, found)
}
