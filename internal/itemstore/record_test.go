package itemstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castsync/internal/itemstore"
)

func boolPtr(v bool) *bool { return &v }

func TestTitleMatchAcceptsLegacyBooleans(t *testing.T) {
	cases := map[string]itemstore.TitleMatch{
		`{"id":"a","title_match":true}`:       itemstore.TitleMatchMatched,
		`{"id":"a","title_match":false}`:      itemstore.TitleMatchRejected,
		`{"id":"a","title_match":"rejected"}`: itemstore.TitleMatchRejected,
		`{"id":"a","title_match":"matched"}`:  itemstore.TitleMatchMatched,
		`{"id":"a","title_match":null}`:       itemstore.TitleMatchUnknown,
		`{"id":"a"}`:                          itemstore.TitleMatchUnknown,
	}
	for raw, want := range cases {
		rec, err := itemstore.DecodeRecord([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, rec.TitleMatch, raw)
	}

	_, err := itemstore.DecodeRecord([]byte(`{"id":"a","title_match":"maybe"}`))
	require.Error(t, err)
}

func TestCompleteness(t *testing.T) {
	tests := []struct {
		name          string
		rec           itemstore.Record
		meta          *itemstore.Metadata
		requiresMedia bool
		complete      bool
	}{
		{name: "published", rec: itemstore.Record{ID: "a", AudioURL: "https://x/a.mp3"}, requiresMedia: true, complete: true},
		{name: "missing media", rec: itemstore.Record{ID: "a"}, requiresMedia: true, complete: false},
		{name: "rejected", rec: itemstore.Record{ID: "a", TitleMatch: itemstore.TitleMatchRejected}, requiresMedia: false, complete: true},
		{name: "not friendly", rec: itemstore.Record{ID: "a"}, meta: &itemstore.Metadata{PodcastFriendly: boolPtr(false)}, requiresMedia: false, complete: true},
		{name: "friendly without media", rec: itemstore.Record{ID: "a"}, meta: &itemstore.Metadata{PodcastFriendly: boolPtr(true)}, requiresMedia: true, complete: false},
		{name: "friendliness absent", rec: itemstore.Record{ID: "a"}, meta: &itemstore.Metadata{Description: "x"}, requiresMedia: true, complete: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			if tt.meta != nil {
				require.NoError(t, rec.SetMetadata(*tt.meta))
			}
			assert.Equal(t, tt.requiresMedia, rec.RequiresMedia())
			assert.Equal(t, tt.complete, rec.Complete())
		})
	}
}

func TestMetadataDecodesNumericEpisode(t *testing.T) {
	rec, err := itemstore.DecodeRecord([]byte(`{
		"id": "a",
		"ai_response": {"podcast_friendly": true, "description": "d", "title_components": {"series_name": "S", "episode_number": 12, "topic_summary": "T"}}
	}`))
	require.NoError(t, err)
	meta, ok := rec.Metadata()
	require.True(t, ok)
	require.NotNil(t, meta.TitleComponents)
	assert.Equal(t, itemstore.FlexString("12"), meta.TitleComponents.EpisodeNumber)
	assert.False(t, rec.NotFriendly())
}

func TestMetadataIgnoresGarbage(t *testing.T) {
	rec := itemstore.Record{ID: "a", AIResponse: []byte(`"just a string"`)}
	_, ok := rec.Metadata()
	assert.False(t, ok)
	assert.True(t, rec.RequiresMedia())
}
