package sources_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castsync/internal/services"
	"castsync/internal/sources"
)

const validYAML = `
id: mahinda
name: Ven. Mahinda Thero
channel_urls:
  - https://www.youtube.com/@mahinda/videos
  - https://www.youtube.com/@mahinda/streams
matcher:
  english_tokens: [Mahinda, Thero]
  sinhala_tokens: [මහින්ද]
ai:
  enabled: true
  max_calls_per_day: 20
key_prefix: mahinda
podcast:
  title: Dhamma Talks
  description: Talks by Ven. Mahinda Thero
  link: https://example.org
  language: si
  author: Mahinda Thero
  email: podcasts@example.org
  category: Religion & Spirituality
  subcategory: Buddhism
  image_url: cover.jpg
  description_template: "{title} - {original_url}"
`

func writeSource(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParseAppliesDefaults(t *testing.T) {
	src, err := sources.Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "mahinda", src.ID)
	assert.True(t, src.IsEnabled())
	assert.Equal(t, sources.ListerYTDLP, src.Lister)
	assert.Equal(t, sources.DefaultMaxPerDay, src.Sync.MaxItemsPerDay)
	assert.Equal(t, 20, src.AI.MaxCallsPerDay)
	assert.Equal(t, sources.DefaultFeedFilename, src.FeedFilename)
	assert.Equal(t, "mahinda/", src.Prefix())
	assert.Equal(t, "no", src.Podcast.Explicit)
	assert.Len(t, src.ChannelURLs, 2)
	assert.True(t, src.TitleMatcher().Match("Mahinda Thero on patience", ""))
}

func TestParseKeepsExplicitZeroQuotas(t *testing.T) {
	body := strings.Replace(validYAML, "max_calls_per_day: 20", "max_calls_per_day: 0", 1) +
		"sync:\n  max_items_per_day: 0\n"
	src, err := sources.Parse([]byte(body))
	require.NoError(t, err)
	assert.Zero(t, src.Sync.MaxItemsPerDay)
	assert.Zero(t, src.AI.MaxCallsPerDay)
}

func TestParseDefaultsAbsentQuotas(t *testing.T) {
	body := strings.Replace(validYAML, "  max_calls_per_day: 20\n", "", 1) + "sync: {}\n"
	src, err := sources.Parse([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, sources.DefaultMaxPerDay, src.Sync.MaxItemsPerDay)
	assert.Equal(t, sources.DefaultMaxPerDay, src.AI.MaxCallsPerDay)
}

func TestParseDefaultsKeyPrefixToID(t *testing.T) {
	body := strings.Replace(validYAML, "key_prefix: mahinda\n", "", 1)
	src, err := sources.Parse([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "mahinda", src.KeyPrefix)
	assert.Equal(t, "mahinda/", src.Prefix())

	assert.Equal(t, "beta/", sources.Source{ID: "beta", KeyPrefix: " / "}.Prefix())
}

func TestLoadDirRejectsSharedKeyPrefix(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.yaml", validYAML)
	shared := strings.Replace(replaceID(validYAML, "other"), "key_prefix: other", "key_prefix: /mahinda/", 1)
	writeSource(t, dir, "b.yaml", shared)

	loaded, failures, err := sources.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "mahinda", loaded[0].ID)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "duplicate key prefix")
	assert.ErrorIs(t, failures[0], services.ErrValidation)
}

func TestParseRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing channel urls", "id: a\npodcast: {title: t}\n", "channel_urls"},
		{"bad id", "id: Bad ID\nchannel_urls: [https://x.test]\n", "id must be lowercase"},
		{"unknown field", "id: a\nchanel_urls: [https://x.test]\n", "invalid YAML"},
		{"bad lister", "id: a\nlister: ftp\nchannel_urls: [https://x.test]\n", "lister must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sources.Parse([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, services.ErrValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDirSortsAndReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "b.yaml", validYAML)
	writeSource(t, dir, "a.yml", replaceID(validYAML, "alpha"))
	writeSource(t, dir, "dup.yaml", validYAML)
	writeSource(t, dir, "broken.yaml", "id: [")
	writeSource(t, dir, "notes.txt", "ignored")

	loaded, failures, err := sources.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "alpha", loaded[0].ID)
	assert.Equal(t, "mahinda", loaded[1].ID)
	assert.Len(t, failures, 2)
}

func TestLoadDirMissingDirectory(t *testing.T) {
	loaded, failures, err := sources.LoadDir(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, loaded)
	assert.Empty(t, failures)
}

func TestRegistrySelect(t *testing.T) {
	disabled := false
	reg := sources.NewStaticRegistry(
		sources.Source{ID: "c"},
		sources.Source{ID: "a"},
		sources.Source{ID: "b", Enabled: &disabled},
	)

	all, err := reg.Select(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[1].ID)

	picked, err := reg.Select([]string{"b"})
	require.NoError(t, err)
	require.Len(t, picked, 1, "explicit selection includes disabled sources")

	_, err = reg.Select([]string{"a", "zzz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zzz")
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	reg := sources.NewRegistry(dir, nil)
	require.NoError(t, reg.Reload())
	assert.Empty(t, reg.All())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- reg.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeSource(t, dir, "mahinda.yaml", validYAML)

	require.Eventually(t, func() bool {
		_, ok := reg.Get("mahinda")
		return ok
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func replaceID(body, id string) string {
	body = strings.Replace(body, "key_prefix: mahinda", "key_prefix: "+id, 1)
	return "id: " + id + body[len("\nid: mahinda"):]
}
