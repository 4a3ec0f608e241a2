package testsupport

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"castsync/internal/catalog"
	"castsync/internal/sources"
)

// NewSource returns a fully populated source definition with defaults
// applied, listing channelURLs with the yt-dlp lister.
func NewSource(id string, channelURLs ...string) sources.Source {
	enabled := true
	return sources.Source{
		ID:           id,
		Name:         id,
		Enabled:      &enabled,
		ChannelURLs:  channelURLs,
		Lister:       sources.ListerYTDLP,
		KeyPrefix:    id,
		FeedFilename: sources.DefaultFeedFilename,
		AI:           sources.AI{MaxCallsPerDay: sources.DefaultMaxPerDay},
		Sync:         sources.Sync{MaxItemsPerDay: sources.DefaultMaxPerDay},
		Podcast: sources.Podcast{
			Title:               "Podcast " + id,
			Description:         "Talks from " + id,
			Link:                "https://example.com/" + id,
			Language:            "en",
			Author:              "Author",
			Explicit:            "no",
			Category:            "Religion & Spirituality",
			ImageURL:            "cover.jpg",
			DescriptionTemplate: "{title}",
		},
	}
}

// Listing is the scripted output of one channel URL.
type Listing struct {
	Entries []catalog.Entry
	// Err is yielded after Entries when set.
	Err error
}

// Lister serves scripted listings keyed by channel URL.
type Lister struct {
	mu       sync.Mutex
	listings map[string]Listing
	calls    []string
	// Block, when set, is waited on before the first entry is yielded.
	Block <-chan struct{}
	// Started is closed when a listing begins, if set.
	Started chan struct{}
}

// NewLister returns a Lister over listings.
func NewLister(listings map[string]Listing) *Lister {
	return &Lister{listings: listings}
}

// List implements workflow.Lister.
func (l *Lister) List(ctx context.Context, channelURL string) iter.Seq2[catalog.Entry, error] {
	return func(yield func(catalog.Entry, error) bool) {
		l.mu.Lock()
		l.calls = append(l.calls, channelURL)
		listing := l.listings[channelURL]
		started := l.Started
		l.Started = nil
		l.mu.Unlock()
		if started != nil {
			close(started)
		}
		if l.Block != nil {
			select {
			case <-l.Block:
			case <-ctx.Done():
				yield(catalog.Entry{}, ctx.Err())
				return
			}
		}
		for _, entry := range listing.Entries {
			if !yield(entry, nil) {
				return
			}
		}
		if listing.Err != nil {
			yield(catalog.Entry{}, listing.Err)
		}
	}
}

// Calls returns the channel URLs listed so far.
func (l *Lister) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Fetcher returns details derived from the URL and writes a small raw file
// on download.
type Fetcher struct {
	mu      sync.Mutex
	Details map[string]catalog.Detail
	Err     error
	fetched []string
}

// FetchDetail implements ingest.Fetcher.
func (f *Fetcher) FetchDetail(_ context.Context, url string) (catalog.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	if f.Err != nil {
		return catalog.Detail{}, f.Err
	}
	if d, ok := f.Details[url]; ok {
		return d, nil
	}
	return catalog.Detail{Title: "Episode at " + url, UploadDate: "20240101", Duration: 600}, nil
}

// DownloadMedia implements ingest.Fetcher.
func (f *Fetcher) DownloadMedia(_ context.Context, _ string, dir string) (string, error) {
	path := filepath.Join(dir, "media_raw.webm")
	return path, os.WriteFile(path, []byte("raw"), 0o644)
}

// Fetched returns the URLs whose details were requested.
func (f *Fetcher) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// Transcoder writes a fixed-size MP3 placeholder.
type Transcoder struct {
	Size int64
}

// Normalize implements ingest.Transcoder.
func (t Transcoder) Normalize(_ context.Context, _ string, outPath string) error {
	size := t.Size
	if size <= 0 {
		size = 1024
	}
	return writeBytes(outPath, size)
}

// Validator reports a fixed duration for any existing file.
type Validator struct {
	Duration float64
}

// Validate implements ingest.Validator.
func (v Validator) Validate(_ context.Context, path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	return v.Duration, nil
}
