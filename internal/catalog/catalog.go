// Package catalog defines the item shapes exchanged between listers,
// fetchers and the ingestion pipeline.
package catalog

import (
	"net/http"
	"strings"
	"time"
)

// Entry is one item discovered by listing a channel.
type Entry struct {
	ID    string
	URL   string
	Title string
}

// Detail is the full metadata for one item.
type Detail struct {
	ID          string
	Title       string
	Description string
	URL         string
	// Timestamp is the upload time in Unix seconds, 0 when unknown.
	Timestamp int64
	// UploadDate is the upload day as YYYYMMDD, empty when unknown.
	UploadDate string
	Duration   float64
	Thumbnail  string
}

// WatchURL returns the canonical watch page for a video ID.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// PubDate formats the item's publish time as an RFC 1123 GMT string. The
// upload timestamp wins, then the upload date, then fallback.
func (d Detail) PubDate(fallback time.Time) string {
	return FormatPubDate(d.PublishedAt(fallback))
}

// PublishedAt resolves the item's publish time.
func (d Detail) PublishedAt(fallback time.Time) time.Time {
	if d.Timestamp > 0 {
		return time.Unix(d.Timestamp, 0).UTC()
	}
	if date := strings.TrimSpace(d.UploadDate); date != "" {
		if parsed, err := time.ParseInLocation("20060102", date, time.UTC); err == nil {
			return parsed
		}
	}
	return fallback.UTC()
}

// FormatPubDate renders t in the RFC 1123 form used by RSS pubDate.
func FormatPubDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
