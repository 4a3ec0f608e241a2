package feed

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"castsync/internal/itemstore"
)

// DescriptionSeparator joins the templated description and the generated one.
const DescriptionSeparator = "<br /><br />"

// Entry is one publishable feed item.
type Entry struct {
	ID          string
	Title       string
	Description string
	AudioURL    string
	ImageURL    string
	PubDate     string
	PublishedAt time.Time
	// Dated is false when PubDate could not be parsed.
	Dated       bool
	Duration    float64
	LengthBytes int64
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,
	"2006-01-02",
	"20060102",
}

// ParsePubDate parses a stored publish date. Dates without a zone are UTC.
func ParsePubDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Describe renders template for rec and appends the generated description
// when present. Recognized placeholders are {title}, {original_url} and
// {original_title}; the original title falls back to the title.
func Describe(template string, rec itemstore.Record) string {
	originalTitle := rec.OriginalTitle
	if strings.TrimSpace(originalTitle) == "" {
		originalTitle = rec.Title
	}
	description := strings.NewReplacer(
		"{title}", rec.Title,
		"{original_url}", rec.OriginalURL,
		"{original_title}", originalTitle,
	).Replace(template)
	if meta, ok := rec.Metadata(); ok && strings.TrimSpace(meta.Description) != "" {
		description += DescriptionSeparator + meta.Description
	}
	return description
}

// Publishable reports whether rec belongs in the feed.
func Publishable(rec itemstore.Record) bool {
	return !rec.NotFriendly() && !rec.Rejected() && strings.TrimSpace(rec.AudioURL) != ""
}

// Filtered reports whether rec is deliberately excluded from the feed, as
// opposed to still missing its media.
func Filtered(rec itemstore.Record) bool {
	return rec.NotFriendly() || rec.Rejected()
}

// Assemble builds the ordered entry list for records. Input records are not
// modified.
func Assemble(records []itemstore.Record, template string) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		if !Publishable(rec) {
			continue
		}
		published, dated := ParsePubDate(rec.PubDate)
		title := rec.Title
		if strings.TrimSpace(title) == "" {
			title = "No Title"
		}
		entries = append(entries, Entry{
			ID:          rec.ID,
			Title:       title,
			Description: Describe(template, rec),
			AudioURL:    rec.AudioURL,
			ImageURL:    rec.ImageURL,
			PubDate:     rec.PubDate,
			PublishedAt: published,
			Dated:       dated,
			Duration:    max(math.Round(rec.Duration), 0),
			LengthBytes: max(rec.LengthBytes, 0),
		})
	}
	slices.SortStableFunc(entries, compareEntries)
	return entries
}

func compareEntries(a, b Entry) int {
	switch {
	case a.Dated && !b.Dated:
		return -1
	case !a.Dated && b.Dated:
		return 1
	case a.Dated && b.Dated:
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ID, b.ID)
}
