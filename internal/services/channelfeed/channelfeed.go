// Package channelfeed lists channel items from a published RSS or Atom
// feed, such as the per-channel feeds video platforms expose.
package channelfeed

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"castsync/internal/catalog"
	"castsync/internal/services"
)

const stage = "channelfeed"

// Lister fetches and parses channel feeds.
type Lister struct {
	parser  *gofeed.Parser
	timeout time.Duration
}

// New constructs a lister. client may be nil.
func New(client *http.Client, timeout time.Duration) *Lister {
	parser := gofeed.NewParser()
	if client != nil {
		parser.Client = client
	}
	return &Lister{parser: parser, timeout: timeout}
}

// List yields the feed's items in document order. A fetch or parse failure
// is yielded as the only element.
func (l *Lister) List(ctx context.Context, feedURL string) iter.Seq2[catalog.Entry, error] {
	return func(yield func(catalog.Entry, error) bool) {
		fetchCtx := ctx
		if l.timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, l.timeout)
			defer cancel()
		}
		feed, err := l.parser.ParseURLWithContext(feedURL, fetchCtx)
		if err != nil {
			yield(catalog.Entry{}, classify(err))
			return
		}
		for _, item := range feed.Items {
			entry, ok := toEntry(item)
			if !ok {
				continue
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func toEntry(item *gofeed.Item) (catalog.Entry, bool) {
	if item == nil {
		return catalog.Entry{}, false
	}
	id := extensionValue(item, "yt", "videoId")
	if id == "" {
		id = idFromLink(item.Link)
	}
	if id == "" {
		id = strings.TrimSpace(item.GUID)
	}
	if id == "" {
		return catalog.Entry{}, false
	}
	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = catalog.WatchURL(id)
	}
	return catalog.Entry{ID: id, URL: link, Title: strings.TrimSpace(item.Title)}, true
}

func extensionValue(item *gofeed.Item, namespace, name string) string {
	ext, ok := item.Extensions[namespace]
	if !ok {
		return ""
	}
	for _, e := range ext[name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

func idFromLink(link string) string {
	parsed, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return ""
	}
	return parsed.Query().Get("v")
}

func classify(err error) error {
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return services.Wrap(services.ErrRateLimited, stage, "list", "feed rate limited", err)
		case httpErr.StatusCode == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, stage, "list", "feed not found", err)
		}
	}
	return services.Wrap(services.ErrExternalTool, stage, "list", "fetch feed", err)
}
