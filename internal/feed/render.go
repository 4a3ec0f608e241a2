package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

const itunesNamespace = "http://www.itunes.com/dtds/podcast-1.0.dtd"

// Channel is the feed-level metadata.
type Channel struct {
	Title       string
	Description string
	Link        string
	Language    string
	Author      string
	Email       string
	Explicit    string
	Category    string
	Subcategory string
	// ImageURL may be relative to BaseURL.
	ImageURL string
	BaseURL  string
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	ITunes  string     `xml:"xmlns:itunes,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string         `xml:"title"`
	Description string         `xml:"description"`
	Link        string         `xml:"link"`
	Language    string         `xml:"language"`
	Author      string         `xml:"itunes:author"`
	Explicit    string         `xml:"itunes:explicit"`
	Owner       itunesOwner    `xml:"itunes:owner"`
	Category    itunesCategory `xml:"itunes:category"`
	Image       *itunesImage   `xml:"itunes:image,omitempty"`
	Items       []rssItem      `xml:"item"`
}

type itunesOwner struct {
	Name  string `xml:"itunes:name"`
	Email string `xml:"itunes:email,omitempty"`
}

type itunesCategory struct {
	Text string          `xml:"text,attr"`
	Sub  *itunesCategory `xml:"itunes:category,omitempty"`
}

type itunesImage struct {
	Href string `xml:"href,attr"`
}

type cdata struct {
	Text string `xml:",cdata"`
}

type rssItem struct {
	Title       string       `xml:"title"`
	Description cdata        `xml:"description"`
	Enclosure   rssEnclosure `xml:"enclosure"`
	GUID        rssGUID      `xml:"guid"`
	PubDate     string       `xml:"pubDate"`
	Duration    string       `xml:"itunes:duration"`
	Explicit    string       `xml:"itunes:explicit"`
	Image       *itunesImage `xml:"itunes:image,omitempty"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length string `xml:"length,attr"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// Render produces the RSS document for channel and entries. Entries are
// rendered in the order given.
func Render(channel Channel, entries []Entry) ([]byte, error) {
	doc := rssDocument{
		Version: "2.0",
		ITunes:  itunesNamespace,
		Channel: rssChannel{
			Title:       channel.Title,
			Description: channel.Description,
			Link:        channel.Link,
			Language:    channel.Language,
			Author:      channel.Author,
			Explicit:    explicitValue(channel.Explicit),
			Owner:       itunesOwner{Name: channel.Author, Email: channel.Email},
			Category:    itunesCategory{Text: channel.Category},
		},
	}
	if sub := strings.TrimSpace(channel.Subcategory); sub != "" {
		doc.Channel.Category.Sub = &itunesCategory{Text: sub}
	}
	if image := ResolveImageURL(channel.BaseURL, channel.ImageURL); image != "" {
		doc.Channel.Image = &itunesImage{Href: image}
	}
	for _, entry := range entries {
		item := rssItem{
			Title:       entry.Title,
			Description: cdata{Text: entry.Description},
			Enclosure: rssEnclosure{
				URL:    entry.AudioURL,
				Type:   "audio/mpeg",
				Length: strconv.FormatInt(entry.LengthBytes, 10),
			},
			GUID:     rssGUID{IsPermaLink: "false", Value: entry.ID},
			PubDate:  entry.PubDate,
			Duration: FormatDuration(entry.Duration),
			Explicit: "no",
		}
		if entry.ImageURL != "" {
			item.Image = &itunesImage{Href: entry.ImageURL}
		}
		doc.Channel.Items = append(doc.Channel.Items, item)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode feed: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ResolveImageURL prefixes a relative channel image path with base.
func ResolveImageURL(base, image string) string {
	image = strings.TrimSpace(image)
	if image == "" || strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return image
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return image
	}
	return base + "/" + strings.TrimLeft(image, "/")
}

// FormatDuration renders seconds as HH:MM:SS from one hour up, else MM:SS.
func FormatDuration(seconds float64) string {
	total := int64(max(seconds, 0))
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func explicitValue(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true":
		return "yes"
	case "clean":
		return "clean"
	default:
		return "no"
	}
}
