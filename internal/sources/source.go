package sources

import (
	"strings"

	"castsync/internal/itemstore"
	"castsync/internal/textmatch"
)

const (
	// DefaultMaxPerDay is the quota applied when a source does not set one.
	DefaultMaxPerDay    = 999
	DefaultFeedFilename = "podcast.xml"

	ListerYTDLP = "ytdlp"
	ListerRSS   = "rss"
)

// Matcher holds the title filter token sets.
type Matcher struct {
	EnglishTokens []string `yaml:"english_tokens"`
	SinhalaTokens []string `yaml:"sinhala_tokens"`
}

// AI controls metadata generation for a source.
type AI struct {
	Enabled        bool `yaml:"enabled"`
	MaxCallsPerDay int  `yaml:"max_calls_per_day" validate:"gte=0"`
}

// Sync controls item processing volume for a source.
type Sync struct {
	MaxItemsPerDay int `yaml:"max_items_per_day" validate:"gte=0"`
}

// Podcast is the channel metadata rendered into the feed.
type Podcast struct {
	Title               string `yaml:"title" validate:"required"`
	Description         string `yaml:"description" validate:"required"`
	Link                string `yaml:"link" validate:"required,url"`
	Language            string `yaml:"language" validate:"required"`
	Author              string `yaml:"author" validate:"required"`
	Email               string `yaml:"email" validate:"omitempty,email"`
	Explicit            string `yaml:"explicit" validate:"omitempty,oneof=yes no true false clean"`
	Category            string `yaml:"category" validate:"required"`
	Subcategory         string `yaml:"subcategory"`
	ImageURL            string `yaml:"image_url" validate:"required"`
	DescriptionTemplate string `yaml:"description_template" validate:"required"`
}

// Source is one configured channel group and its feed.
type Source struct {
	ID           string   `yaml:"id" validate:"required,sourceid"`
	Name         string   `yaml:"name"`
	Enabled      *bool    `yaml:"enabled"`
	ChannelURLs  []string `yaml:"channel_urls" validate:"required,min=1,dive,required,url"`
	Lister       string   `yaml:"lister" validate:"omitempty,oneof=ytdlp rss"`
	Matcher      Matcher  `yaml:"matcher"`
	AI           AI       `yaml:"ai"`
	Sync         Sync     `yaml:"sync"`
	KeyPrefix    string   `yaml:"key_prefix"`
	FeedFilename string   `yaml:"feed_filename" validate:"omitempty,excludesall=/\\"`
	Podcast      Podcast  `yaml:"podcast" validate:"required"`

	// Path is the file the definition was loaded from.
	Path string `yaml:"-"`
}

// IsEnabled reports whether the source takes part in sync passes. Sources
// are enabled unless explicitly disabled.
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// DisplayName returns the name, falling back to the ID.
func (s Source) DisplayName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return s.ID
}

// Prefix returns the normalized object key prefix for this source. Sources
// without a key_prefix live under their ID so records, limiter state and
// feeds never mix between sources sharing a store.
func (s Source) Prefix() string {
	if prefix := itemstore.NormalizePrefix(s.KeyPrefix); prefix != "" {
		return prefix
	}
	return itemstore.NormalizePrefix(s.ID)
}

// TitleMatcher builds the title filter for this source.
func (s Source) TitleMatcher() textmatch.Matcher {
	return textmatch.NewMatcher(s.Matcher.EnglishTokens, s.Matcher.SinhalaTokens)
}

// newSource returns a Source carrying the defaults that YAML decoding keeps
// when a key is absent. An explicit zero quota disables the resource.
func newSource() Source {
	return Source{
		AI:   AI{MaxCallsPerDay: DefaultMaxPerDay},
		Sync: Sync{MaxItemsPerDay: DefaultMaxPerDay},
	}
}

func (s *Source) applyDefaults() {
	s.ID = strings.TrimSpace(s.ID)
	s.Lister = strings.ToLower(strings.TrimSpace(s.Lister))
	if s.Lister == "" {
		s.Lister = ListerYTDLP
	}
	urls := make([]string, 0, len(s.ChannelURLs))
	for _, u := range s.ChannelURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	s.ChannelURLs = urls
	s.KeyPrefix = strings.TrimSpace(s.KeyPrefix)
	if itemstore.NormalizePrefix(s.KeyPrefix) == "" {
		s.KeyPrefix = s.ID
	}
	s.FeedFilename = strings.TrimSpace(s.FeedFilename)
	if s.FeedFilename == "" {
		s.FeedFilename = DefaultFeedFilename
	}
	if strings.TrimSpace(s.Podcast.Explicit) == "" {
		s.Podcast.Explicit = "no"
	}
}
