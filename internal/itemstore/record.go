package itemstore

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// TitleMatch is the tri-state outcome of the title filter.
type TitleMatch string

const (
	TitleMatchUnknown  TitleMatch = ""
	TitleMatchMatched  TitleMatch = "matched"
	TitleMatchRejected TitleMatch = "rejected"
)

// UnmarshalJSON accepts the string form as well as legacy booleans.
func (t *TitleMatch) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", `""`:
		*t = TitleMatchUnknown
		return nil
	case "true":
		*t = TitleMatchMatched
		return nil
	case "false":
		*t = TitleMatchRejected
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("title_match: %w", err)
	}
	switch TitleMatch(strings.ToLower(strings.TrimSpace(value))) {
	case TitleMatchMatched:
		*t = TitleMatchMatched
	case TitleMatchRejected:
		*t = TitleMatchRejected
	default:
		return fmt.Errorf("title_match: unknown value %q", value)
	}
	return nil
}

// FlexString decodes JSON strings and numbers into a string. Language models
// return episode numbers in either form.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

// TitleComponents are the structured title parts suggested by the generator.
type TitleComponents struct {
	SeriesName    string     `json:"series_name,omitempty"`
	EpisodeNumber FlexString `json:"episode_number,omitempty"`
	TopicSummary  string     `json:"topic_summary,omitempty"`
}

// Metadata is the recognized subset of a generator response.
type Metadata struct {
	PodcastFriendly *bool            `json:"podcast_friendly,omitempty"`
	Description     string           `json:"description,omitempty"`
	TitleComponents *TitleComponents `json:"title_components,omitempty"`

	// Raw is the full generator response when available. It is stored
	// verbatim so fields outside the recognized subset survive.
	Raw json.RawMessage `json:"-"`
}

// Record is the durable completion record for one item.
type Record struct {
	ID            string          `json:"id"`
	SourceID      string          `json:"source_id,omitempty"`
	Title         string          `json:"title"`
	OriginalTitle string          `json:"original_title,omitempty"`
	OriginalURL   string          `json:"original_url"`
	PubDate       string          `json:"pub_date"`
	// Duration is in whole seconds; float keeps legacy records decodable.
	Duration      float64         `json:"duration"`
	LengthBytes   int64           `json:"length_bytes"`
	TitleMatch    TitleMatch      `json:"title_match,omitempty"`
	AudioURL      string          `json:"s3_audio_url,omitempty"`
	ImageURL      string          `json:"s3_image_url,omitempty"`
	AIResponse    json.RawMessage `json:"ai_response,omitempty"`
	Description   string          `json:"description,omitempty"`
	ProcessedAt   time.Time       `json:"processed_at"`
}

// Metadata decodes the recognized fields of AIResponse. ok is false when no
// response is stored or it cannot be decoded.
func (r Record) Metadata() (Metadata, bool) {
	raw := bytes.TrimSpace(r.AIResponse)
	if len(raw) == 0 || string(raw) == "null" {
		return Metadata{}, false
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, false
	}
	return meta, true
}

// NotFriendly reports an explicit podcast_friendly=false decision. Absence
// of the field counts as friendly.
func (r Record) NotFriendly() bool {
	meta, ok := r.Metadata()
	return ok && meta.PodcastFriendly != nil && !*meta.PodcastFriendly
}

// Rejected reports a terminal title filter rejection.
func (r Record) Rejected() bool {
	return r.TitleMatch == TitleMatchRejected
}

// RequiresMedia reports whether the record is expected to carry a media URL.
func (r Record) RequiresMedia() bool {
	return !r.Rejected() && !r.NotFriendly()
}

// Complete reports whether the record is terminal and needs no reprocessing.
func (r Record) Complete() bool {
	return !r.RequiresMedia() || strings.TrimSpace(r.AudioURL) != ""
}

// SetMetadata stores meta as the record's generator response.
func (r *Record) SetMetadata(meta Metadata) error {
	if len(bytes.TrimSpace(meta.Raw)) > 0 {
		r.AIResponse = append(json.RawMessage(nil), meta.Raw...)
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	r.AIResponse = raw
	return nil
}

// EncodeRecord renders a record in its stored form.
func EncodeRecord(r Record) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// DecodeRecord parses a stored record.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}
