package textmatch

import (
	"regexp"
	"strings"
)

// SeriesMatchThreshold is the partial ratio at which a generated series name
// is accepted as present in the original title.
const SeriesMatchThreshold = 80

var (
	digitsPattern    = regexp.MustCompile(`\d+`)
	seriesSeparators = regexp.MustCompile(`[\s\-–—|:]+`)
)

// TitleParts are generated title components prior to validation.
type TitleParts struct {
	Series  string
	Episode string
	Topic   string
}

// FormatTitle validates parts against the original title and assembles the
// final episode title. Series names and episode numbers that cannot be found
// in the original are dropped; without a topic the original title is kept.
func FormatTitle(original string, parts TitleParts) string {
	series := strings.TrimSpace(parts.Series)
	episode := strings.TrimSpace(parts.Episode)
	topic := strings.TrimSpace(parts.Topic)

	if series != "" && !seriesInTitle(original, series) {
		series = ""
	}
	if episode != "" && !episodeInTitle(original, episode) {
		episode = ""
	}

	switch {
	case topic == "":
		return original
	case series != "" && episode != "":
		return series + " " + episode + " | " + topic
	case series != "":
		return series + " | " + topic
	default:
		return topic
	}
}

func seriesInTitle(original, series string) bool {
	if original == "" {
		return false
	}
	title := Fold(original)
	if PartialRatio(Fold(series), title) >= SeriesMatchThreshold {
		return true
	}
	var significant []string
	for _, part := range seriesSeparators.Split(series, -1) {
		if len([]rune(part)) > 2 {
			significant = append(significant, part)
		}
	}
	if len(significant) == 0 {
		return false
	}
	matches := 0
	for _, part := range significant {
		if PartialRatio(Fold(part), title) >= SeriesMatchThreshold {
			matches++
		}
	}
	return float64(matches) >= float64(len(significant))*0.5
}

func episodeInTitle(original, episode string) bool {
	if original == "" {
		return false
	}
	titleNums := digitsPattern.FindAllString(original, -1)
	for _, ep := range digitsPattern.FindAllString(episode, -1) {
		trimmed := strings.TrimLeft(ep, "0")
		for _, n := range titleNums {
			if ep == n || trimmed == strings.TrimLeft(n, "0") {
				return true
			}
		}
	}
	return false
}
