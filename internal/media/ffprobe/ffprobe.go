package ffprobe

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"castsync/internal/services"
)

// report is the subset of ffprobe's JSON output the validator reads.
type report struct {
	Streams []stream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

type stream struct {
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
}

// Audio summarises a probed audio file.
type Audio struct {
	Codec           string
	DurationSeconds float64
	SizeBytes       int64
}

// Probe runs ffprobe against path and summarises its first audio stream.
func Probe(ctx context.Context, binary, path string) (Audio, error) {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Audio{}, services.Wrap(services.ErrValidation, "validate", "ffprobe", "empty path", nil)
	}
	out, err := exec.CommandContext(ctx, binary,
		"-v", "error", "-hide_banner",
		"-show_entries", "format=duration,size:stream=codec_name,codec_type,duration",
		"-of", "json", "--", path,
	).Output()
	if err != nil {
		detail := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return Audio{}, services.Wrap(services.ErrExternalTool, "validate", "ffprobe", fmt.Sprintf("inspect %s: %s", path, detail), err)
	}
	var rep report
	if err := json.Unmarshal(out, &rep); err != nil {
		return Audio{}, services.Wrap(services.ErrExternalTool, "validate", "ffprobe", "decode output", err)
	}
	return summarise(rep)
}

// summarise picks the first audio stream. The container duration wins; the
// longest audio stream duration is the fallback.
func summarise(rep report) (Audio, error) {
	var audio Audio
	found := false
	for _, s := range rep.Streams {
		if !strings.EqualFold(s.CodecType, "audio") {
			continue
		}
		if !found {
			audio.Codec = s.CodecName
			found = true
		}
		audio.DurationSeconds = math.Max(audio.DurationSeconds, number(s.Duration))
	}
	if !found {
		return Audio{}, services.Wrap(services.ErrValidation, "validate", "ffprobe", "output has no audio stream", nil)
	}
	if d := number(rep.Format.Duration); d > 0 {
		audio.DurationSeconds = d
	}
	if audio.DurationSeconds <= 0 {
		return Audio{}, services.Wrap(services.ErrValidation, "validate", "ffprobe", "output has no duration", nil)
	}
	audio.SizeBytes = int64(number(rep.Format.Size))
	return audio, nil
}

// number parses an ffprobe numeric string; blanks and garbage read as zero.
func number(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed < 0 {
		return 0
	}
	return parsed
}

// Prober validates transcoded output with a fixed ffprobe binary. Codec,
// when set, must match the first audio stream.
type Prober struct {
	Binary string
	Codec  string
}

// Validate checks path and returns its audio duration in seconds.
func (p Prober) Validate(ctx context.Context, path string) (float64, error) {
	audio, err := Probe(ctx, p.Binary, path)
	if err != nil {
		return 0, err
	}
	if p.Codec != "" && !strings.EqualFold(audio.Codec, p.Codec) {
		return 0, services.Wrap(services.ErrValidation, "validate", "ffprobe",
			fmt.Sprintf("codec %q, want %q", audio.Codec, p.Codec), nil)
	}
	return audio.DurationSeconds, nil
}
