// Package ffmpeg transcodes downloaded audio into loudness-normalized MP3
// using a two-pass loudnorm filter.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"castsync/internal/logging"
	"castsync/internal/services"
)

const stage = "transcode"

// Settings are the loudness and encoding targets.
type Settings struct {
	Binary         string
	Loudness       float64
	TruePeak       float64
	LoudnessRange  float64
	SampleRate     int
	Channels       int
	Bitrate        string
	TimeoutSeconds int
}

// Runner executes ffmpeg and returns its stderr.
type Runner interface {
	Run(ctx context.Context, binary string, args []string) (string, error)
}

type commandRunner struct{}

func (commandRunner) Run(ctx context.Context, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// Option configures the transcoder.
type Option func(*Transcoder)

// WithRunner injects a custom runner (primarily for tests).
func WithRunner(r Runner) Option {
	return func(t *Transcoder) {
		if r != nil {
			t.runner = r
		}
	}
}

// Transcoder normalizes and encodes audio files.
type Transcoder struct {
	settings Settings
	runner   Runner
	logger   *slog.Logger
}

// New constructs a transcoder.
func New(settings Settings, logger *slog.Logger, opts ...Option) *Transcoder {
	if strings.TrimSpace(settings.Binary) == "" {
		settings.Binary = "ffmpeg"
	}
	t := &Transcoder{
		settings: settings,
		runner:   commandRunner{},
		logger:   logging.NewComponentLogger(logger, "ffmpeg"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Measurement is the loudnorm analysis emitted by the first pass.
type Measurement struct {
	InputI       string `json:"input_i"`
	InputTP      string `json:"input_tp"`
	InputLRA     string `json:"input_lra"`
	InputThresh  string `json:"input_thresh"`
	TargetOffset string `json:"target_offset"`
}

func (m Measurement) valid() bool {
	for _, v := range []string{m.InputI, m.InputTP, m.InputLRA, m.InputThresh, m.TargetOffset} {
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return false
		}
	}
	return true
}

// Normalize measures rawPath, then encodes it to outPath applying the
// measured values. A failed measurement falls back to single-pass
// normalization.
func (t *Transcoder) Normalize(ctx context.Context, rawPath, outPath string) error {
	if rawPath == "" || outPath == "" {
		return services.Wrap(services.ErrValidation, stage, "normalize", "input and output paths required", nil)
	}
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	filter := t.baseFilter()
	measurement, err := t.measure(ctx, rawPath)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return t.wrapRunErr(ctx, "measure", err)
		}
		logging.WarnWithContext(t.logger, "loudness measurement failed; using single-pass normalization", "loudnorm_single_pass",
			logging.Error(err),
			logging.String(logging.FieldImpact, "loudness may be less accurate"),
		)
	default:
		filter += fmt.Sprintf(":measured_I=%s:measured_LRA=%s:measured_TP=%s:measured_thresh=%s:offset=%s:linear=true",
			measurement.InputI, measurement.InputLRA, measurement.InputTP, measurement.InputThresh, measurement.TargetOffset)
	}

	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", safeInput(rawPath),
		"-vn",
		"-ac", strconv.Itoa(t.settings.Channels),
		"-ar", strconv.Itoa(t.settings.SampleRate),
		"-b:a", t.settings.Bitrate,
		"-af", filter,
		"-codec:a", "libmp3lame",
		outPath,
	}
	if stderr, err := t.runner.Run(ctx, t.settings.Binary, args); err != nil {
		return t.wrapRunErr(ctx, "encode", fmt.Errorf("%w: %s", err, tail(stderr)))
	}
	return nil
}

func (t *Transcoder) measure(ctx context.Context, rawPath string) (Measurement, error) {
	args := []string{
		"-hide_banner", "-nostdin",
		"-i", safeInput(rawPath),
		"-vn",
		"-af", t.baseFilter() + ":print_format=json",
		"-f", "null", "-",
	}
	stderr, err := t.runner.Run(ctx, t.settings.Binary, args)
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: %s", err, tail(stderr))
	}
	return ParseMeasurement(stderr)
}

// ParseMeasurement extracts the loudnorm JSON block from ffmpeg stderr.
func ParseMeasurement(stderr string) (Measurement, error) {
	start := strings.LastIndex(stderr, "{")
	end := strings.LastIndex(stderr, "}")
	if start == -1 || end < start {
		return Measurement{}, errors.New("loudnorm output not found")
	}
	var m Measurement
	if err := json.Unmarshal([]byte(stderr[start:end+1]), &m); err != nil {
		return Measurement{}, fmt.Errorf("decode loudnorm output: %w", err)
	}
	if !m.valid() {
		return Measurement{}, errors.New("loudnorm output incomplete")
	}
	return m, nil
}

func (t *Transcoder) baseFilter() string {
	return fmt.Sprintf("loudnorm=I=%s:TP=%s:LRA=%s",
		formatFloat(t.settings.Loudness), formatFloat(t.settings.TruePeak), formatFloat(t.settings.LoudnessRange))
}

func (t *Transcoder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.settings.TimeoutSeconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(t.settings.TimeoutSeconds)*time.Second)
}

func (t *Transcoder) wrapRunErr(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stage, op, "ffmpeg timed out", err)
	}
	return services.Wrap(services.ErrExternalTool, stage, op, "ffmpeg failed", err)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// safeInput keeps relative paths that start with "-" from being read as flags.
func safeInput(path string) string {
	if strings.HasPrefix(path, "-") {
		return "./" + path
	}
	return path
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	const limit = 600
	if len(s) > limit {
		return "..." + s[len(s)-limit:]
	}
	return s
}
