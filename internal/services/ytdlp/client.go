package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"castsync/internal/catalog"
	"castsync/internal/services"
)

const stage = "ytdlp"

// Config captures yt-dlp invocation settings.
type Config struct {
	Binary            string
	PlayerClients     []string
	AudioFormat       string
	CookiesFile       string
	RequestsPerMinute int
	TimeoutSeconds    int
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps yt-dlp CLI interactions.
type Client struct {
	cfg     Config
	timeout time.Duration
	limiter *rate.Limiter
	exec    Executor
}

// New constructs a yt-dlp client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.Binary = strings.TrimSpace(cfg.Binary)
	if cfg.Binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	if strings.TrimSpace(cfg.AudioFormat) == "" {
		cfg.AudioFormat = "bestaudio/best"
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	client := &Client{
		cfg:     cfg,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		limiter: rate.NewLimiter(limit, 1),
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type flatEntry struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type infoJSON struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	WebpageURL  string  `json:"webpage_url"`
	Timestamp   float64 `json:"timestamp"`
	UploadDate  string  `json:"upload_date"`
	Duration    float64 `json:"duration"`
	Thumbnail   string  `json:"thumbnail"`
}

// List enumerates the items of a channel or playlist URL in listing order.
// The listing runs when iteration starts; a failure is yielded once as the
// final element.
func (c *Client) List(ctx context.Context, channelURL string) iter.Seq2[catalog.Entry, error] {
	return func(yield func(catalog.Entry, error) bool) {
		var entries []catalog.Entry
		var decodeErr error
		args := c.baseArgs("--flat-playlist", "--dump-json", "--", channelURL)
		err := c.run(ctx, "list", args, func(line string) {
			line = strings.TrimSpace(line)
			if line == "" || decodeErr != nil {
				return
			}
			var entry flatEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				decodeErr = services.Wrap(services.ErrValidation, stage, "list", "decode entry", err)
				return
			}
			if strings.TrimSpace(entry.ID) == "" {
				return
			}
			entries = append(entries, catalog.Entry{
				ID:    entry.ID,
				URL:   watchURL(entry),
				Title: strings.TrimSpace(entry.Title),
			})
		})
		for _, entry := range entries {
			if !yield(entry, nil) {
				return
			}
		}
		if err == nil {
			err = decodeErr
		}
		if err != nil {
			yield(catalog.Entry{}, err)
		}
	}
}

func watchURL(entry flatEntry) string {
	u := strings.TrimSpace(entry.URL)
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return catalog.WatchURL(entry.ID)
}

// FetchDetail looks up full metadata for one item without downloading it.
func (c *Client) FetchDetail(ctx context.Context, itemURL string) (catalog.Detail, error) {
	var payload strings.Builder
	args := c.baseArgs("--dump-single-json", "--skip-download", "--no-playlist", "--", itemURL)
	if err := c.run(ctx, "fetch detail", args, func(line string) {
		payload.WriteString(line)
		payload.WriteByte('\n')
	}); err != nil {
		return catalog.Detail{}, err
	}
	var info infoJSON
	if err := json.Unmarshal([]byte(payload.String()), &info); err != nil {
		return catalog.Detail{}, services.Wrap(services.ErrValidation, stage, "fetch detail", "decode info", err)
	}
	if strings.TrimSpace(info.ID) == "" {
		return catalog.Detail{}, services.Wrap(services.ErrValidation, stage, "fetch detail", "info has no id", nil)
	}
	detail := catalog.Detail{
		ID:          info.ID,
		Title:       strings.TrimSpace(info.Title),
		Description: info.Description,
		URL:         itemURL,
		Timestamp:   int64(info.Timestamp),
		UploadDate:  strings.TrimSpace(info.UploadDate),
		Duration:    max(info.Duration, 0),
		Thumbnail:   strings.TrimSpace(info.Thumbnail),
	}
	return detail, nil
}

// DownloadMedia downloads the best audio stream into dir and returns the
// local path.
func (c *Client) DownloadMedia(ctx context.Context, itemURL, dir string) (string, error) {
	if dir == "" {
		return "", errors.New("destination directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}
	template := filepath.Join(dir, "%(id)s_raw.%(ext)s")
	args := c.baseArgs(
		"--format", c.cfg.AudioFormat,
		"--output", template,
		"--no-playlist",
		"--no-part",
		"--print", "after_move:filepath",
		"--", itemURL,
	)
	var printed string
	if err := c.run(ctx, "download", args, func(line string) {
		if line = strings.TrimSpace(line); line != "" {
			printed = line
		}
	}); err != nil {
		return "", err
	}
	if printed != "" {
		if _, err := os.Stat(printed); err == nil {
			return printed, nil
		}
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*_raw.*"))
	if len(matches) == 0 {
		return "", services.Wrap(services.ErrExternalTool, stage, "download", "no output file produced", nil)
	}
	return matches[0], nil
}

func (c *Client) baseArgs(extra ...string) []string {
	args := []string{"--quiet", "--no-warnings", "--ignore-config"}
	if len(c.cfg.PlayerClients) > 0 {
		args = append(args, "--extractor-args", "youtube:player_client="+strings.Join(c.cfg.PlayerClients, ","))
	}
	if c.cfg.CookiesFile != "" {
		args = append(args, "--cookies", c.cfg.CookiesFile)
	}
	return append(args, extra...)
}

func (c *Client) run(ctx context.Context, op string, args []string, onStdout func(string)) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return services.Wrap(services.ErrTimeout, stage, op, "wait for request slot", err)
	}
	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	err := c.exec.Run(runCtx, c.cfg.Binary, args, onStdout)
	if err == nil {
		return nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return services.Wrap(services.ErrTimeout, stage, op, fmt.Sprintf("timed out after %s", c.timeout), err)
	}
	return classify(op, err)
}

var rateLimitMarkers = []string{
	"http error 429",
	"too many requests",
	"rate-limited",
	"rate limited",
}

func classify(op string, err error) error {
	var exitErr *ExitError
	detail := err.Error()
	if errors.As(err, &exitErr) {
		detail = exitErr.Stderr
	}
	lower := strings.ToLower(detail)
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return services.Wrap(services.ErrRateLimited, stage, op, "upstream rate limit", err)
		}
	}
	return services.Wrap(services.ErrExternalTool, stage, op, "yt-dlp failed", err)
}
