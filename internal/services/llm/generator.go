package llm

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"castsync/internal/itemstore"
	"castsync/internal/logging"
	"castsync/internal/services"
)

//go:embed prompt.md
var defaultPrompt string

const systemPrompt = "You must respond with JSON only."

// BreakerSettings controls the circuit breaker guarding the provider.
type BreakerSettings struct {
	// Failures is the number of consecutive failures that opens the breaker.
	Failures int
	Cooldown time.Duration
}

// Generator produces item metadata from a video URL.
type Generator struct {
	client   *Client
	template string
	breaker  *gobreaker.CircuitBreaker[string]
	logger   *slog.Logger
}

// LoadPrompt returns the prompt template at path, or the built-in template
// when path is empty.
func LoadPrompt(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return defaultPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, stage, "load prompt", path, err)
	}
	if !strings.Contains(string(data), "{video_url}") {
		return "", services.Wrap(services.ErrConfiguration, stage, "load prompt", "template must contain {video_url}", nil)
	}
	return string(data), nil
}

// NewGenerator wires a client, prompt template and breaker.
func NewGenerator(client *Client, template string, settings BreakerSettings, logger *slog.Logger) *Generator {
	if strings.TrimSpace(template) == "" {
		template = defaultPrompt
	}
	logger = logging.NewComponentLogger(logger, "metadata")
	failures := uint32(max(settings.Failures, 1))
	cooldown := settings.Cooldown
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "metadata",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Rate limits and bad credentials are handled by the caller and
		// say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, services.ErrRateLimited) ||
				errors.Is(err, services.ErrConfiguration) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("metadata breaker state changed",
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})
	return &Generator{client: client, template: template, breaker: breaker, logger: logger}
}

// Generate asks the model for metadata about the video at url.
func (g *Generator) Generate(ctx context.Context, url string) (*itemstore.Metadata, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, services.Wrap(services.ErrValidation, stage, "generate", "url required", nil)
	}
	prompt := strings.ReplaceAll(g.template, "{video_url}", url)
	content, err := g.breaker.Execute(func() (string, error) {
		return g.client.CompleteJSON(ctx, systemPrompt, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, services.Wrap(services.ErrTransient, stage, "generate", "provider circuit open", err)
		}
		return nil, err
	}
	var meta itemstore.Metadata
	if err := DecodeLLMJSON(content, &meta); err != nil {
		return nil, services.Wrap(services.ErrValidation, stage, "generate", "parse payload", err)
	}
	raw := extractJSON(content)
	if json.Valid([]byte(raw)) {
		meta.Raw = []byte(raw)
	}
	if meta.TitleComponents != nil {
		tc := meta.TitleComponents
		tc.SeriesName = strings.TrimSpace(tc.SeriesName)
		tc.TopicSummary = strings.TrimSpace(tc.TopicSummary)
		tc.EpisodeNumber = itemstore.FlexString(strings.TrimSpace(string(tc.EpisodeNumber)))
	}
	meta.Description = strings.TrimSpace(meta.Description)
	g.logger.Debug("metadata generated",
		logging.String("url", url),
		logging.Bool("podcast_friendly", meta.PodcastFriendly == nil || *meta.PodcastFriendly),
	)
	return &meta, nil
}

// String describes the generator for status output.
func (g *Generator) String() string {
	return fmt.Sprintf("%s (breaker %s)", g.client.cfg.Model, g.breaker.State())
}
