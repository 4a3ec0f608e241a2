package preflight

import (
	"context"
	"strings"

	"castsync/internal/config"
	"castsync/internal/sources"
)

// CheckLLMFromConfig evaluates metadata generator status. It reports
// "Disabled" when no source asks for AI metadata.
func CheckLLMFromConfig(ctx context.Context, cfg *config.Config, srcs []sources.Source) Result {
	const name = "Metadata LLM"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	wanted := false
	for _, src := range srcs {
		if src.IsEnabled() && src.AI.Enabled {
			wanted = true
			break
		}
	}
	if !wanted {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return Result{Name: name, Detail: "Missing API key"}
	}
	return CheckLLM(ctx, name, cfg.LLM)
}

// CheckNotificationsFromConfig reports whether push notifications are set up.
// It does not send anything; use "castsync test-notify" for that.
func CheckNotificationsFromConfig(cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return Result{Name: name, Passed: true, Detail: topic}
}
