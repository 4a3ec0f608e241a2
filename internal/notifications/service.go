package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"castsync/internal/config"
)

const userAgent = "castsync/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventSyncCompleted Event = "sync_completed"
	EventSourceHalted  Event = "source_halted"
	EventError         Event = "error"
	EventTest          Event = "test"
)

// Payload carries event fields. Unknown keys are ignored.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		syncSummary: cfg.Notifications.SyncSummary,
		errors:      cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	syncSummary bool
	errors      bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventSyncCompleted:
		if !n.syncSummary {
			return message{}, false
		}
		published := payload.count("published")
		failed := payload.count("failed")
		duration := formatDuration(payload.duration("duration"))
		kind := payload.text("kind")
		if kind == "" {
			kind = "sync"
		}
		if published == 0 && failed == 0 {
			// Nothing new is not worth a push.
			return message{}, false
		}
		title := "castsync - Sync Complete"
		body := fmt.Sprintf("%s finished: %d published across %d sources in %s", kind, published, payload.count("sources"), duration)
		if failed > 0 {
			title = "castsync - Sync Complete (with errors)"
			body = fmt.Sprintf("%s finished: %d published, %d failed across %d sources in %s", kind, published, failed, payload.count("sources"), duration)
		}
		return message{title: title, body: body, tags: []string{"castsync", "sync", "completed"}}, true
	case EventSourceHalted:
		if !n.syncSummary {
			return message{}, false
		}
		return message{
			title: "castsync - Source Paused",
			body:  fmt.Sprintf("⏸️ %s paused: %s", payload.text("source"), payload.text("reason")),
			tags:  []string{"castsync", "ratelimit"},
		}, true
	case EventError:
		if !n.errors {
			return message{}, false
		}
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := payload.text("context"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if text := payload.text("error"); text != "" {
			b.WriteString(text)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "castsync - Error",
			body:     b.String(),
			tags:     []string{"castsync", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "castsync - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"castsync", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) count(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (p Payload) duration(key string) time.Duration {
	if d, ok := p[key].(time.Duration); ok {
		return d
	}
	return 0
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
