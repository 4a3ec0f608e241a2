package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"castsync/internal/config"
	"castsync/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "sync completed",
			event: notifications.EventSyncCompleted,
			payload: notifications.Payload{
				"kind":      "sync",
				"published": 3,
				"sources":   2,
				"duration":  95 * time.Second,
			},
			expectTitle:   "castsync - Sync Complete",
			expectMessage: "sync finished: 3 published across 2 sources in 1m35s",
			expectTags:    "castsync,sync,completed",
		},
		{
			name:  "sync completed with failures",
			event: notifications.EventSyncCompleted,
			payload: notifications.Payload{
				"published": 1,
				"failed":    2,
				"sources":   1,
			},
			expectTitle:   "castsync - Sync Complete (with errors)",
			expectMessage: "sync finished: 1 published, 2 failed across 1 sources in 0s",
			expectTags:    "castsync,sync,completed",
		},
		{
			name:          "source halted",
			event:         notifications.EventSourceHalted,
			payload:       notifications.Payload{"source": "talks", "reason": "ai_rate_limited"},
			expectTitle:   "castsync - Source Paused",
			expectMessage: "⏸️ talks paused: ai_rate_limited",
			expectTags:    "castsync,ratelimit",
		},
		{
			name:  "error",
			event: notifications.EventError,
			payload: notifications.Payload{
				"context": "feed refresh",
				"error":   errors.New("bucket unavailable"),
			},
			expectTitle:    "castsync - Error",
			expectMessage:  "❌ Error with feed refresh: bucket unavailable",
			expectTags:     "castsync,error,alert",
			expectPriority: "high",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "castsync - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "castsync,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.SyncSummary = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	suppressed := []struct {
		event   notifications.Event
		payload notifications.Payload
	}{
		{notifications.EventSyncCompleted, notifications.Payload{"published": 4}},
		{notifications.EventSourceHalted, notifications.Payload{"source": "talks"}},
		{notifications.EventError, notifications.Payload{"error": "boom"}},
		{notifications.Event("unknown"), nil},
	}
	for _, tc := range suppressed {
		if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", tc.event, err)
		}
	}
}

func TestSyncSummarySkipsIdleRuns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("idle run should not notify")
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventSyncCompleted, notifications.Payload{"sources": 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic not allowed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
