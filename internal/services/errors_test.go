package services_test

import (
	"errors"
	"strings"
	"testing"

	"castsync/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "media_decided", "transcode", "ffmpeg failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"media_decided", "transcode", "ffmpeg failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]error{
		"rate_limited":  services.Wrap(services.ErrRateLimited, "llm", "generate", "429", nil),
		"configuration": services.Wrap(services.ErrConfiguration, "config", "load", "bad", nil),
		"not_found":     services.Wrap(services.ErrNotFound, "store", "get", "missing", nil),
		"external_tool": services.Wrap(services.ErrExternalTool, "ytdlp", "download", "exit 1", nil),
		"transient":     errors.New("plain"),
		"":              nil,
	}
	for want, err := range cases {
		if got := services.Classify(err); got != want {
			t.Fatalf("Classify(%v) = %q, want %q", err, got, want)
		}
	}
}
