// Package thumbnail downloads item thumbnails over HTTP.
package thumbnail

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"castsync/internal/services"
)

const (
	stage    = "thumbnail"
	maxBytes = 10 << 20
)

// Fetcher downloads thumbnails with request pacing.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

// New constructs a fetcher. requestsPerMinute <= 0 disables pacing.
func New(client *http.Client, requestsPerMinute int, timeout time.Duration) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	return &Fetcher{client: client, limiter: rate.NewLimiter(limit, 1)}
}

// Fetch downloads imageURL to destPath.
func (f *Fetcher) Fetch(ctx context.Context, imageURL, destPath string) error {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return services.Wrap(services.ErrValidation, stage, "fetch", "image url required", nil)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return services.Wrap(services.ErrTimeout, stage, "fetch", "wait for request slot", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, stage, "fetch", "build request", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, stage, "fetch", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return services.Wrap(services.ErrRateLimited, stage, "fetch", resp.Status, nil)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, stage, "fetch", resp.Status, nil)
	case resp.StatusCode != http.StatusOK:
		return services.Wrap(services.ErrExternalTool, stage, "fetch", resp.Status, nil)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create thumbnail file: %w", err)
	}
	n, copyErr := io.Copy(out, io.LimitReader(resp.Body, maxBytes+1))
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(destPath)
		return services.Wrap(services.ErrTransient, stage, "fetch", "read body", copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close thumbnail file: %w", closeErr)
	}
	if n > maxBytes {
		_ = os.Remove(destPath)
		return services.Wrap(services.ErrValidation, stage, "fetch", "thumbnail too large", nil)
	}
	if n == 0 {
		_ = os.Remove(destPath)
		return services.Wrap(services.ErrValidation, stage, "fetch", "empty thumbnail", nil)
	}
	return nil
}
