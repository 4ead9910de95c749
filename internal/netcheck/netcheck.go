// Package netcheck probes outbound connectivity once before a run starts.
package netcheck

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/FranksOps/dorker/pkg/httpclient"
)

const (
	// DefaultURL is probed when no URL is configured.
	DefaultURL = "https://www.google.com"
	// MaxTimeout caps the probe regardless of what the caller asks for.
	MaxTimeout = 5 * time.Second
)

// Check issues one GET to url and reports whether it answered with a 2xx
// status. Failures are logged and reported as false, never returned.
func Check(ctx context.Context, client *httpclient.Client, url string, timeout time.Duration, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 || timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.Get(ctx, url)
	if err != nil {
		logger.Error("connectivity probe failed", "url", url, "err", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if !httpclient.IsSuccess(resp.StatusCode) {
		logger.Error("connectivity probe failed", "url", url, "status", resp.StatusCode)
		return false
	}
	logger.Debug("connectivity probe ok", "url", url, "status", resp.StatusCode)
	return true
}
