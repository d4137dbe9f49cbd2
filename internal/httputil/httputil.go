// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the resolver and fetcher.
package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultUserAgent is a desktop browser identification. The e-paper site
// serves a reduced page to unknown clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Get issues a GET request for url with browser-like headers. The caller
// owns the response body. A non-nil error means no response was received;
// HTTP error statuses are returned as responses for the caller to classify.
func Get(ctx context.Context, client *http.Client, url, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	return resp, nil
}

// Discard drains and closes a response body so the connection can be reused.
func Discard(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// IsSuccess reports whether status is a 2xx code.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// NewPacer returns a limiter that spaces consecutive requests at least delay
// apart. A zero or negative delay yields a limiter that never waits.
func NewPacer(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
