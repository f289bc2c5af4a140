// Copyright 2025 Shadow Atlas Project
//
// Shared retryable HTTP client for REST-backed boundary sources
// (TIGERweb, ArcGIS FeatureServer). Only 429 and 5xx responses are
// retried; client errors (4xx other than 429) fail immediately since a
// retry can never fix a malformed request.

package datasource

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

const (
	httpTimeout  = 30 * time.Second
	maxAttempts  = 3
)

var backoffSchedule = [maxAttempts]time.Duration{
	500 * time.Millisecond,
	1000 * time.Millisecond,
	2000 * time.Millisecond,
}

// retryableClient wraps http.Client with the fetch-with-backoff policy
// every REST-backed source uses.
type retryableClient struct {
	client *http.Client
	rand   *rand.Rand
}

func newRetryableClient() *retryableClient {
	return &retryableClient{
		client: &http.Client{Timeout: httpTimeout},
		rand:   rand.New(rand.NewSource(1)),
	}
}

// getJSON performs a GET request, retrying on 429/5xx with the pinned
// backoff-plus-jitter schedule, and returns the response body bytes.
func (c *retryableClient) getJSON(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffSchedule[attempt-1]
			jitter := time.Duration(c.rand.Int63n(int64(delay / 4)))
			select {
			case <-time.After(delay + jitter):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("datasource: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "shadow-atlas/1.0 (+https://shadowatlas.example)")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("datasource: %s: status %d", url, resp.StatusCode)
			continue
		}
		return nil, fmt.Errorf("datasource: %s: status %d (not retried)", url, resp.StatusCode)
	}
	return nil, fmt.Errorf("datasource: exhausted %d attempts: %w", maxAttempts, lastErr)
}
