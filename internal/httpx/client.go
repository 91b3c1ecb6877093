// Copyright 2026 The ScaleCI Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpx wraps *http.Client with the retry policy spec §5 requires
// for calls to the cloud provider and source-control APIs: exponential
// backoff with jitter on 429/503/5xx, honoring Retry-After when present.
package httpx

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
)

// Client retries requests against transient upstream failures.
type Client struct {
	HTTP       *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// New returns a Client with the given retry budget, grounded the way the
// teacher's request helpers wrap http.Client with fixed timeouts.
func New(maxRetries int, baseDelay, maxDelay time.Duration) *Client {
	return &Client{
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		MaxDelay:   maxDelay,
	}
}

// Do executes req, retrying on 429/503/5xx with exponential backoff and
// jitter, honoring a Retry-After header when the upstream sends one.
// req.Body, if set, must be re-readable via GetBody since a retry must
// resend it.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	b := &backoff.Backoff{
		Min:    c.BaseDelay,
		Max:    c.MaxDelay,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryAfterOr(lastErr, b.Duration())); err != nil {
				return nil, err
			}
		}

		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			attemptReq.Body = body
		}

		resp, err := c.HTTP.Do(attemptReq)
		if err != nil {
			lastErr = err
			continue
		}

		if !isRetryable(resp.StatusCode) {
			return resp, nil
		}

		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		lastErr = &retryableStatusError{status: resp.StatusCode, retryAfter: retryAfter}
	}
	return nil, lastErr
}

func isRetryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusServiceUnavailable ||
		(status >= 500 && status < 600)
}

type retryableStatusError struct {
	status     int
	retryAfter time.Duration
}

func (e *retryableStatusError) Error() string {
	return "upstream returned retryable status " + strconv.Itoa(e.status)
}

func retryAfterOr(lastErr error, fallback time.Duration) time.Duration {
	if rse, ok := lastErr.(*retryableStatusError); ok && rse.retryAfter > 0 {
		return rse.retryAfter
	}
	return fallback
}

// parseRetryAfter supports both the delay-seconds and HTTP-date forms.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
