// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the help center and index clients.
package httputil

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// throttled responses. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

// RetryMaxDelay caps a single backoff wait, including server-provided Retry-After values.
var RetryMaxDelay = 2 * time.Minute

const defaultMaxRetries = 5

// RequestFunc builds a fresh request for one attempt. Requests with bodies
// cannot be replayed, so each attempt gets its own.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Retryable reports whether a status code is worth retrying: 429 Too Many
// Requests and 503 Service Unavailable.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// DoWithRetry executes the request built by newReq and retries throttled
// responses with exponential backoff starting at RetryBaseDelay. A
// Retry-After header (seconds or HTTP date) overrides the computed delay.
//
// When maxRetries is 0 the default (5) is used. Transport errors are
// returned immediately. After exhausting retries the last throttled response
// is returned so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, newReq RequestFunc, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}

		if !Retryable(resp.StatusCode) || attempt >= maxRetries {
			return resp, nil
		}

		backoff := backoffFor(attempt, resp.Header.Get("Retry-After"))
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func backoffFor(attempt int, retryAfter string) time.Duration {
	d := RetryBaseDelay << attempt
	if ra := parseRetryAfter(retryAfter); ra > 0 {
		d = ra
	}
	if d > RetryMaxDelay {
		d = RetryMaxDelay
	}
	return d
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		return time.Until(at)
	}
	return 0
}

// Get is a RequestFunc for a plain GET with the given headers.
func Get(url string, header http.Header) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		return req, nil
	}
}
