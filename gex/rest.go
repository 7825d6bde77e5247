// Copyright (c) 2025 BVK Chaitanya

package gex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bvk/orbtrader/ctxutil"
	"golang.org/x/time/rate"
)

type restClient struct {
	client  http.Client
	limiter *rate.Limiter
	retries int
}

func newRESTClient(rpm int, timeout time.Duration, retries int) *restClient {
	limit := rate.Inf
	if rpm > 0 {
		limit = rate.Limit(float64(rpm) / 60)
	}
	return &restClient{
		client:  http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		retries: retries,
	}
}

// statusError is a non-200 http response.
type statusError struct {
	code       int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http GET returned %d", e.code)
}

func (e *statusError) retryable() bool {
	switch e.code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	}
	return false
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return time.Until(at)
	}
	return 0
}

// getJSON issues a rate limited GET request and decodes the json response.
// Requests are retried on 429, 502 and 503 responses, honoring the
// Retry-After header.
func (c *restClient) getJSON(ctx context.Context, u *url.URL, header http.Header, result any) error {
	for i := 0; ; i++ {
		err := c.tryGetJSON(ctx, u, header, result)
		if err == nil {
			return nil
		}
		var serr *statusError
		if !errors.As(err, &serr) || !serr.retryable() || i >= c.retries {
			return err
		}
		wait := serr.retryAfter
		if wait <= 0 {
			wait = time.Duration(1<<i) * time.Second
		}
		slog.Warn("http GET is throttled (retrying)", "host", u.Host, "path", u.Path, "status", serr.code, "wait", wait)
		if err := ctxutil.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (c *restClient) tryGetJSON(ctx context.Context, u *url.URL, header http.Header, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("could not create http get request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	at := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not do http client request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &statusError{code: resp.StatusCode, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read http response body: %w", err)
	}
	slog.Debug("http GET", "host", u.Host, "path", u.Path, "latency", time.Since(at), "size", len(data))

	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("could not decode response to json: %w", err)
	}
	return nil
}
