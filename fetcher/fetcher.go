// Copyright (c) 2025 BVK Chaitanya

// Package fetcher issues a batch of gateway requests concurrently and joins on
// all of them with per-request and overall deadlines.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/bvk/orbtrader/correlator"
	"github.com/bvk/orbtrader/ctxutil"
	"github.com/bvk/orbtrader/errs"
	"github.com/bvk/orbtrader/metrics"
	"golang.org/x/sync/errgroup"
)

type Operation = correlator.Operation[json.RawMessage]

// Starter sends requests and waits for their results. It is implemented by
// the gateway session.
type Starter interface {
	Start(ctx context.Context, method string, params any, shape correlator.Shape) (*Operation, error)
	Await(ctx context.Context, op *Operation, timeout time.Duration) ([]json.RawMessage, error)
}

type Request struct {
	// Key identifies the request in the results and must be unique in a
	// batch.
	Key string

	Method string
	Params any
	Shape  correlator.Shape

	// NoRetry disables retries on timeouts. Requests with side effects must
	// set it.
	NoRetry bool
}

type Result struct {
	Key      string
	Data     []json.RawMessage
	Err      error
	Attempts int
	Latency  time.Duration
}

// Results holds one result for every request of a batch, keyed by the
// request key.
type Results map[string]*Result

// Coverage returns the fraction of successful results.
func (rs Results) Coverage() float64 {
	if len(rs) == 0 {
		return 0
	}
	n := 0
	for _, r := range rs {
		if r.Err == nil {
			n++
		}
	}
	return float64(n) / float64(len(rs))
}

// Require returns an error matching errs.ErrPartialData if the coverage is
// below the minimum.
func (rs Results) Require(minCoverage float64) error {
	if c := rs.Coverage(); c < minCoverage {
		return fmt.Errorf("only %.0f%% of %d requests succeeded (need %.0f%%): %w", c*100, len(rs), minCoverage*100, errs.ErrPartialData)
	}
	return nil
}

// Failed returns the sorted keys of failed requests.
func (rs Results) Failed() []string {
	var keys []string
	for k, r := range rs {
		if r.Err != nil {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

type Options struct {
	// MaxRetries is the number of times a timed out request is re-issued.
	MaxRetries int

	// RetryBackoff is the wait before the first retry; it doubles for every
	// later retry.
	RetryBackoff time.Duration
}

func (v *Options) setDefaults() {
	if v.RetryBackoff == 0 {
		v.RetryBackoff = 250 * time.Millisecond
	}
}

func (v *Options) Check() error {
	if v.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}

type Coordinator struct {
	starter Starter
	opts    Options
}

func New(s Starter, opts *Options) (*Coordinator, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	return &Coordinator{starter: s, opts: *opts}, nil
}

type inflight struct {
	req   *Request
	res   *Result
	op    *Operation
	start time.Time
}

// FetchAll issues every request without waiting in between and then waits for
// all of them. Each request gets at most perRequestTimeout per attempt and
// the whole batch gets at most overallDeadline; zero values disable the
// respective limit.
//
// A failed or slow request is recorded in its own result; the returned
// mapping always has an entry for every request. An error is returned only
// for invalid batches, before any request is issued.
func (c *Coordinator) FetchAll(ctx context.Context, reqs []*Request, perRequestTimeout, overallDeadline time.Duration) (Results, error) {
	results := make(Results, len(reqs))
	for _, r := range reqs {
		if len(r.Key) == 0 {
			return nil, fmt.Errorf("request key cannot be empty: %w", os.ErrInvalid)
		}
		if _, ok := results[r.Key]; ok {
			return nil, fmt.Errorf("duplicate request key %q: %w", r.Key, os.ErrInvalid)
		}
		results[r.Key] = &Result{Key: r.Key}
	}

	if overallDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, overallDeadline, fmt.Errorf("batch deadline %s: %w", overallDeadline, errs.ErrTimeout))
		defer cancel()
	}

	// Fan out.
	pending := make([]*inflight, 0, len(reqs))
	for _, r := range reqs {
		res := results[r.Key]
		res.Attempts = 1
		op, err := c.starter.Start(ctx, r.Method, r.Params, r.Shape)
		if err != nil {
			res.Err = err
			c.record(r, res)
			continue
		}
		pending = append(pending, &inflight{req: r, res: res, op: op, start: time.Now()})
	}

	// Join.
	var g errgroup.Group
	for _, p := range pending {
		g.Go(func() error {
			c.await(ctx, p, perRequestTimeout)
			return nil
		})
	}
	g.Wait()

	if failed := results.Failed(); len(failed) > 0 {
		slog.Debug("some batch requests have failed", "failed", len(failed), "total", len(results))
	}
	return results, nil
}

func (c *Coordinator) await(ctx context.Context, p *inflight, timeout time.Duration) {
	retryable := func(err error) bool {
		return !p.req.NoRetry && errors.Is(err, errs.ErrTimeout) && ctx.Err() == nil
	}

	first := true
	err := ctxutil.Backoff(ctx, c.opts.MaxRetries, c.opts.RetryBackoff, retryable, func() error {
		if !first {
			op, err := c.starter.Start(ctx, p.req.Method, p.req.Params, p.req.Shape)
			if err != nil {
				return err
			}
			p.op = op
			p.res.Attempts++
		}
		first = false

		data, err := c.starter.Await(ctx, p.op, timeout)
		if err != nil {
			return err
		}
		p.res.Data = data
		return nil
	})
	p.res.Err = err
	p.res.Latency = time.Since(p.start)
	c.record(p.req, p.res)
}

func (c *Coordinator) record(r *Request, res *Result) {
	outcome := "ok"
	switch {
	case res.Err == nil:
	case errors.Is(res.Err, errs.ErrTimeout):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	metrics.FetchResults.WithLabelValues(r.Method, outcome).Inc()
	if res.Err == nil {
		metrics.FetchLatency.WithLabelValues(r.Method).Observe(res.Latency.Seconds())
	}
}
