// Copyright (c) 2025 BVK Chaitanya

package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bvk/orbtrader/correlator"
	"github.com/bvk/orbtrader/errs"
)

// fakeStarter resolves operations through a real correlator table. Request
// params are used as the request key.
type fakeStarter struct {
	table *correlator.Table[json.RawMessage]

	mu       sync.Mutex
	log      []string
	attempts map[string]int

	// onStart decides how the fake gateway reacts to a request.
	onStart func(key string, tok correlator.Token, attempt int) error
}

func newFakeStarter(onStart func(string, correlator.Token, int) error) *fakeStarter {
	return &fakeStarter{
		table:    correlator.New[json.RawMessage](nil),
		attempts: make(map[string]int),
		onStart:  onStart,
	}
}

func (f *fakeStarter) Start(ctx context.Context, method string, params any, shape correlator.Shape) (*Operation, error) {
	key := params.(string)

	f.mu.Lock()
	f.log = append(f.log, "start:"+key)
	f.attempts[key]++
	attempt := f.attempts[key]
	f.mu.Unlock()

	op, err := f.table.Issue(shape)
	if err != nil {
		return nil, err
	}
	if err := f.onStart(key, op.Token(), attempt); err != nil {
		f.table.Abandon(op, err)
		return nil, err
	}
	return op, nil
}

func (f *fakeStarter) Await(ctx context.Context, op *Operation, timeout time.Duration) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.log = append(f.log, "await")
	f.mu.Unlock()
	return f.table.Await(ctx, op, timeout)
}

func (f *fakeStarter) replyLater(tok correlator.Token, value string, d time.Duration) {
	go func() {
		time.Sleep(d)
		f.table.OnEvent(tok, json.RawMessage(value), false)
		f.table.OnEnd(tok)
	}()
}

func makeRequests(keys ...string) []*Request {
	var reqs []*Request
	for _, k := range keys {
		reqs = append(reqs, &Request{Key: k, Method: "market_snapshot", Params: k, Shape: correlator.Sequence})
	}
	return reqs
}

func TestFanOutBeforeJoin(t *testing.T) {
	ctx := context.Background()

	var fs *fakeStarter
	fs = newFakeStarter(func(key string, tok correlator.Token, _ int) error {
		fs.replyLater(tok, fmt.Sprintf("%q", key), 5*time.Millisecond)
		return nil
	})
	c, err := New(fs, nil)
	if err != nil {
		t.Fatal(err)
	}

	const k = 16
	var keys []string
	for i := 0; i < k; i++ {
		keys = append(keys, fmt.Sprintf("C%d", i))
	}
	results, err := c.FetchAll(ctx, makeRequests(keys...), time.Second, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	fs.mu.Lock()
	log := slices.Clone(fs.log)
	fs.mu.Unlock()

	firstAwait := slices.Index(log, "await")
	lastStart := -1
	for i, v := range log {
		if strings.HasPrefix(v, "start:") {
			lastStart = i
		}
	}
	if firstAwait != k || lastStart != k-1 {
		t.Fatalf("want all %d requests issued before the first await, got %v", k, log)
	}

	if len(results) != k {
		t.Fatalf("want %d results, got %d", k, len(results))
	}
	for _, key := range keys {
		r := results[key]
		if r.Err != nil || len(r.Data) != 1 || string(r.Data[0]) != fmt.Sprintf("%q", key) {
			t.Fatalf("unexpected result for %s: %#v", key, r)
		}
	}
	if cov := results.Coverage(); cov != 1 {
		t.Fatalf("want full coverage, got %v", cov)
	}
}

func TestPerEntryFailures(t *testing.T) {
	ctx := context.Background()

	errRejected := errors.New("rejected")

	var fs *fakeStarter
	fs = newFakeStarter(func(key string, tok correlator.Token, _ int) error {
		switch key {
		case "ok":
			fs.replyLater(tok, "1", time.Millisecond)
		case "error":
			go fs.table.OnError(tok, errRejected)
		case "unsent":
			return os.ErrClosed
		case "slow":
			// never answers
		}
		return nil
	})
	c, _ := New(fs, nil)

	results, err := c.FetchAll(ctx, makeRequests("ok", "error", "unsent", "slow"), 20*time.Millisecond, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Fatalf("want 4 results, got %d", len(results))
	}
	if results["ok"].Err != nil {
		t.Fatalf("want success for ok, got %v", results["ok"].Err)
	}
	if !errors.Is(results["error"].Err, errRejected) {
		t.Fatalf("want rejected, got %v", results["error"].Err)
	}
	if !errors.Is(results["unsent"].Err, os.ErrClosed) {
		t.Fatalf("want os.ErrClosed, got %v", results["unsent"].Err)
	}
	if !errors.Is(results["slow"].Err, errs.ErrTimeout) {
		t.Fatalf("want timeout, got %v", results["slow"].Err)
	}

	if want, got := "[error slow unsent]", fmt.Sprint(results.Failed()); want != got {
		t.Fatalf("want %s, got %s", want, got)
	}
	if err := results.Require(0.25); err != nil {
		t.Fatalf("want 25%% coverage to pass, got %v", err)
	}
	if err := results.Require(0.5); !errors.Is(err, errs.ErrPartialData) {
		t.Fatalf("want partial data error, got %v", err)
	}
}

func TestOverallDeadline(t *testing.T) {
	ctx := context.Background()

	fs := newFakeStarter(func(string, correlator.Token, int) error { return nil })
	c, _ := New(fs, &Options{MaxRetries: 5})

	start := time.Now()
	results, err := c.FetchAll(ctx, makeRequests("a", "b", "c"), time.Second, 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Fatalf("overall deadline was not honored; took %s", d)
	}
	for k, r := range results {
		if !errors.Is(r.Err, errs.ErrTimeout) {
			t.Fatalf("want timeout for %s, got %v", k, r.Err)
		}
	}
	if n := fs.table.Pending(); n != 0 {
		t.Fatalf("want no pending operations, got %d", n)
	}
}

func TestRetryOnTimeout(t *testing.T) {
	ctx := context.Background()

	var fs *fakeStarter
	fs = newFakeStarter(func(key string, tok correlator.Token, attempt int) error {
		if attempt > 1 {
			fs.replyLater(tok, "1", time.Millisecond)
		}
		return nil
	})
	c, _ := New(fs, &Options{MaxRetries: 2, RetryBackoff: time.Millisecond})

	reqs := makeRequests("retry", "once")
	reqs[1].NoRetry = true

	results, err := c.FetchAll(ctx, reqs, 20*time.Millisecond, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if r := results["retry"]; r.Err != nil || r.Attempts != 2 {
		t.Fatalf("want success on second attempt, got %#v", r)
	}
	if r := results["once"]; !errors.Is(r.Err, errs.ErrTimeout) || r.Attempts != 1 {
		t.Fatalf("want single timed out attempt, got %#v", r)
	}
}

func TestInvalidBatch(t *testing.T) {
	ctx := context.Background()

	fs := newFakeStarter(func(string, correlator.Token, int) error { return nil })
	c, _ := New(fs, nil)

	if _, err := c.FetchAll(ctx, makeRequests("a", "a"), time.Second, time.Second); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid for duplicate keys, got %v", err)
	}
	if len(fs.log) != 0 {
		t.Fatalf("invalid batches must not issue requests, got %v", fs.log)
	}
}
