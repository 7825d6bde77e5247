// Copyright (c) 2025 BVK Chaitanya

// Package correlator matches asynchronous callback events with the requests
// that caused them.
//
// A caller registers a request with Issue before sending it on the wire, so
// that a callback can never arrive for a token that is not yet known. The
// transport reader feeds events into OnEvent/OnError and the caller waits for
// resolution with Await. Every operation is resolved exactly once: by a
// terminal event, an error, a timeout, an explicit Abandon or FailAll.
package correlator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bvk/orbtrader/errs"
)

type Options struct {
	// Canceler is invoked, outside the table lock, with the token of an
	// operation that was abandoned because of a timeout or context
	// cancellation. It is used to send best-effort cancel requests and must
	// not block.
	Canceler func(Token)

	// StreamBuffer is the default event channel capacity for stream
	// operations.
	StreamBuffer int
}

func (v *Options) setDefaults() {
	if v.StreamBuffer <= 0 {
		v.StreamBuffer = 64
	}
}

// Table is the registry of pending operations.
type Table[T any] struct {
	opts Options

	mu sync.Mutex

	last Token

	pending map[Token]*Operation[T]

	// abandoned holds tokens resolved locally before the remote side could
	// finish; events for them are expected and ignored.
	abandoned map[Token]struct{}

	// failed is non-nil after FailAll till Reset.
	failed error
}

func New[T any](opts *Options) *Table[T] {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	return &Table[T]{
		opts:      *opts,
		pending:   make(map[Token]*Operation[T]),
		abandoned: make(map[Token]struct{}),
	}
}

// Issue allocates a new token and registers a pending operation for it.
func (t *Table[T]) Issue(shape Shape) (*Operation[T], error) {
	return t.issue(shape, t.opts.StreamBuffer)
}

// IssueStream registers a stream operation with a custom channel capacity.
func (t *Table[T]) IssueStream(buffer int) (*Operation[T], error) {
	if buffer <= 0 {
		buffer = t.opts.StreamBuffer
	}
	return t.issue(Stream, buffer)
}

func (t *Table[T]) issue(shape Shape, buffer int) (*Operation[T], error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failed != nil {
		return nil, t.failed
	}
	t.last++
	op := newOperation[T](t.last, shape, buffer)
	t.pending[op.token] = op
	return op, nil
}

// OnEvent delivers an event payload to the operation owning the token. A
// terminal event resolves the operation after delivering the payload.
//
// Returns a protocol fault if the token was never issued or if the operation
// has already been resolved normally. Events for abandoned operations are
// dropped silently.
func (t *Table[T]) OnEvent(token Token, payload T, terminal bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.pending[token]
	if !ok {
		return t.orphanLocked(token)
	}
	op.deliver(payload)
	if terminal || op.shape == Single {
		delete(t.pending, token)
		op.resolve(nil)
	}
	return nil
}

// OnEnd resolves the operation owning the token with the events accumulated
// so far. It is a terminal event without a payload.
func (t *Table[T]) OnEnd(token Token) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.pending[token]
	if !ok {
		return t.orphanLocked(token)
	}
	delete(t.pending, token)
	op.resolve(nil)
	return nil
}

// OnError resolves the operation owning the token with the given cause.
func (t *Table[T]) OnError(token Token, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.pending[token]
	if !ok {
		return t.orphanLocked(token)
	}
	delete(t.pending, token)
	op.resolve(cause)
	return nil
}

func (t *Table[T]) orphanLocked(token Token) error {
	if _, ok := t.abandoned[token]; ok {
		slog.Debug("dropped event for an abandoned operation", "token", token)
		return nil
	}
	if token <= 0 || token > t.last {
		return &errs.Fault{Kind: errs.UnknownToken, Token: int64(token)}
	}
	return &errs.Fault{Kind: errs.LateEvent, Token: int64(token), Detail: "event after resolution"}
}

// Await blocks till the operation is resolved, the timeout expires or the
// context is canceled, whichever happens first. A zero timeout waits without
// a deadline.
//
// When the timeout expires the operation is abandoned, a best-effort cancel is
// requested through the Canceler and an error matching errs.ErrTimeout is
// returned. If the operation was resolved concurrently, that result is
// returned instead.
func (t *Table[T]) Await(ctx context.Context, op *Operation[T], timeout time.Duration) ([]T, error) {
	if op.shape == Stream {
		return nil, fmt.Errorf("stream operations cannot be awaited: %w", os.ErrInvalid)
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-op.done:
		return op.result()
	case <-timeoutCh:
		if t.abandon(op, fmt.Errorf("request %d: %w", op.token, errs.ErrTimeout)) {
			t.cancel(op.token)
		}
	case <-ctx.Done():
		if t.abandon(op, context.Cause(ctx)) {
			t.cancel(op.token)
		}
	}
	return op.result()
}

// Abandon resolves a pending operation with the cause and remembers the
// token so that later events are ignored. Returns false if the operation was
// already resolved. The Canceler is not invoked.
func (t *Table[T]) Abandon(op *Operation[T], cause error) bool {
	return t.abandon(op, cause)
}

func (t *Table[T]) abandon(op *Operation[T], cause error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.pending[op.token]; !ok || cur != op {
		return false
	}
	delete(t.pending, op.token)
	t.abandoned[op.token] = struct{}{}
	op.resolve(cause)
	return true
}

func (t *Table[T]) cancel(token Token) {
	if t.opts.Canceler != nil {
		t.opts.Canceler(token)
	}
}

// FailAll resolves every pending operation with the cause and rejects new
// operations till Reset is called.
func (t *Table[T]) FailAll(cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for token, op := range t.pending {
		delete(t.pending, token)
		op.resolve(cause)
	}
	t.abandoned = make(map[Token]struct{})
	t.failed = cause
}

// Reset allows issuing new operations after a FailAll. Tokens continue from
// where they left.
func (t *Table[T]) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failed = nil
}

// Pending returns the number of unresolved operations.
func (t *Table[T]) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}

// Dropped returns the number of stream events discarded for a slow consumer.
func (t *Table[T]) Dropped(op *Operation[T]) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return op.dropped
}
