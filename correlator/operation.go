// Copyright (c) 2025 BVK Chaitanya

package correlator

import (
	"fmt"
)

// Token identifies one outstanding request. Tokens are allocated in
// increasing order and are never reused by a Table.
type Token int64

// Shape defines how callback events complete an operation.
type Shape int

const (
	// Single operations resolve on their first event.
	Single Shape = iota

	// Sequence operations accumulate events till a terminal event.
	Sequence

	// Stream operations forward every event to a channel and resolve only on
	// error, terminal event or an explicit Abandon.
	Stream
)

func (s Shape) String() string {
	switch s {
	case Single:
		return "single"
	case Sequence:
		return "sequence"
	case Stream:
		return "stream"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// Operation is the completion cell for a pending request. All fields are
// guarded by the owning Table's mutex till the done channel is closed;
// readers access the result only after done is closed.
type Operation[T any] struct {
	token Token
	shape Shape

	buf    []T
	events chan T

	// dropped counts the stream events discarded because the consumer was
	// slow.
	dropped int

	resolved bool
	err      error
	done     chan struct{}
}

func newOperation[T any](token Token, shape Shape, buffer int) *Operation[T] {
	op := &Operation[T]{
		token: token,
		shape: shape,
		done:  make(chan struct{}),
	}
	if shape == Stream {
		op.events = make(chan T, buffer)
	}
	return op
}

func (op *Operation[T]) Token() Token {
	return op.token
}

func (op *Operation[T]) Shape() Shape {
	return op.shape
}

// Done returns a channel that is closed when the operation is resolved.
func (op *Operation[T]) Done() <-chan struct{} {
	return op.done
}

// Events returns the event channel of a stream operation. Channel is closed
// when the operation is resolved. Returns nil for other shapes.
func (op *Operation[T]) Events() <-chan T {
	return op.events
}

// Err returns the resolution error. It must be called only after the Done
// channel is closed.
func (op *Operation[T]) Err() error {
	return op.err
}

func (op *Operation[T]) result() ([]T, error) {
	<-op.done
	if op.err != nil {
		return nil, op.err
	}
	return op.buf, nil
}

// deliver must be called with the table lock held.
func (op *Operation[T]) deliver(v T) {
	if op.shape != Stream {
		op.buf = append(op.buf, v)
		return
	}
	select {
	case op.events <- v:
		return
	default:
	}
	// Drop the oldest event to make room; consumers care about the latest.
	select {
	case <-op.events:
	default:
	}
	select {
	case op.events <- v:
	default:
	}
	op.dropped++
}

// resolve must be called with the table lock held.
func (op *Operation[T]) resolve(err error) {
	if op.resolved {
		panic(fmt.Sprintf("correlator: operation %d resolved twice", op.token))
	}
	op.resolved = true
	op.err = err
	if op.events != nil {
		close(op.events)
	}
	close(op.done)
}
