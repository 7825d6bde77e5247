// Copyright (c) 2025 BVK Chaitanya

// Package errs defines the error kinds shared by the gateway, order and
// engine packages. Callers classify errors with errors.Is against the
// sentinels; extra details travel in wrapping errors.
package errs

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrConnection is fatal to the current session.
	ErrConnection = errors.New("gateway connection error")

	// ErrConnectionLost reports an unexpected drop of an established
	// connection. It also matches ErrConnection.
	ErrConnectionLost = fmt.Errorf("connection lost: %w", ErrConnection)

	// ErrTimeout is a per-operation, recoverable timeout. It also matches
	// os.ErrDeadlineExceeded.
	ErrTimeout = fmt.Errorf("operation timed out: %w", os.ErrDeadlineExceeded)

	// ErrSubmissionRejected reports an order declined by the venue.
	ErrSubmissionRejected = errors.New("order submission rejected")

	// ErrProtocolFault reports a gateway behavior that violates the
	// request/callback contract or the bracket invariants.
	ErrProtocolFault = errors.New("protocol fault")

	// ErrPartialData reports a batch whose successful fraction is below the
	// required minimum coverage.
	ErrPartialData = errors.New("partial data")
)

type FaultKind string

const (
	UnknownToken    FaultKind = "unknown-token"
	LateEvent       FaultKind = "late-event"
	BadTransition   FaultKind = "bad-transition"
	SiblingLive     FaultKind = "sibling-live"
	MalformedFrame  FaultKind = "malformed-frame"
	UnexpectedReply FaultKind = "unexpected-reply"
)

// Fault carries the details of a protocol fault.
type Fault struct {
	Kind    FaultKind
	Token   int64
	OrderID int64
	Detail  string
}

func (f *Fault) Error() string {
	msg := fmt.Sprintf("protocol fault (%s)", f.Kind)
	if f.Token != 0 {
		msg += fmt.Sprintf(" token=%d", f.Token)
	}
	if f.OrderID != 0 {
		msg += fmt.Sprintf(" order-id=%d", f.OrderID)
	}
	if len(f.Detail) > 0 {
		msg += ": " + f.Detail
	}
	return msg
}

func (f *Fault) Unwrap() error {
	return ErrProtocolFault
}

// IsFatal returns true if err leaves no in-flight operation trustworthy.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConnection)
}
