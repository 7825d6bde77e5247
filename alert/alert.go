// Copyright (c) 2025 BVK Chaitanya

// Package alert forwards engine transitions and gateway faults to the
// configured notifiers.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvk/orbtrader/journal"
	"github.com/visvasity/topic"
)

type Notifier interface {
	Name() string
	SendMessage(ctx context.Context, at time.Time, msg string) error
}

// Multi sends every message to all notifiers.
type Multi []Notifier

func (m Multi) Name() string {
	return "multi"
}

func (m Multi) SendMessage(ctx context.Context, at time.Time, msg string) error {
	var errs []error
	for _, n := range m {
		if err := n.SendMessage(ctx, at, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Important returns true if the transition should be sent as an alert.
// Transitions into the waiting states are only logged.
func Important(t *journal.Transition) bool {
	switch t.To {
	case "ExecutingTrade", "ManagingPosition", "Shutdown":
		return true
	}
	return false
}

func transitionMessage(t *journal.Transition) string {
	if len(t.Reason) == 0 {
		return fmt.Sprintf("%s -> %s", t.From, t.To)
	}
	return fmt.Sprintf("%s -> %s: %s", t.From, t.To, t.Reason)
}

// Watch sends alerts for the important transitions and for every fault till
// the context is canceled or the transitions topic is closed. Send failures
// are logged and ignored.
func Watch(ctx context.Context, n Notifier, transitions *topic.Receiver[*journal.Transition], faults *topic.Receiver[error]) error {
	transitionsCh, err := topic.ReceiveCh(transitions)
	if err != nil {
		return err
	}
	faultsCh, err := topic.ReceiveCh(faults)
	if err != nil {
		return err
	}

	send := func(at time.Time, msg string) {
		if err := n.SendMessage(ctx, at, msg); err != nil {
			slog.Warn("could not send alert (ignored)", "notifier", n.Name(), "message", msg, "err", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)

		case t, ok := <-transitionsCh:
			if !ok {
				return nil
			}
			if Important(t) {
				send(t.Time, transitionMessage(t))
			}

		case err, ok := <-faultsCh:
			if !ok {
				faultsCh = nil
				continue
			}
			send(time.Now(), fmt.Sprintf("gateway fault: %v", err))
		}
	}
}
