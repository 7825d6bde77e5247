// Copyright (c) 2025 BVK Chaitanya

package gateway

import (
	"fmt"
	"os"
	"time"
)

type Options struct {
	// SendQueueSize is the capacity of the single-writer request queue.
	SendQueueSize int

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// RequestTimeout is the default timeout for typed helpers when the caller
	// passes zero.
	RequestTimeout time.Duration

	// StreamBuffer is the event channel capacity for subscriptions.
	StreamBuffer int

	// Version is reported to the gateway in the handshake.
	Version string
}

func (v *Options) setDefaults() {
	if v.SendQueueSize == 0 {
		v.SendQueueSize = 256
	}
	if v.WriteTimeout == 0 {
		v.WriteTimeout = 10 * time.Second
	}
	if v.RequestTimeout == 0 {
		v.RequestTimeout = 10 * time.Second
	}
	if v.StreamBuffer == 0 {
		v.StreamBuffer = 128
	}
	if v.Version == "" {
		v.Version = "orbtrader/1"
	}
}

func (v *Options) Check() error {
	if v.SendQueueSize < 1 {
		return fmt.Errorf("send queue size must be positive: %w", os.ErrInvalid)
	}
	if v.WriteTimeout < 0 || v.RequestTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}
