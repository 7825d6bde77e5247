// Copyright (c) 2023 BVK Chaitanya

package httputil

import (
	"fmt"
	"os"
	"time"
)

type Options struct {
	// ReadyTimeout limits the wait for a newly started listener to serve its
	// readiness handler.
	ReadyTimeout time.Duration

	// ReadyPollInterval is the wait between readiness checks.
	ReadyPollInterval time.Duration

	// ShutdownTimeout limits the wait for in-flight requests, like status
	// queries, when a listener is stopped. Zero closes the listener
	// immediately.
	ShutdownTimeout time.Duration
}

func (v *Options) setDefaults() {
	if v.ReadyTimeout == 0 {
		v.ReadyTimeout = 10 * time.Second
	}
	if v.ReadyPollInterval == 0 {
		v.ReadyPollInterval = time.Second
	}
}

func (v *Options) Check() error {
	if v.ReadyTimeout < 0 || v.ReadyPollInterval < 0 || v.ShutdownTimeout < 0 {
		return fmt.Errorf("http server timeouts cannot be negative: %w", os.ErrInvalid)
	}
	if v.ReadyPollInterval > v.ReadyTimeout {
		return fmt.Errorf("ready poll interval %s exceeds the ready timeout %s: %w", v.ReadyPollInterval, v.ReadyTimeout, os.ErrInvalid)
	}
	return nil
}
