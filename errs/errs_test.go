// Copyright (c) 2025 BVK Chaitanya

package errs

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestKinds(t *testing.T) {
	if !errors.Is(ErrConnectionLost, ErrConnection) {
		t.Fatalf("connection-lost must match connection error")
	}
	if !errors.Is(ErrTimeout, os.ErrDeadlineExceeded) {
		t.Fatalf("timeout must match os.ErrDeadlineExceeded")
	}
	if !IsFatal(fmt.Errorf("could not read: %w", ErrConnectionLost)) {
		t.Fatalf("wrapped connection-lost must be fatal")
	}
	if IsFatal(ErrTimeout) {
		t.Fatalf("timeout must not be fatal")
	}

	var err error = &Fault{Kind: LateEvent, Token: 7}
	if !errors.Is(fmt.Errorf("wrapped: %w", err), ErrProtocolFault) {
		t.Fatalf("fault must match ErrProtocolFault")
	}
	if want, got := "protocol fault (late-event) token=7", err.Error(); want != got {
		t.Fatalf("want %q, got %q", want, got)
	}
}
