// Copyright (c) 2023 BVK Chaitanya

package ctxutil

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestCloseGroup(t *testing.T) {
	var cg CloseGroup

	var count atomic.Int64
	for i := 0; i < 100; i++ {
		cg.Go(func(ctx context.Context) {
			<-ctx.Done()
			count.Add(1)
		})
	}

	cg.Close()
	if want, got := int64(100), count.Load(); want != got {
		t.Fatalf("want %d, got %d", want, got)
	}
	if err := context.Cause(cg.Context()); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("want os.ErrClosed, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	ctx := context.Background()
	errTransient := errors.New("transient")
	errFatal := errors.New("fatal")
	isTransient := func(err error) bool { return errors.Is(err, errTransient) }

	calls := 0
	err := Backoff(ctx, 3, time.Millisecond, isTransient, func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("want nil after 3 calls, got %v after %d calls", err, calls)
	}

	calls = 0
	err = Backoff(ctx, 3, time.Millisecond, isTransient, func() error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) || calls != 4 {
		t.Fatalf("want transient error after 4 calls, got %v after %d calls", err, calls)
	}

	calls = 0
	err = Backoff(ctx, 3, time.Millisecond, isTransient, func() error {
		calls++
		return errFatal
	})
	if !errors.Is(err, errFatal) || calls != 1 {
		t.Fatalf("want fatal error after 1 call, got %v after %d calls", err, calls)
	}
}

func TestSleepCanceled(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(os.ErrClosed)
	if err := Sleep(ctx, time.Hour); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("want os.ErrClosed, got %v", err)
	}
}
