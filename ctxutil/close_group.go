// Copyright (c) 2023 BVK Chaitanya

package ctxutil

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
)

// CloseGroup tracks a set of goroutines that share one cancellation context.
// Zero value is ready to use.
type CloseGroup struct {
	closeCtx  context.Context
	causeFunc context.CancelCauseFunc

	wg sync.WaitGroup

	once sync.Once
}

func (cg *CloseGroup) init() {
	cg.closeCtx, cg.causeFunc = context.WithCancelCause(context.Background())
}

// Close cancels the group context with os.ErrClosed and waits for all
// goroutines to return.
func (cg *CloseGroup) Close() {
	cg.CloseCause(os.ErrClosed)
}

// CloseCause is like Close, but with a custom cancellation cause. First cause
// wins.
func (cg *CloseGroup) CloseCause(cause error) {
	cg.once.Do(cg.init)
	cg.causeFunc(cause)
	cg.wg.Wait()
}

func (cg *CloseGroup) Context() context.Context {
	cg.once.Do(cg.init)
	return cg.closeCtx
}

// Go runs f in a new goroutine with the group context. Panics are logged
// before they are propagated.
func (cg *CloseGroup) Go(f func(ctx context.Context)) {
	cg.once.Do(cg.init)

	cg.wg.Add(1)
	go func() {
		defer cg.wg.Done()

		defer func() {
			if r := recover(); r != nil {
				slog.Error("CAUGHT PANIC", "panic", r)
				slog.Error(string(debug.Stack()))
				panic(r)
			}
		}()

		f(cg.closeCtx)
	}()
}
