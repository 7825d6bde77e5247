// Copyright (c) 2025 BVK Chaitanya

package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// SampleProcess updates the process gauges every interval till the context
// is canceled.
func SampleProcess(ctx context.Context, interval time.Duration) error {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return fmt.Errorf("could not open self process: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := sampleOnce(ctx, proc); err != nil {
			slog.Warn("could not sample process stats (ignored)", "err", err)
		}
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-ticker.C:
		}
	}
}

func sampleOnce(ctx context.Context, proc *process.Process) error {
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return err
	}
	ProcessRSS.Set(float64(mem.RSS))

	cpu, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return err
	}
	ProcessCPU.Set(cpu)
	return nil
}
