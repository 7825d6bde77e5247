// Copyright (c) 2025 BVK Chaitanya

package metrics

import (
	"context"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shirou/gopsutil/v4/process"
)

func TestSampleOnce(t *testing.T) {
	ctx := context.Background()
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		t.Fatal(err)
	}
	if err := sampleOnce(ctx, proc); err != nil {
		t.Fatal(err)
	}
	if v := testutil.ToFloat64(ProcessRSS); v <= 0 {
		t.Fatalf("want positive rss, got %v", v)
	}
}
