// Copyright (c) 2025 BVK Chaitanya

package journal

import (
	"context"
	"testing"
	"time"

	"github.com/bvk/orbtrader/instrument"
	"github.com/bvk/orbtrader/order"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestGroups(t *testing.T) {
	ctx := context.Background()
	j := New(kvmemdb.New())

	c := instrument.Contract{
		Symbol:     "SPX",
		Kind:       instrument.Option,
		Exchange:   "SMART",
		Currency:   "USD",
		Expiration: "20260121",
		Strike:     decimal.NewFromInt(5000),
		Right:      instrument.Call,
		Multiplier: 100,
	}
	g := &order.Group{
		ID:    uuid.New(),
		State: order.Active,
		Opening: order.Record{
			OrderID:   100,
			Role:      order.Opening,
			Contract:  c,
			Action:    "BUY",
			OrderType: "LMT",
			Price:     decimal.RequireFromString("2.00"),
			Quantity:  decimal.NewFromInt(1),
			Status:    order.Filled,
			FillPrice: decimal.RequireFromString("2.05"),
		},
		CreateTime: time.Now(),
	}
	if err := j.SaveGroup(ctx, g); err != nil {
		t.Fatal(err)
	}

	got, err := j.LoadGroup(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != g.ID || got.State != order.Active || got.Opening.OrderID != 100 || !got.Opening.FillPrice.Equal(g.Opening.FillPrice) {
		t.Fatalf("want %v, got %v", g, got)
	}
	if got.Opening.Contract.String() != c.String() {
		t.Fatalf("want %s, got %s", c, got.Opening.Contract)
	}

	// Saving again overwrites.
	g.State = order.Closed
	g.CloseReason = "take-profit order filled"
	if err := j.SaveGroup(ctx, g); err != nil {
		t.Fatal(err)
	}
	gs, err := j.Groups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(gs) != 1 || gs[0].State != order.Closed || gs[0].CloseReason != g.CloseReason {
		t.Fatalf("want one closed group, got %v", gs)
	}

	if _, err := j.LoadGroup(ctx, uuid.New()); err == nil {
		t.Fatalf("want an error for a missing group")
	}
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	j := New(kvmemdb.New())

	states := []string{"Connecting", "AwaitingRange", "MonitoringBreakout", "AnalyzingGex"}
	// Save out of order; scans return them by sequence.
	for _, i := range []int{2, 0, 1} {
		tr := &Transition{Seq: uint64(i + 1), Time: time.Now(), From: states[i], To: states[i+1]}
		if err := j.SaveTransition(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	ts, err := j.Transitions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ts) != 3 {
		t.Fatalf("want 3 transitions, got %d", len(ts))
	}
	for i, tr := range ts {
		if tr.Seq != uint64(i+1) || tr.From != states[i] || tr.To != states[i+1] {
			t.Fatalf("want %s->%s at %d, got %+v", states[i], states[i+1], i+1, tr)
		}
	}
}
