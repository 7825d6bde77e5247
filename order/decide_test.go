// Copyright (c) 2025 BVK Chaitanya

package order

import (
	"errors"
	"os"
	"testing"

	"github.com/bvk/orbtrader/breakout"
	"github.com/bvk/orbtrader/gex"
	"github.com/bvk/orbtrader/instrument"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDecide(t *testing.T) {
	type testCase struct {
		dir    breakout.Direction
		strike string
		spot   string
		want   instrument.Right
		ok     bool
	}
	cases := []testCase{
		{breakout.Buy, "110", "100", instrument.Call, true},
		{breakout.Buy, "90", "100", instrument.Put, true},
		{breakout.Sell, "90", "100", instrument.Put, true},
		{breakout.Sell, "110", "100", instrument.Call, true},
		{breakout.Buy, "100", "100", "", false},
		{breakout.Sell, "100.00", "100", "", false},
	}
	for i, c := range cases {
		right, ok := Decide(c.dir, dec(c.spot), &gex.Result{Strike: dec(c.strike)})
		if ok != c.ok || right != c.want {
			t.Fatalf("%d: want %v/%v, got %v/%v", i, c.want, c.ok, right, ok)
		}
	}

	if _, ok := Decide(breakout.Buy, dec("100"), nil); ok {
		t.Fatalf("want no decision without gamma exposure")
	}
}

func TestDirectionRight(t *testing.T) {
	if r := DirectionRight(breakout.Buy); r != instrument.Call {
		t.Fatalf("want %v, got %v", instrument.Call, r)
	}
	if r := DirectionRight(breakout.Sell); r != instrument.Put {
		t.Fatalf("want %v, got %v", instrument.Put, r)
	}
}

func TestResolveATMStrike(t *testing.T) {
	strikes := []decimal.Decimal{dec("95"), dec("100"), dec("105"), dec("110")}

	if s, err := ResolveATMStrike(dec("101.3"), strikes); err != nil || !s.Equal(dec("100")) {
		t.Fatalf("want 100, got %s (%v)", s, err)
	}
	if s, err := ResolveATMStrike(dec("102.5"), strikes); err != nil || !s.Equal(dec("105")) {
		t.Fatalf("want 105, got %s (%v)", s, err)
	}
	// Order of the strikes does not matter for ties.
	reversed := []decimal.Decimal{dec("110"), dec("105"), dec("100"), dec("95")}
	if s, err := ResolveATMStrike(dec("102.5"), reversed); err != nil || !s.Equal(dec("105")) {
		t.Fatalf("want 105, got %s (%v)", s, err)
	}
	if s, _ := ResolveATMStrike(dec("500"), strikes); !s.Equal(dec("110")) {
		t.Fatalf("want 110, got %s", s)
	}
	if _, err := ResolveATMStrike(dec("100"), nil); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid, got %v", err)
	}
}

func TestBuildContract(t *testing.T) {
	c, err := BuildContract("spx", "SMART", "USD", "20260121", dec("5000"), instrument.Call, 100)
	if err != nil {
		t.Fatal(err)
	}
	if c.Symbol != "SPX" || c.Kind != instrument.Option || c.String() != "SPX 20260121 5000 C" {
		t.Fatalf("unexpected contract %v", c)
	}
	if _, err := BuildContract("SPX", "SMART", "USD", "2026-01-21", dec("5000"), instrument.Call, 100); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid for bad expiration, got %v", err)
	}
	if _, err := BuildContract("SPX", "SMART", "USD", "20260121", dec("5000"), "X", 100); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid for bad right, got %v", err)
	}
}
