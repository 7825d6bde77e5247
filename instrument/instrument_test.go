// Copyright (c) 2025 BVK Chaitanya

package instrument

import (
	"errors"
	"os"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTickRounding(t *testing.T) {
	type testCase struct {
		symbol  string
		price   string
		minTick string
		down    string
		nearest string
	}
	cases := []testCase{
		{"SPX", "1.63", "0", "1.60", "1.65"},
		{"SPX", "2.975", "0", "2.95", "3.00"},
		{"SPX", "3.17", "0", "3.10", "3.20"},
		{"SPX", "4.25", "0", "4.20", "4.20"},
		{"SPY", "1.234", "0", "1.23", "1.23"},
		{"SPY", "1.234", "0.05", "1.20", "1.25"},
	}
	for _, c := range cases {
		tick := TickSize(c.symbol, d(c.price), d(c.minTick))
		if got := RoundDown(d(c.price), tick); !got.Equal(d(c.down)) {
			t.Fatalf("%s %s: want round-down %s, got %s", c.symbol, c.price, c.down, got)
		}
		if got := RoundNearest(d(c.price), tick); !got.Equal(d(c.nearest)) {
			t.Fatalf("%s %s: want round-nearest %s, got %s", c.symbol, c.price, c.nearest, got)
		}
	}
}

func TestContractCheck(t *testing.T) {
	good := Contract{
		Symbol:     "SPX",
		Kind:       Option,
		Exchange:   "SMART",
		Currency:   "USD",
		Expiration: "20250117",
		Strike:     d("5000"),
		Right:      Call,
		Multiplier: 100,
	}
	if err := good.Check(); err != nil {
		t.Fatal(err)
	}
	if want, got := "SPX 20250117 5000 C", good.String(); want != got {
		t.Fatalf("want %q, got %q", want, got)
	}

	bad := good
	bad.Expiration = "2025-01-17"
	if err := bad.Check(); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid for bad expiration, got %v", err)
	}
	bad = good
	bad.Right = "X"
	if err := bad.Check(); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid for bad right, got %v", err)
	}

	if k := UnderlyingKind("spx"); k != Index {
		t.Fatalf("want index kind for spx, got %s", k)
	}
	if k := UnderlyingKind("AAPL"); k != Stock {
		t.Fatalf("want stock kind for AAPL, got %s", k)
	}
}
