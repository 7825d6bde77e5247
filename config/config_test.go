// Copyright (c) 2025 BVK Chaitanya

package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bvk/orbtrader/engine"
	"github.com/bvk/orbtrader/gex"
	"github.com/bvk/orbtrader/instrument"
	"github.com/bvk/orbtrader/order"
	"github.com/shopspring/decimal"
)

func TestLoad(t *testing.T) {
	c, err := Load("testdata/orbtrader.yaml")
	if err != nil {
		t.Fatal(err)
	}

	if c.Connection.ConnectTimeout != 15*time.Second || c.Connection.ClientID != 7 {
		t.Fatalf("unexpected connection section: %+v", c.Connection)
	}
	if u := c.Underlying(); u.Symbol != "SPX" || u.Kind != instrument.Index {
		t.Fatalf("want SPX index, got %v", u)
	}
	if level, _ := c.LogLevel(); level != slog.LevelDebug {
		t.Fatalf("want %v, got %v", slog.LevelDebug, level)
	}

	oopts := c.OrderOptions()
	if !oopts.TakeProfitPct.Equal(decimal.RequireFromString("0.5")) || !oopts.StopLossPct.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("want 0.5/0.2, got %s/%s", oopts.TakeProfitPct, oopts.StopLossPct)
	}
	if !oopts.ActivationPct.Equal(decimal.RequireFromString("0.1")) || oopts.TrailMode != order.TrailMilestone {
		t.Fatalf("unexpected trailing options: %s %s", oopts.ActivationPct, oopts.TrailMode)
	}
	if !oopts.Quantity.Equal(decimal.NewFromInt(2)) || oopts.Account != "DU1234567" {
		t.Fatalf("unexpected order options: %s %s", oopts.Quantity, oopts.Account)
	}

	gopts := c.GexOptions()
	if gopts.Provider != gex.ProviderGexbot || gopts.Gexbot.RequestsPerMinute != 30 || gopts.MinCoverage != 0.75 {
		t.Fatalf("unexpected gex options: %+v", gopts)
	}

	bopts, err := c.BreakoutOptions()
	if err != nil {
		t.Fatal(err)
	}
	if bopts.RangeDuration != 30*time.Minute || bopts.CandleSize != 5*time.Minute || !bopts.UseRTH {
		t.Fatalf("unexpected breakout options: %+v", bopts)
	}
	if bopts.Location.String() != "America/New_York" {
		t.Fatalf("want America/New_York, got %s", bopts.Location)
	}

	eopts := c.EngineOptions()
	if eopts.GexFailure != engine.AbortCycle || eopts.ManageInterval != 2*time.Second {
		t.Fatalf("unexpected engine options: %+v", eopts)
	}
	if exp := eopts.TargetExpiration(); len(exp) != 8 {
		t.Fatalf("want YYYYMMDD expiration, got %q", exp)
	}
}

const minimal = `
connection:
  endpoint: ws://127.0.0.1:4002/ws
instrument:
  ticker: SPY
gex:
  on_failure: direction-only
trade_management:
  take_profit_pct: 40
  stop_loss_pct: 25
`

func TestDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatal(err)
	}
	if c.Gex.Provider != gex.ProviderGateway || c.Gex.StrikesQuantity != 40 || c.Gex.OptionMultiplier != 100 {
		t.Fatalf("unexpected gex defaults: %+v", c.Gex)
	}
	if c.Instrument.ExchangeTimezone != "America/New_York" || c.OpeningRange.MarketOpenTime != "09:30" {
		t.Fatalf("unexpected defaults: %+v %+v", c.Instrument, c.OpeningRange)
	}
	if !*c.OpeningRange.UseRTH {
		t.Fatalf("want use_rth by default")
	}
	if u := c.Underlying(); u.Kind != instrument.Stock {
		t.Fatalf("want %v, got %v", instrument.Stock, u.Kind)
	}
	if c.TradeManagement.TrailingStop.Mode != order.TrailPrice {
		t.Fatalf("want %s, got %s", order.TrailPrice, c.TradeManagement.TrailingStop.Mode)
	}
}

func TestInvalid(t *testing.T) {
	testCases := []struct {
		name    string
		replace [2]string
	}{
		{"missing policy", [2]string{"on_failure: direction-only", "min_coverage: 0.5"}},
		{"unknown policy", [2]string{"direction-only", "retry"}},
		{"no endpoint", [2]string{"endpoint: ws://127.0.0.1:4002/ws", "endpoint: ''"}},
		{"no take profit", [2]string{"take_profit_pct: 40", "take_profit_pct: 0"}},
		{"stop loss too large", [2]string{"stop_loss_pct: 25", "stop_loss_pct: 100"}},
		{"unknown field", [2]string{"ticker: SPY", "ticker: SPY\nunknown: 1"}},
	}
	for _, tc := range testCases {
		data := strings.Replace(minimal, tc.replace[0], tc.replace[1], 1)
		if data == minimal {
			t.Fatalf("%s: test case does not modify the config", tc.name)
		}
		if _, err := Parse([]byte(data)); err == nil {
			t.Fatalf("%s: want an error, got nil", tc.name)
		}
	}

	if _, err := Parse([]byte(strings.Replace(minimal, "gex:\n", "gex:\n  provider: gexbot\n", 1))); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid for gexbot without a key, got %v", err)
	}
}
