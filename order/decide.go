// Copyright (c) 2025 BVK Chaitanya

package order

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bvk/orbtrader/breakout"
	"github.com/bvk/orbtrader/gex"
	"github.com/bvk/orbtrader/instrument"
	"github.com/shopspring/decimal"
)

// Decide picks the option right from the gamma exposure strike relative to
// spot: a strike above spot buys calls and a strike below spot buys puts. The
// breakout direction only gates the cycle. No trade is taken when the gamma
// exposure is unknown or when the strike equals spot.
func Decide(dir breakout.Direction, spot decimal.Decimal, g *gex.Result) (instrument.Right, bool) {
	if g == nil {
		return "", false
	}
	switch g.Strike.Cmp(spot) {
	case 1:
		slog.Info("gamma strike is above spot", "direction", dir, "spot", spot, "strike", g.Strike, "right", instrument.Call)
		return instrument.Call, true
	case -1:
		slog.Info("gamma strike is below spot", "direction", dir, "spot", spot, "strike", g.Strike, "right", instrument.Put)
		return instrument.Put, true
	}
	slog.Info("gamma strike is at spot (no trade)", "direction", dir, "spot", spot, "strike", g.Strike)
	return "", false
}

// DirectionRight returns the right used when gamma exposure is unavailable
// and trades follow the breakout direction alone.
func DirectionRight(dir breakout.Direction) instrument.Right {
	if dir == breakout.Sell {
		return instrument.Put
	}
	return instrument.Call
}

// ResolveATMStrike returns the strike nearest to spot. When spot is halfway
// between two strikes the higher strike is returned.
func ResolveATMStrike(spot decimal.Decimal, strikes []decimal.Decimal) (decimal.Decimal, error) {
	if len(strikes) == 0 {
		return decimal.Zero, fmt.Errorf("strike list is empty: %w", os.ErrInvalid)
	}
	best := strikes[0]
	bestDist := best.Sub(spot).Abs()
	for _, s := range strikes[1:] {
		dist := s.Sub(spot).Abs()
		switch dist.Cmp(bestDist) {
		case -1:
			best, bestDist = s, dist
		case 0:
			if s.GreaterThan(best) {
				best = s
			}
		}
	}
	return best, nil
}

// BuildContract returns the option contract for a trade.
func BuildContract(symbol, exchange, currency, expiration string, strike decimal.Decimal, right instrument.Right, multiplier int) (instrument.Contract, error) {
	c := instrument.Contract{
		Symbol:     strings.ToUpper(symbol),
		Kind:       instrument.Option,
		Exchange:   exchange,
		Currency:   currency,
		Expiration: expiration,
		Strike:     strike,
		Right:      right,
		Multiplier: multiplier,
	}
	if err := c.Check(); err != nil {
		return instrument.Contract{}, fmt.Errorf("could not build option contract: %w", err)
	}
	return c, nil
}
