// Copyright (c) 2025 BVK Chaitanya

package gex

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bvk/orbtrader/gateway"
	"github.com/bvk/orbtrader/instrument"
	"github.com/shopspring/decimal"
)

// scanner computes the gamma exposure from gateway option snapshots.
type scanner struct {
	opts *Options
	md   MarketData
}

func newScanner(opts *Options, md MarketData) *scanner {
	return &scanner{opts: opts, md: md}
}

func (s *scanner) Name() string {
	return ProviderGateway
}

// nearestExpiration returns the expiration closest to the target date. Ties
// go to the earlier expiration.
func nearestExpiration(expirations []string, target time.Time) (string, error) {
	best, bestDelta := "", time.Duration(-1)
	for _, e := range expirations {
		t, err := time.ParseInLocation(instrument.ExpirationLayout, e, target.Location())
		if err != nil {
			slog.Warn("ignoring malformed option expiration", "expiration", e)
			continue
		}
		delta := t.Sub(target)
		if delta < 0 {
			delta = -delta
		}
		if bestDelta < 0 || delta < bestDelta {
			best, bestDelta = e, delta
		}
	}
	if best == "" {
		return "", fmt.Errorf("no usable option expiration: %w", os.ErrNotExist)
	}
	return best, nil
}

// strikeWindow returns up to n sorted strikes starting n/2 strikes below the
// strike closest to spot.
func strikeWindow(strikes []decimal.Decimal, spot decimal.Decimal, n int) []decimal.Decimal {
	if len(strikes) == 0 {
		return nil
	}
	closest := 0
	for i, s := range strikes {
		if s.Sub(spot).Abs().LessThan(strikes[closest].Sub(spot).Abs()) {
			closest = i
		}
	}
	start := max(0, closest-n/2)
	end := min(len(strikes), start+n)
	return strikes[start:end]
}

func (s *scanner) Estimate(ctx context.Context, symbol string) (*Result, error) {
	underlying := instrument.Underlying(symbol, s.opts.Exchange, s.opts.Currency)
	details, err := s.md.Resolve(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("could not resolve underlying %s: %w", symbol, err)
	}
	spot, err := s.md.Quote(ctx, underlying.WithConID(details.ConID))
	if err != nil {
		return nil, fmt.Errorf("could not fetch underlying price for %s: %w", symbol, err)
	}

	chain, err := s.md.Chain(ctx, symbol, details.ConID)
	if err != nil {
		return nil, err
	}
	expiration, err := nearestExpiration(chain.Expirations, s.opts.targetDate())
	if err != nil {
		return nil, err
	}
	strikes := strikeWindow(chain.Strikes, spot, s.opts.StrikesQuantity)
	slog.Info("scanning option chain for gamma exposure", "symbol", symbol, "spot", spot, "expiration", expiration, "strikes", len(strikes))

	multiplier := s.opts.OptionMultiplier
	if chain.Multiplier > 0 {
		multiplier = chain.Multiplier
	}

	var contracts []instrument.Contract
	for _, strike := range strikes {
		for _, right := range []instrument.Right{instrument.Call, instrument.Put} {
			contracts = append(contracts, instrument.Contract{
				Symbol:     underlying.Symbol,
				Kind:       instrument.Option,
				Exchange:   s.opts.Exchange,
				Currency:   s.opts.Currency,
				Expiration: expiration,
				Strike:     strike,
				Right:      right,
				Multiplier: multiplier,
			})
		}
	}

	snapshots, results, err := s.md.Snapshots(ctx, contracts, "101,104")
	if err != nil {
		return nil, err
	}
	if err := results.Require(s.opts.MinCoverage); err != nil {
		slog.Warn("option snapshot coverage is too low", "failed", results.Failed())
		return nil, err
	}

	m := decimal.NewFromInt(int64(multiplier))
	byStrike := make(map[string]decimal.Decimal)
	for _, c := range contracts {
		snap, ok := snapshots[c.String()]
		if !ok {
			continue
		}
		exposure, ok := contractExposure(snap, c.Right)
		if !ok {
			slog.Debug("skipping contract with missing greeks or open interest", "contract", c)
			continue
		}
		accumulate(byStrike, c.Strike, exposure.Mul(m))
	}

	strike, exposure, err := maxExposure(byStrike)
	if err != nil {
		return nil, fmt.Errorf("could not estimate gamma exposure for %s: %w", symbol, err)
	}
	slog.Info("found max gamma strike", "provider", s.Name(), "strike", strike, "exposure", exposure)
	return &Result{
		Strike:     strike,
		Expiration: expiration,
		Exposure:   exposure,
		Source:     s.Name(),
	}, nil
}

// contractExposure returns gamma times open interest for a snapshot. Missing
// or negative values make the contract unusable.
func contractExposure(snap gateway.Snapshot, right instrument.Right) (decimal.Decimal, bool) {
	gamma, ok := snap.Get(gateway.FieldGamma)
	if !ok || gamma.IsNegative() {
		return decimal.Zero, false
	}
	field := gateway.FieldCallOpenInterest
	if right == instrument.Put {
		field = gateway.FieldPutOpenInterest
	}
	oi, ok := snap.Get(field)
	if !ok || oi.IsNegative() {
		return decimal.Zero, false
	}
	return gamma.Mul(oi), true
}
