// Copyright (c) 2025 BVK Chaitanya

package order

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/bvk/orbtrader/breakout"
	"github.com/bvk/orbtrader/gateway"
	"github.com/bvk/orbtrader/gex"
	"github.com/bvk/orbtrader/instrument"
	"github.com/bvk/orbtrader/marketdata"
	"github.com/shopspring/decimal"
)

// MarketData is the subset of the market data client used to price a trade.
type MarketData interface {
	Resolve(ctx context.Context, c instrument.Contract) (*gateway.ContractDetails, error)
	Chain(ctx context.Context, symbol string, conID int64) (*marketdata.Chain, error)
	Quote(ctx context.Context, c instrument.Contract) (decimal.Decimal, error)
}

// Plan is the option selected for a signal.
type Plan struct {
	Signal     *breakout.Signal
	Right      instrument.Right
	Expiration string
}

// NewPlan applies the trade decision to a signal. Returns false when no trade
// should be taken.
func NewPlan(sig *breakout.Signal, g *gex.Result) (*Plan, bool) {
	right, ok := Decide(sig.Direction, sig.Spot, g)
	if !ok {
		return nil, false
	}
	return &Plan{Signal: sig, Right: right, Expiration: g.Expiration}, true
}

// DirectionPlan returns a plan that follows the breakout direction alone.
func DirectionPlan(sig *breakout.Signal, expiration string) *Plan {
	return &Plan{Signal: sig, Right: DirectionRight(sig.Direction), Expiration: expiration}
}

// Underlying identifies the underlying traded by Execute.
type Underlying struct {
	Symbol   string
	Exchange string
	Currency string

	// Multiplier is used when the option chain does not report one.
	Multiplier int
}

// nearestListed returns the requested expiration if it is listed, or else the
// first listed expiration after it.
func nearestListed(expirations []string, want string) (string, error) {
	if slices.Contains(expirations, want) {
		return want, nil
	}
	sorted := slices.Clone(expirations)
	slices.Sort(sorted)
	for _, e := range sorted {
		if e > want {
			slog.Warn("requested expiration is not listed (using the next one)", "want", want, "using", e)
			return e, nil
		}
	}
	return "", fmt.Errorf("no option expiration on or after %s: %w", want, os.ErrNotExist)
}

// Execute selects the at-the-money option for the plan, prices it and submits
// a bracket for it.
func (m *Manager) Execute(ctx context.Context, u *Underlying, plan *Plan, md MarketData) (*Group, error) {
	spot := plan.Signal.Spot

	details, err := md.Resolve(ctx, instrument.Underlying(u.Symbol, u.Exchange, u.Currency))
	if err != nil {
		return nil, fmt.Errorf("could not resolve underlying %s: %w", u.Symbol, err)
	}
	chain, err := md.Chain(ctx, u.Symbol, details.ConID)
	if err != nil {
		return nil, err
	}
	expiration, err := nearestListed(chain.Expirations, plan.Expiration)
	if err != nil {
		return nil, err
	}
	strike, err := ResolveATMStrike(spot, chain.Strikes)
	if err != nil {
		return nil, err
	}

	multiplier := u.Multiplier
	if chain.Multiplier > 0 {
		multiplier = chain.Multiplier
	}
	contract, err := BuildContract(u.Symbol, u.Exchange, u.Currency, expiration, strike, plan.Right, multiplier)
	if err != nil {
		return nil, err
	}

	optDetails, err := md.Resolve(ctx, contract)
	if err != nil {
		return nil, fmt.Errorf("could not resolve option %s: %w", contract, err)
	}
	contract = contract.WithConID(optDetails.ConID)

	price, err := md.Quote(ctx, contract)
	if err != nil {
		return nil, err
	}
	entry := instrument.RoundNearest(price, m.tick(u.Symbol, price, optDetails.MinTick))
	if !entry.IsPositive() {
		return nil, fmt.Errorf("entry price %s for %s rounds to zero: %w", price, contract, os.ErrInvalid)
	}

	slog.Info("executing trade", "direction", plan.Signal.Direction, "spot", spot, "contract", contract, "quote", price, "entry", entry)
	return m.SubmitOpening(ctx, contract, entry, optDetails.MinTick)
}
