// Copyright (c) 2025 BVK Chaitanya

// Package marketdata answers typed market data questions (contract details,
// option chains, quotes and greeks) over a gateway session. Batched
// snapshots go through the fetch coordinator.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/bvk/orbtrader/correlator"
	"github.com/bvk/orbtrader/fetcher"
	"github.com/bvk/orbtrader/gateway"
	"github.com/bvk/orbtrader/instrument"
	"github.com/shopspring/decimal"
)

// Gateway is the subset of the gateway session used for market data.
type Gateway interface {
	fetcher.Starter

	ContractDetails(ctx context.Context, c instrument.Contract, timeout time.Duration) ([]*gateway.ContractDetails, error)
	OptionChainParams(ctx context.Context, p *gateway.ChainParamsRequest, timeout time.Duration) ([]*gateway.ChainParams, error)
}

type Options struct {
	// RequestTimeout bounds every single request attempt.
	RequestTimeout time.Duration

	// BatchTimeout bounds a whole snapshot batch.
	BatchTimeout time.Duration

	// ChainExchange selects the option chain entries to use. Entries from all
	// exchanges are merged when no entry matches.
	ChainExchange string
}

func (v *Options) setDefaults() {
	if v.RequestTimeout == 0 {
		v.RequestTimeout = 5 * time.Second
	}
	if v.BatchTimeout == 0 {
		v.BatchTimeout = 20 * time.Second
	}
	if v.ChainExchange == "" {
		v.ChainExchange = "SMART"
	}
}

type Client struct {
	gw      Gateway
	fetcher *fetcher.Coordinator
	opts    Options
}

func New(gw Gateway, fc *fetcher.Coordinator, opts *Options) *Client {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	return &Client{gw: gw, fetcher: fc, opts: *opts}
}

// Resolve returns the venue details of a contract. It is an error if the
// contract is ambiguous or unknown.
func (c *Client) Resolve(ctx context.Context, contract instrument.Contract) (*gateway.ContractDetails, error) {
	details, err := c.gw.ContractDetails(ctx, contract, c.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, fmt.Errorf("contract %s is not known to the venue: %w", contract, os.ErrNotExist)
	}
	if len(details) > 1 {
		slog.Warn("contract resolved to multiple venue contracts (using the first)", "contract", contract, "count", len(details))
	}
	return details[0], nil
}

// Chain is the merged option chain of an underlying.
type Chain struct {
	Expirations []string
	Strikes     []decimal.Decimal
	Multiplier  int
}

// Chain returns the option expirations and strikes of an underlying.
func (c *Client) Chain(ctx context.Context, symbol string, conID int64) (*Chain, error) {
	req := &gateway.ChainParamsRequest{
		Symbol:          symbol,
		UnderlyingKind:  instrument.UnderlyingKind(symbol),
		UnderlyingConID: conID,
	}
	params, err := c.gw.OptionChainParams(ctx, req, c.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("no option chain for %s: %w", symbol, os.ErrNotExist)
	}

	selected := slices.DeleteFunc(slices.Clone(params), func(p *gateway.ChainParams) bool {
		return !strings.EqualFold(p.Exchange, c.opts.ChainExchange)
	})
	if len(selected) == 0 {
		selected = params
	}

	chain := new(Chain)
	for _, p := range selected {
		chain.Expirations = append(chain.Expirations, p.Expirations...)
		chain.Strikes = append(chain.Strikes, p.Strikes...)
		if chain.Multiplier == 0 {
			fmt.Sscan(p.Multiplier, &chain.Multiplier)
		}
	}
	slices.Sort(chain.Expirations)
	chain.Expirations = slices.Compact(chain.Expirations)
	slices.SortFunc(chain.Strikes, decimal.Decimal.Cmp)
	chain.Strikes = slices.CompactFunc(chain.Strikes, decimal.Decimal.Equal)
	return chain, nil
}

// Snapshots fetches market data snapshots for the contracts concurrently. The
// snapshots map is keyed by the contract string and has entries only for
// the successful requests; the results report every request.
func (c *Client) Snapshots(ctx context.Context, contracts []instrument.Contract, genericTicks string) (map[string]gateway.Snapshot, fetcher.Results, error) {
	reqs := make([]*fetcher.Request, 0, len(contracts))
	for _, contract := range contracts {
		reqs = append(reqs, &fetcher.Request{
			Key:    contract.String(),
			Method: gateway.MethodMarketSnapshot,
			Params: &gateway.SnapshotParams{Contract: contract, GenericTicks: genericTicks},
			Shape:  correlator.Sequence,
		})
	}
	results, err := c.fetcher.FetchAll(ctx, reqs, c.opts.RequestTimeout, c.opts.BatchTimeout)
	if err != nil {
		return nil, nil, err
	}

	snapshots := make(map[string]gateway.Snapshot, len(results))
	for key, r := range results {
		if r.Err != nil {
			continue
		}
		snap, err := gateway.DecodeSnapshot(r.Data)
		if err != nil {
			r.Err = err
			continue
		}
		snapshots[key] = snap
	}
	return snapshots, results, nil
}

// PickPrice returns the first positive price among ask, last and close.
func PickPrice(s gateway.Snapshot) (decimal.Decimal, bool) {
	for _, field := range []string{gateway.FieldAsk, gateway.FieldLast, gateway.FieldClose} {
		if v, ok := s.Get(field); ok && v.IsPositive() {
			return v, true
		}
	}
	return decimal.Zero, false
}

// Quote returns the current price of a contract, falling back from ask to
// last to close.
func (c *Client) Quote(ctx context.Context, contract instrument.Contract) (decimal.Decimal, error) {
	snapshots, results, err := c.Snapshots(ctx, []instrument.Contract{contract}, "")
	if err != nil {
		return decimal.Zero, err
	}
	key := contract.String()
	if r := results[key]; r.Err != nil {
		return decimal.Zero, fmt.Errorf("could not get quote for %s: %w", contract, r.Err)
	}
	price, ok := PickPrice(snapshots[key])
	if !ok {
		return decimal.Zero, fmt.Errorf("no usable price for %s: %w", contract, os.ErrNotExist)
	}
	return price, nil
}
