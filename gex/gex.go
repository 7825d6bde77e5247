// Copyright (c) 2025 BVK Chaitanya

// Package gex estimates the strike with the largest gamma exposure of an
// underlying's option chain. Three providers are supported: the gexbot
// distribution API, a scan over the gateway's option snapshots and the
// massive options chain API.
package gex

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/bvk/orbtrader/fetcher"
	"github.com/bvk/orbtrader/gateway"
	"github.com/bvk/orbtrader/instrument"
	"github.com/bvk/orbtrader/marketdata"
	"github.com/bvk/orbtrader/metrics"
	"github.com/shopspring/decimal"
)

const (
	ProviderGexbot  = "gexbot"
	ProviderGateway = "gateway"
	ProviderMassive = "massive"
)

// Result is the strike with the largest gamma exposure.
type Result struct {
	Strike decimal.Decimal

	// Expiration is the option expiration in YYYYMMDD format.
	Expiration string

	Exposure decimal.Decimal
	Source   string
}

type Provider interface {
	Name() string
	Estimate(ctx context.Context, symbol string) (*Result, error)
}

// MarketData is the subset of the market data client used by the gateway
// provider.
type MarketData interface {
	Resolve(ctx context.Context, c instrument.Contract) (*gateway.ContractDetails, error)
	Quote(ctx context.Context, c instrument.Contract) (decimal.Decimal, error)
	Chain(ctx context.Context, symbol string, conID int64) (*marketdata.Chain, error)
	Snapshots(ctx context.Context, contracts []instrument.Contract, genericTicks string) (map[string]gateway.Snapshot, fetcher.Results, error)
}

type RESTOptions struct {
	BaseURL string
	APIKey  string

	RequestsPerMinute int
}

type Options struct {
	Provider string

	DaysToExpiration int
	StrikesQuantity  int
	OptionMultiplier int

	// MinCoverage is the minimum fraction of option snapshots the gateway
	// provider needs.
	MinCoverage float64

	// Exchange and Currency are used for the gateway provider contracts.
	Exchange string
	Currency string

	Gexbot  RESTOptions
	Massive RESTOptions

	HTTPTimeout time.Duration
	HTTPRetries int

	// Location is the exchange timezone used to compute expirations.
	Location *time.Location

	Now func() time.Time
}

func (v *Options) setDefaults() {
	if v.StrikesQuantity == 0 {
		v.StrikesQuantity = 40
	}
	if v.OptionMultiplier == 0 {
		v.OptionMultiplier = 100
	}
	if v.MinCoverage == 0 {
		v.MinCoverage = 0.8
	}
	if v.Currency == "" {
		v.Currency = "USD"
	}
	if v.Exchange == "" {
		v.Exchange = "SMART"
	}
	if v.HTTPTimeout == 0 {
		v.HTTPTimeout = 10 * time.Second
	}
	if v.HTTPRetries == 0 {
		v.HTTPRetries = 3
	}
	if v.Location == nil {
		v.Location = time.UTC
	}
	if v.Now == nil {
		v.Now = time.Now
	}
}

func (v *Options) Check() error {
	if v.DaysToExpiration < 0 {
		return fmt.Errorf("days to expiration cannot be negative: %w", os.ErrInvalid)
	}
	if v.StrikesQuantity < 1 {
		return fmt.Errorf("strikes quantity must be positive: %w", os.ErrInvalid)
	}
	if v.MinCoverage < 0 || v.MinCoverage > 1 {
		return fmt.Errorf("min coverage must be within [0, 1]: %w", os.ErrInvalid)
	}
	switch v.Provider {
	case ProviderGexbot:
		if v.Gexbot.BaseURL == "" || v.Gexbot.APIKey == "" {
			return fmt.Errorf("gexbot provider needs base url and api key: %w", os.ErrInvalid)
		}
	case ProviderMassive:
		if v.Massive.BaseURL == "" || v.Massive.APIKey == "" {
			return fmt.Errorf("massive provider needs base url and api key: %w", os.ErrInvalid)
		}
	case ProviderGateway:
	default:
		return fmt.Errorf("unknown gex provider %q: %w", v.Provider, os.ErrInvalid)
	}
	return nil
}

// targetDate returns the date DaysToExpiration days after today in the
// exchange timezone.
func (v *Options) targetDate() time.Time {
	now := v.Now().In(v.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, v.Location)
	return today.AddDate(0, 0, v.DaysToExpiration)
}

// TargetExpiration returns the expiration DaysToExpiration days after today
// in YYYYMMDD format.
func (v *Options) TargetExpiration() string {
	return v.targetDate().Format(instrument.ExpirationLayout)
}

// New creates the configured provider. The market data client is used only by
// the gateway provider and can be nil for the others.
func New(opts *Options, md MarketData) (Provider, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}

	var p Provider
	switch opts.Provider {
	case ProviderGexbot:
		p = newGexbot(opts)
	case ProviderMassive:
		p = newMassive(opts)
	default:
		if md == nil {
			return nil, fmt.Errorf("gateway provider needs a market data client: %w", os.ErrInvalid)
		}
		p = newScanner(opts, md)
	}
	return measured{p}, nil
}

// measured records the outcome of every estimate.
type measured struct {
	Provider
}

func (m measured) Estimate(ctx context.Context, symbol string) (*Result, error) {
	r, err := m.Provider.Estimate(ctx, symbol)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.GexEstimates.WithLabelValues(m.Name(), outcome).Inc()
	return r, err
}

// maxExposure returns the strike with the largest exposure. Ties go to the
// lower strike.
func maxExposure(byStrike map[string]decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if len(byStrike) == 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("no gamma exposure data: %w", os.ErrNotExist)
	}

	strikes := make([]decimal.Decimal, 0, len(byStrike))
	for k := range byStrike {
		strikes = append(strikes, decimal.RequireFromString(k))
	}
	slices.SortFunc(strikes, decimal.Decimal.Cmp)

	best, bestValue := strikes[0], byStrike[strikes[0].String()]
	for _, s := range strikes[1:] {
		if v := byStrike[s.String()]; v.GreaterThan(bestValue) {
			best, bestValue = s, v
		}
	}
	return best, bestValue, nil
}

// accumulate adds an exposure to a strike; decimal values are keyed by their
// canonical string.
func accumulate(byStrike map[string]decimal.Decimal, strike, exposure decimal.Decimal) {
	key := strike.String()
	byStrike[key] = byStrike[key].Add(exposure)
}
