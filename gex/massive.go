// Copyright (c) 2025 BVK Chaitanya

package gex

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type massiveGreeks struct {
	Gamma *decimal.Decimal `json:"gamma"`
}

type massiveOption struct {
	Strike       decimal.Decimal `json:"strike"`
	Type         string          `json:"type"`
	OpenInterest *int64          `json:"openInterest"`
	Greeks       *massiveGreeks  `json:"greeks"`
}

type massiveResponse struct {
	Expiration string           `json:"expiration"`
	Options    []*massiveOption `json:"options"`
}

type massive struct {
	opts *Options
	rest *restClient
}

func newMassive(opts *Options) *massive {
	return &massive{
		opts: opts,
		rest: newRESTClient(opts.Massive.RequestsPerMinute, opts.HTTPTimeout, opts.HTTPRetries),
	}
}

func (m *massive) Name() string {
	return ProviderMassive
}

func (m *massive) Estimate(ctx context.Context, symbol string) (*Result, error) {
	u, err := url.Parse(m.opts.Massive.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not parse massive base url: %w", err)
	}
	u = u.JoinPath("options", "chain")
	q := u.Query()
	q.Set("ticker", symbol)
	q.Set("days_to_expiration", strconv.Itoa(m.opts.DaysToExpiration))
	q.Set("strikes_quantity", strconv.Itoa(m.opts.StrikesQuantity))
	q.Set("fields", "greeks,openInterest")
	u.RawQuery = q.Encode()

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+m.opts.Massive.APIKey)

	resp := new(massiveResponse)
	if err := m.rest.getJSON(ctx, u, header, resp); err != nil {
		return nil, fmt.Errorf("could not fetch option chain for %s: %w", symbol, err)
	}

	multiplier := decimal.NewFromInt(int64(m.opts.OptionMultiplier))
	byStrike := make(map[string]decimal.Decimal)
	for _, o := range resp.Options {
		if o.Greeks == nil || o.Greeks.Gamma == nil || o.OpenInterest == nil {
			continue
		}
		exposure := o.Greeks.Gamma.Mul(decimal.NewFromInt(*o.OpenInterest)).Mul(multiplier)
		accumulate(byStrike, o.Strike, exposure)
	}
	strike, exposure, err := maxExposure(byStrike)
	if err != nil {
		return nil, fmt.Errorf("could not estimate gamma exposure for %s: %w", symbol, err)
	}

	expiration := strings.ReplaceAll(resp.Expiration, "-", "")
	if expiration == "" {
		expiration = m.opts.TargetExpiration()
	}
	slog.Info("found max gamma strike", "provider", m.Name(), "strike", strike, "exposure", exposure, "expiration", expiration)
	return &Result{
		Strike:     strike,
		Expiration: expiration,
		Exposure:   exposure,
		Source:     m.Name(),
	}, nil
}
