// Copyright (c) 2025 BVK Chaitanya

package gex

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/shopspring/decimal"
)

type gexbotStrike struct {
	Strike     decimal.Decimal `json:"strike"`
	LongGamma  decimal.Decimal `json:"long_gamma"`
	ShortGamma decimal.Decimal `json:"short_gamma"`
}

type gexbotResponse struct {
	Success bool            `json:"success"`
	Data    []*gexbotStrike `json:"data"`
}

type gexbot struct {
	opts *Options
	rest *restClient
}

func newGexbot(opts *Options) *gexbot {
	return &gexbot{
		opts: opts,
		rest: newRESTClient(opts.Gexbot.RequestsPerMinute, opts.HTTPTimeout, opts.HTTPRetries),
	}
}

func (g *gexbot) Name() string {
	return ProviderGexbot
}

func (g *gexbot) Estimate(ctx context.Context, symbol string) (*Result, error) {
	expiry := g.opts.targetDate()

	u, err := url.Parse(g.opts.Gexbot.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not parse gexbot base url: %w", err)
	}
	u = u.JoinPath("gex", "distribution")
	q := u.Query()
	q.Set("ticker", symbol)
	q.Set("exp", expiry.Format("2006-01-02"))
	q.Set("api_key", g.opts.Gexbot.APIKey)
	u.RawQuery = q.Encode()

	resp := new(gexbotResponse)
	if err := g.rest.getJSON(ctx, u, nil, resp); err != nil {
		return nil, fmt.Errorf("could not fetch gex distribution for %s: %w", symbol, err)
	}
	if !resp.Success || len(resp.Data) == 0 {
		return nil, fmt.Errorf("gexbot returned no data for %s on %s: %w", symbol, expiry.Format("2006-01-02"), os.ErrNotExist)
	}

	byStrike := make(map[string]decimal.Decimal)
	for _, d := range resp.Data {
		accumulate(byStrike, d.Strike, d.ShortGamma.Abs().Add(d.LongGamma.Abs()))
	}
	strike, exposure, err := maxExposure(byStrike)
	if err != nil {
		return nil, err
	}
	slog.Info("found max gamma strike", "provider", g.Name(), "strike", strike, "exposure", exposure)
	return &Result{
		Strike:     strike,
		Expiration: g.opts.TargetExpiration(),
		Exposure:   exposure,
		Source:     g.Name(),
	}, nil
}
