// Copyright (c) 2025 BVK Chaitanya

package breakout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bvk/orbtrader/ctxutil"
	"github.com/bvk/orbtrader/errs"
	"github.com/bvk/orbtrader/gateway"
	"github.com/bvk/orbtrader/instrument"
)

// Bars is a real-time bars subscription.
type Bars interface {
	Next(ctx context.Context) (*gateway.Bar, error)
	Close()
}

// BarSource is the subset of the gateway used by the signal source.
type BarSource interface {
	HistoricalBars(ctx context.Context, p *gateway.HistoricalBarsParams, timeout time.Duration) ([]*gateway.Bar, error)
	RealtimeBars(ctx context.Context, p *gateway.RealtimeBarsParams) (Bars, error)
}

type sessionBars struct {
	*gateway.Session
}

func (s sessionBars) RealtimeBars(ctx context.Context, p *gateway.RealtimeBarsParams) (Bars, error) {
	bs, err := s.SubscribeRealtimeBars(ctx, p)
	if err != nil {
		return nil, err
	}
	return bs, nil
}

// FromSession adapts a gateway session into a bar source.
func FromSession(s *gateway.Session) BarSource {
	return sessionBars{s}
}

type Options struct {
	Contract instrument.Contract

	// Location is the exchange timezone.
	Location *time.Location

	// MarketOpen is the HH:MM market open time in the exchange timezone.
	MarketOpen string

	RangeDuration time.Duration

	// WaitBuffer delays the opening range request past the window end, so the
	// last bar is final.
	WaitBuffer time.Duration

	// BarSize is the historical bar size in the gateway syntax.
	BarSize string

	HistoricalTimeout time.Duration
	HistoricalRetries int

	UseRTH bool

	// CandleSize is the size of the breakout candles.
	CandleSize time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (v *Options) setDefaults() {
	if v.Location == nil {
		v.Location = time.UTC
	}
	if v.MarketOpen == "" {
		v.MarketOpen = "09:30"
	}
	if v.RangeDuration == 0 {
		v.RangeDuration = 30 * time.Minute
	}
	if v.WaitBuffer == 0 {
		v.WaitBuffer = 5 * time.Second
	}
	if v.BarSize == "" {
		v.BarSize = "1 min"
	}
	if v.HistoricalTimeout == 0 {
		v.HistoricalTimeout = 30 * time.Second
	}
	if v.HistoricalRetries == 0 {
		v.HistoricalRetries = 2
	}
	if v.CandleSize == 0 {
		v.CandleSize = 5 * time.Minute
	}
	if v.Now == nil {
		v.Now = time.Now
	}
}

func (v *Options) Check() error {
	if err := v.Contract.Check(); err != nil {
		return err
	}
	if _, err := time.Parse("15:04", v.MarketOpen); err != nil {
		return fmt.Errorf("market open time %q must be in HH:MM format: %w", v.MarketOpen, os.ErrInvalid)
	}
	if v.RangeDuration < time.Minute {
		return fmt.Errorf("opening range duration must be at least a minute: %w", os.ErrInvalid)
	}
	if v.CandleSize%(5*time.Second) != 0 {
		return fmt.Errorf("candle size %s must be a multiple of 5s: %w", v.CandleSize, os.ErrInvalid)
	}
	return nil
}

// Source produces the opening range and breakout signals for one session.
type Source struct {
	bars BarSource
	opts Options

	mu      sync.Mutex
	orange  *Range
	current *Signal
}

func NewSource(bars BarSource, opts *Options) (*Source, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	return &Source{bars: bars, opts: *opts}, nil
}

// window returns the opening range window of the current day.
func (s *Source) window() (start, end time.Time) {
	now := s.opts.Now().In(s.opts.Location)
	hm, _ := time.Parse("15:04", s.opts.MarketOpen)
	start = time.Date(now.Year(), now.Month(), now.Day(), hm.Hour(), hm.Minute(), 0, 0, s.opts.Location)
	return start, start.Add(s.opts.RangeDuration)
}

// OpeningRange waits for the opening range window to complete and returns its
// high and low.
func (s *Source) OpeningRange(ctx context.Context) (*Range, error) {
	start, end := s.window()
	if wait := end.Add(s.opts.WaitBuffer).Sub(s.opts.Now()); wait > 0 {
		slog.Info("waiting for the opening range to complete", "start", start, "end", end, "wait", wait)
		if err := ctxutil.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	p := &gateway.HistoricalBarsParams{
		Contract:   s.opts.Contract,
		EndTime:    end,
		Duration:   fmt.Sprintf("%d S", int(s.opts.RangeDuration/time.Second)),
		BarSize:    s.opts.BarSize,
		WhatToShow: "TRADES",
		UseRTH:     s.opts.UseRTH,
	}
	var bars []*gateway.Bar
	retryable := func(err error) bool { return errors.Is(err, errs.ErrTimeout) }
	err := ctxutil.Backoff(ctx, s.opts.HistoricalRetries, time.Second, retryable, func() (err error) {
		bars, err = s.bars.HistoricalBars(ctx, p, s.opts.HistoricalTimeout)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not fetch opening range bars: %w", err)
	}

	r, err := ComputeRange(bars, start, end)
	if err != nil {
		return nil, err
	}
	slog.Info("opening range is ready", "high", r.High, "low", r.Low, "bars", len(bars))

	s.mu.Lock()
	s.orange = r
	s.mu.Unlock()
	return r, nil
}

// NextSignal subscribes to real-time bars and returns the first breakout out
// of the opening range. OpeningRange must have completed before.
func (s *Source) NextSignal(ctx context.Context) (*Signal, error) {
	s.mu.Lock()
	r := s.orange
	s.mu.Unlock()
	if r == nil {
		return nil, fmt.Errorf("opening range is not known yet: %w", os.ErrInvalid)
	}

	agg, err := NewAggregator(s.opts.CandleSize)
	if err != nil {
		return nil, err
	}

	p := &gateway.RealtimeBarsParams{
		Contract:   s.opts.Contract,
		BarSeconds: 5,
		WhatToShow: "TRADES",
		UseRTH:     s.opts.UseRTH,
	}
	stream, err := s.bars.RealtimeBars(ctx, p)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	for {
		bar, err := stream.Next(ctx)
		if err != nil {
			return nil, err
		}
		candle, ok := agg.Add(bar)
		if !ok {
			continue
		}
		dir, ok := Detect(r, candle)
		if !ok {
			slog.Debug("candle did not break out of the opening range", "time", candle.Time, "open", candle.Open, "close", candle.Close, "high", candle.High, "low", candle.Low)
			continue
		}

		sig := &Signal{Direction: dir, Spot: candle.Close, Time: candle.Time}
		slog.Info("breakout signal", "direction", dir, "spot", sig.Spot, "candle", candle.Time)

		s.mu.Lock()
		s.current = sig
		s.mu.Unlock()
		return sig, nil
	}
}

// CurrentSignal returns the last committed signal or nil.
func (s *Source) CurrentSignal() *Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	sig := *s.current
	return &sig
}
