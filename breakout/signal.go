// Copyright (c) 2025 BVK Chaitanya

// Package breakout computes the opening range of a trading session and
// detects candles that break out of it.
package breakout

import (
	"fmt"
	"os"
	"time"

	"github.com/bvk/orbtrader/gateway"
	"github.com/shopspring/decimal"
)

type Direction int

const (
	Buy Direction = iota + 1
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Signal is a committed breakout signal.
type Signal struct {
	Direction Direction
	Spot      decimal.Decimal
	Time      time.Time
}

// Range is the high and low of the opening range.
type Range struct {
	High  decimal.Decimal
	Low   decimal.Decimal
	Start time.Time
	End   time.Time
}

func (r *Range) String() string {
	return fmt.Sprintf("[%s, %s] %s-%s", r.Low, r.High, r.Start.Format(time.Kitchen), r.End.Format(time.Kitchen))
}

// ComputeRange returns the high and low of the bars that start in the
// [start, end) window.
func ComputeRange(bars []*gateway.Bar, start, end time.Time) (*Range, error) {
	r := &Range{Start: start, End: end}
	n := 0
	for _, b := range bars {
		if b.Time.Before(start) || !b.Time.Before(end) {
			continue
		}
		if n == 0 || b.High.GreaterThan(r.High) {
			r.High = b.High
		}
		if n == 0 || b.Low.LessThan(r.Low) {
			r.Low = b.Low
		}
		n++
	}
	if n == 0 {
		return nil, fmt.Errorf("no bars in the opening range window %s-%s: %w", start, end, os.ErrNotExist)
	}
	if r.Low.GreaterThan(r.High) {
		return nil, fmt.Errorf("opening range low %s is above high %s: %w", r.Low, r.High, os.ErrInvalid)
	}
	return r, nil
}

// Detect returns the breakout direction of a completed candle, if any. A
// bullish candle closes above its open with its low above the range high; a
// bearish candle closes below its open with its high below the range low.
func Detect(r *Range, c *gateway.Bar) (Direction, bool) {
	if c.Close.GreaterThan(c.Open) && c.Low.GreaterThan(r.High) {
		return Buy, true
	}
	if c.Close.LessThan(c.Open) && c.High.LessThan(r.Low) {
		return Sell, true
	}
	return 0, false
}

// Aggregator merges real-time bars into clock aligned candles.
type Aggregator struct {
	size time.Duration

	current *gateway.Bar
}

func NewAggregator(size time.Duration) (*Aggregator, error) {
	if size <= 0 {
		return nil, fmt.Errorf("candle size must be positive: %w", os.ErrInvalid)
	}
	return &Aggregator{size: size}, nil
}

// Add merges a bar into the candle in progress. The previous candle is
// returned when the bar belongs to a later candle.
func (a *Aggregator) Add(b *gateway.Bar) (*gateway.Bar, bool) {
	start := b.Time.Truncate(a.size)

	if a.current != nil && a.current.Time.Equal(start) {
		a.current.High = decimal.Max(a.current.High, b.High)
		a.current.Low = decimal.Min(a.current.Low, b.Low)
		a.current.Close = b.Close
		a.current.Volume = a.current.Volume.Add(b.Volume)
		return nil, false
	}

	if a.current != nil && start.Before(a.current.Time) {
		// Out of order bars are ignored.
		return nil, false
	}

	completed := a.current
	a.current = &gateway.Bar{
		Time:   start,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
	return completed, completed != nil
}

// Current returns a copy of the candle in progress or nil.
func (a *Aggregator) Current() *gateway.Bar {
	if a.current == nil {
		return nil
	}
	c := *a.current
	return &c
}
