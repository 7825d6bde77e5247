// Copyright (c) 2025 BVK Chaitanya

package breakout

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bvk/orbtrader/errs"
	"github.com/bvk/orbtrader/gateway"
	"github.com/bvk/orbtrader/instrument"
	"github.com/shopspring/decimal"
)

func d(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func bar(ts time.Time, open, high, low, close float64) *gateway.Bar {
	return &gateway.Bar{Time: ts, Open: d(open), High: d(high), Low: d(low), Close: d(close), Volume: d(10)}
}

func TestDetect(t *testing.T) {
	r := &Range{High: d(4000), Low: d(3990)}

	type testCase struct {
		name   string
		candle *gateway.Bar
		want   Direction
		ok     bool
	}
	now := time.Now()
	cases := []testCase{
		{"bullish", bar(now, 4001, 4004, 4000.5, 4003), Buy, true},
		{"bearish", bar(now, 3989, 3989.5, 3985, 3986), Sell, true},
		{"inside", bar(now, 3995, 3996, 3994, 3995.5), 0, false},
		{"touches high", bar(now, 4001, 4004, 4000, 4003), 0, false},
		{"red above range", bar(now, 4003, 4004, 4001, 4002), 0, false},
		{"green below range", bar(now, 3986, 3989, 3985, 3988), 0, false},
	}
	for _, c := range cases {
		dir, ok := Detect(r, c.candle)
		if ok != c.ok || dir != c.want {
			t.Fatalf("%s: want %v/%v, got %v/%v", c.name, c.want, c.ok, dir, ok)
		}
	}
}

func TestAggregatorBullish(t *testing.T) {
	agg, err := NewAggregator(time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	r := &Range{High: d(4000), Low: d(3990)}

	start := time.Date(2025, 1, 17, 10, 5, 0, 0, time.UTC)
	var lastClose decimal.Decimal
	for i := 0; i < 12; i++ {
		v := 4001 + float64(i)*0.2
		b := bar(start.Add(time.Duration(i)*5*time.Second), v, v+0.5, v-0.5, v+0.2)
		if c, ok := agg.Add(b); ok {
			t.Fatalf("want no candle before the bucket ends, got %v", c)
		}
		lastClose = b.Close
	}

	candle, ok := agg.Add(bar(start.Add(time.Minute), 4003, 4004, 4003, 4003.5))
	if !ok {
		t.Fatalf("want a completed candle")
	}
	if !candle.Time.Equal(start) {
		t.Fatalf("want %v, got %v", start, candle.Time)
	}
	if !candle.Close.Equal(lastClose) {
		t.Fatalf("want %s, got %s", lastClose, candle.Close)
	}
	if want := d(4001); !candle.Open.Equal(want) {
		t.Fatalf("want %s, got %s", want, candle.Open)
	}
	if want := d(120); !candle.Volume.Equal(want) {
		t.Fatalf("want %s, got %s", want, candle.Volume)
	}
	if dir, ok := Detect(r, candle); !ok || dir != Buy {
		t.Fatalf("want BUY, got %v/%v", dir, ok)
	}
}

func TestAggregatorMisaligned(t *testing.T) {
	agg, _ := NewAggregator(time.Minute)

	start := time.Date(2025, 1, 17, 10, 5, 7, 0, time.UTC)
	for i := 0; i < 11; i++ {
		if _, ok := agg.Add(bar(start.Add(time.Duration(i)*5*time.Second), 4001, 4002, 4000.5, 4001.5)); ok {
			t.Fatalf("want no candle at bar %d", i)
		}
	}
	last := start.Add(55 * time.Second)
	candle, ok := agg.Add(bar(last, 4003, 4004, 4003, 4003.5))
	if !ok {
		t.Fatalf("want a completed candle")
	}
	if candle.Time.Second() != 0 {
		t.Fatalf("want candle aligned to minute, got %v", candle.Time)
	}
	if cur := agg.Current(); cur == nil || cur.Time.Minute() != last.Minute() || cur.Time.Second() != 0 {
		t.Fatalf("want new candle at %v, got %v", last.Truncate(time.Minute), cur)
	}
}

func TestComputeRange(t *testing.T) {
	open := time.Date(2025, 1, 17, 9, 30, 0, 0, time.UTC)
	end := open.Add(3 * time.Minute)
	bars := []*gateway.Bar{
		bar(open.Add(-time.Minute), 1, 9999, 0.5, 1),
		bar(open, 100, 105, 99, 104),
		bar(open.Add(time.Minute), 104, 108, 103, 107),
		bar(open.Add(2*time.Minute), 107, 107, 97, 98),
		bar(end, 1, 9999, 0.5, 1),
	}
	r, err := ComputeRange(bars, open, end)
	if err != nil {
		t.Fatal(err)
	}
	if !r.High.Equal(d(108)) || !r.Low.Equal(d(97)) {
		t.Fatalf("want [97, 108], got %s", r)
	}

	if _, err := ComputeRange(nil, open, end); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want os.ErrNotExist, got %v", err)
	}
}

type fakeBars struct {
	mu       sync.Mutex
	calls    int
	timeouts int
	history  []*gateway.Bar
	params   *gateway.HistoricalBarsParams
	live     chan *gateway.Bar
	closed   bool
}

func (f *fakeBars) HistoricalBars(ctx context.Context, p *gateway.HistoricalBarsParams, timeout time.Duration) ([]*gateway.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.params = p
	if f.calls <= f.timeouts {
		return nil, errs.ErrTimeout
	}
	return f.history, nil
}

func (f *fakeBars) RealtimeBars(ctx context.Context, p *gateway.RealtimeBarsParams) (Bars, error) {
	return f, nil
}

func (f *fakeBars) Next(ctx context.Context) (*gateway.Bar, error) {
	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case b, ok := <-f.live:
		if !ok {
			return nil, os.ErrClosed
		}
		return b, nil
	}
}

func (f *fakeBars) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func TestSourceSignal(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("timezone database is not available")
	}
	open := time.Date(2025, 1, 17, 9, 30, 0, 0, ny)
	now := open.Add(time.Hour)

	fb := &fakeBars{
		timeouts: 1,
		history: []*gateway.Bar{
			bar(open, 5000, 5010, 4995, 5005),
			bar(open.Add(10*time.Minute), 5005, 5012, 5001, 5008),
		},
		live: make(chan *gateway.Bar, 32),
	}
	opts := &Options{
		Contract:      instrument.Underlying("SPX", "CBOE", "USD"),
		Location:      ny,
		RangeDuration: 30 * time.Minute,
		CandleSize:    time.Minute,
		Now:           func() time.Time { return now },
	}
	src, err := NewSource(fb, opts)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := src.NextSignal(ctx); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid before the opening range, got %v", err)
	}

	r, err := src.OpeningRange(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !r.High.Equal(d(5012)) || !r.Low.Equal(d(4995)) {
		t.Fatalf("want [4995, 5012], got %s", r)
	}
	if fb.calls != 2 {
		t.Fatalf("want 2 historical attempts, got %d", fb.calls)
	}
	if fb.params.Duration != "1800 S" {
		t.Fatalf("want 1800 S, got %q", fb.params.Duration)
	}

	minute := now.Truncate(time.Minute)
	for i := 0; i < 12; i++ {
		fb.live <- bar(minute.Add(time.Duration(i)*5*time.Second), 5000, 5002, 4999, 5001)
	}
	for i := 0; i < 12; i++ {
		fb.live <- bar(minute.Add(time.Minute+time.Duration(i)*5*time.Second), 5013, 5016, 5013.5, 5015)
	}
	fb.live <- bar(minute.Add(2*time.Minute), 5015, 5016, 5014, 5015)

	if src.CurrentSignal() != nil {
		t.Fatalf("want no signal yet")
	}
	sig, err := src.NextSignal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sig.Direction != Buy || !sig.Spot.Equal(d(5015)) || !sig.Time.Equal(minute.Add(time.Minute)) {
		t.Fatalf("want BUY at 5015, got %+v", sig)
	}
	if cur := src.CurrentSignal(); cur == nil || cur.Direction != Buy {
		t.Fatalf("want current signal BUY, got %v", cur)
	}
	if !fb.closed {
		t.Fatalf("want subscription closed after the signal")
	}
}
