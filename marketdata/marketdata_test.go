// Copyright (c) 2025 BVK Chaitanya

package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/bvk/orbtrader/correlator"
	"github.com/bvk/orbtrader/fetcher"
	"github.com/bvk/orbtrader/gateway"
	"github.com/bvk/orbtrader/instrument"
	"github.com/shopspring/decimal"
)

var errNoSecurity = errors.New("no security definition")

// fakeGateway answers snapshot requests from a table of ticks keyed by the
// contract string. Contracts missing from the table fail.
type fakeGateway struct {
	table *correlator.Table[json.RawMessage]

	ticks   map[string][]*gateway.Tick
	details []*gateway.ContractDetails
	chain   []*gateway.ChainParams
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		table: correlator.New[json.RawMessage](nil),
		ticks: make(map[string][]*gateway.Tick),
	}
}

func (f *fakeGateway) Start(ctx context.Context, method string, params any, shape correlator.Shape) (*fetcher.Operation, error) {
	op, err := f.table.Issue(shape)
	if err != nil {
		return nil, err
	}
	p := params.(*gateway.SnapshotParams)
	ticks, ok := f.ticks[p.Contract.String()]
	go func() {
		if !ok {
			f.table.OnError(op.Token(), errNoSecurity)
			return
		}
		for _, t := range ticks {
			data, _ := json.Marshal(t)
			f.table.OnEvent(op.Token(), data, false)
		}
		f.table.OnEnd(op.Token())
	}()
	return op, nil
}

func (f *fakeGateway) Await(ctx context.Context, op *fetcher.Operation, timeout time.Duration) ([]json.RawMessage, error) {
	return f.table.Await(ctx, op, timeout)
}

func (f *fakeGateway) ContractDetails(ctx context.Context, c instrument.Contract, timeout time.Duration) ([]*gateway.ContractDetails, error) {
	return f.details, nil
}

func (f *fakeGateway) OptionChainParams(ctx context.Context, p *gateway.ChainParamsRequest, timeout time.Duration) ([]*gateway.ChainParams, error) {
	return f.chain, nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func option(strike string) instrument.Contract {
	return instrument.Contract{
		Symbol:     "SPX",
		Kind:       instrument.Option,
		Exchange:   "SMART",
		Currency:   "USD",
		Expiration: "20260121",
		Strike:     d(strike),
		Right:      instrument.Call,
		Multiplier: 100,
	}
}

func newClient(t *testing.T, gw *fakeGateway) *Client {
	fc, err := fetcher.New(gw, nil)
	if err != nil {
		t.Fatal(err)
	}
	return New(gw, fc, &Options{RequestTimeout: time.Second, BatchTimeout: 2 * time.Second})
}

func TestQuoteFallback(t *testing.T) {
	ctx := context.Background()

	gw := newFakeGateway()
	gw.ticks[option("5000").String()] = []*gateway.Tick{
		{Field: gateway.FieldBid, Value: d("2.40")},
		{Field: gateway.FieldAsk, Value: d("2.50")},
		{Field: gateway.FieldLast, Value: d("2.45")},
	}
	gw.ticks[option("5005").String()] = []*gateway.Tick{
		{Field: gateway.FieldAsk, Value: d("-1")},
		{Field: gateway.FieldLast, Value: d("0")},
		{Field: gateway.FieldClose, Value: d("1.95")},
	}
	gw.ticks[option("5010").String()] = []*gateway.Tick{
		{Field: gateway.FieldBid, Value: d("1.00")},
	}
	c := newClient(t, gw)

	if p, err := c.Quote(ctx, option("5000")); err != nil || !p.Equal(d("2.50")) {
		t.Fatalf("want 2.50, got %s (%v)", p, err)
	}
	if p, err := c.Quote(ctx, option("5005")); err != nil || !p.Equal(d("1.95")) {
		t.Fatalf("want 1.95, got %s (%v)", p, err)
	}
	if _, err := c.Quote(ctx, option("5010")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want %v, got %v", os.ErrNotExist, err)
	}
	if _, err := c.Quote(ctx, option("6000")); !errors.Is(err, errNoSecurity) {
		t.Fatalf("want %v, got %v", errNoSecurity, err)
	}
}

func TestSnapshotsPartial(t *testing.T) {
	ctx := context.Background()

	gw := newFakeGateway()
	gw.ticks[option("5000").String()] = []*gateway.Tick{{Field: gateway.FieldGamma, Value: d("0.01")}}
	c := newClient(t, gw)

	contracts := []instrument.Contract{option("5000"), option("5005")}
	snaps, results, err := c.Snapshots(ctx, contracts, "101")
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Fatalf("want 1 snapshot, got %d", len(snaps))
	}
	if v, ok := snaps[option("5000").String()].Get(gateway.FieldGamma); !ok || !v.Equal(d("0.01")) {
		t.Fatalf("want gamma 0.01, got %s", v)
	}
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
	if c := results.Coverage(); c != 0.5 {
		t.Fatalf("want 0.5, got %v", c)
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	gw := newFakeGateway()
	gw.chain = []*gateway.ChainParams{
		{Exchange: "CBOE", Multiplier: "100", Expirations: []string{"20260130"}, Strikes: []decimal.Decimal{d("4000")}},
		{Exchange: "SMART", Multiplier: "100", Expirations: []string{"20260121", "20260116"}, Strikes: []decimal.Decimal{d("5005"), d("5000")}},
		{Exchange: "SMART", Multiplier: "100", Expirations: []string{"20260121"}, Strikes: []decimal.Decimal{d("5000.0"), d("5010")}},
	}
	c := newClient(t, gw)

	chain, err := c.Chain(ctx, "SPX", 416904)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"20260116", "20260121"}; len(chain.Expirations) != 2 || chain.Expirations[0] != want[0] || chain.Expirations[1] != want[1] {
		t.Fatalf("want %v, got %v", want, chain.Expirations)
	}
	if len(chain.Strikes) != 3 || !chain.Strikes[0].Equal(d("5000")) || !chain.Strikes[2].Equal(d("5010")) {
		t.Fatalf("want strikes 5000 5005 5010, got %v", chain.Strikes)
	}
	if chain.Multiplier != 100 {
		t.Fatalf("want 100, got %d", chain.Multiplier)
	}

	// Entries from all exchanges are used when none matches.
	gw.chain = gw.chain[:1]
	chain, err = c.Chain(ctx, "SPX", 416904)
	if err != nil {
		t.Fatal(err)
	}
	if len(chain.Expirations) != 1 || chain.Expirations[0] != "20260130" {
		t.Fatalf("want [20260130], got %v", chain.Expirations)
	}

	gw.chain = nil
	if _, err := c.Chain(ctx, "SPX", 416904); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want %v, got %v", os.ErrNotExist, err)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	gw := newFakeGateway()
	c := newClient(t, gw)

	u := instrument.Underlying("SPX", "CBOE", "USD")
	if _, err := c.Resolve(ctx, u); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want %v, got %v", os.ErrNotExist, err)
	}

	gw.details = []*gateway.ContractDetails{{ConID: 416904}, {ConID: 12}}
	cd, err := c.Resolve(ctx, u)
	if err != nil {
		t.Fatal(err)
	}
	if cd.ConID != 416904 {
		t.Fatalf("want 416904, got %d", cd.ConID)
	}
}
