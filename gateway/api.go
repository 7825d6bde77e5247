// Copyright (c) 2025 BVK Chaitanya

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bvk/orbtrader/correlator"
	"github.com/bvk/orbtrader/errs"
	"github.com/bvk/orbtrader/instrument"
	"github.com/shopspring/decimal"
)

type Bar struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

type HistoricalBarsParams struct {
	Contract instrument.Contract `json:"contract"`

	// EndTime is the end of the requested window; zero means now.
	EndTime time.Time `json:"end_time,omitzero"`

	// Duration uses the gateway duration syntax, e.g. "1800 S".
	Duration string `json:"duration"`

	// BarSize uses the gateway bar size syntax, e.g. "1 min".
	BarSize string `json:"bar_size"`

	WhatToShow string `json:"what_to_show"`
	UseRTH     bool   `json:"use_rth"`
}

type RealtimeBarsParams struct {
	Contract   instrument.Contract `json:"contract"`
	BarSeconds int                 `json:"bar_seconds"`
	WhatToShow string              `json:"what_to_show"`
	UseRTH     bool                `json:"use_rth"`
}

type ContractDetails struct {
	Contract     instrument.Contract `json:"contract"`
	ConID        int64               `json:"con_id"`
	MinTick      decimal.Decimal     `json:"min_tick"`
	TradingClass string              `json:"trading_class"`
	LongName     string              `json:"long_name,omitempty"`
}

type ChainParamsRequest struct {
	Symbol          string          `json:"symbol"`
	UnderlyingKind  instrument.Kind `json:"underlying_sec_type"`
	UnderlyingConID int64           `json:"underlying_con_id"`
}

type ChainParams struct {
	Exchange     string            `json:"exchange"`
	TradingClass string            `json:"trading_class"`
	Multiplier   string            `json:"multiplier"`
	Expirations  []string          `json:"expirations"`
	Strikes      []decimal.Decimal `json:"strikes"`
}

type SnapshotParams struct {
	Contract instrument.Contract `json:"contract"`

	// GenericTicks selects extra tick types, e.g. "101,104" for open interest
	// and option greeks.
	GenericTicks string `json:"generic_ticks,omitempty"`
}

// Tick is one field of a market data snapshot.
type Tick struct {
	Field string          `json:"field"`
	Value decimal.Decimal `json:"value"`
}

// Tick field names.
const (
	FieldBid              = "bid"
	FieldAsk              = "ask"
	FieldLast             = "last"
	FieldClose            = "close"
	FieldGamma            = "gamma"
	FieldDelta            = "delta"
	FieldImpliedVol       = "implied_vol"
	FieldCallOpenInterest = "call_open_interest"
	FieldPutOpenInterest  = "put_open_interest"
)

// Snapshot collects the ticks of a market data snapshot by field name.
type Snapshot map[string]decimal.Decimal

// Get returns the value of a field and true if the field is present.
func (s Snapshot) Get(field string) (decimal.Decimal, bool) {
	v, ok := s[field]
	return v, ok
}

// DecodeSnapshot builds a snapshot from raw tick events.
func DecodeSnapshot(raws []json.RawMessage) (Snapshot, error) {
	ticks, err := decodeAll[Tick](raws)
	if err != nil {
		return nil, err
	}
	s := make(Snapshot)
	for _, t := range ticks {
		s[t.Field] = t.Value
	}
	return s, nil
}

type Order struct {
	OrderID     int64           `json:"order_id"`
	ParentID    int64           `json:"parent_id,omitempty"`
	Account     string          `json:"account,omitempty"`
	Action      string          `json:"action"`
	OrderType   string          `json:"order_type"`
	Quantity    decimal.Decimal `json:"quantity"`
	LimitPrice  decimal.Decimal `json:"lmt_price"`
	AuxPrice    decimal.Decimal `json:"aux_price"`
	TimeInForce string          `json:"tif"`
	Transmit    bool            `json:"transmit"`
}

type placeOrderParams struct {
	Contract instrument.Contract `json:"contract"`
	Order    *Order              `json:"order"`
}

type OrderAck struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

func decodeAll[T any](raws []json.RawMessage) ([]*T, error) {
	vs := make([]*T, 0, len(raws))
	for _, raw := range raws {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("could not decode %T: %w", v, err)
		}
		vs = append(vs, v)
	}
	return vs, nil
}

func (s *Session) timeout(d time.Duration) time.Duration {
	if d == 0 {
		return s.opts.RequestTimeout
	}
	return d
}

// HistoricalBars requests historical bars; bars are streamed till an end
// marker.
func (s *Session) HistoricalBars(ctx context.Context, p *HistoricalBarsParams, timeout time.Duration) ([]*Bar, error) {
	raws, err := s.Call(ctx, MethodHistoricalBars, p, correlator.Sequence, s.timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("could not fetch historical bars for %s: %w", p.Contract, err)
	}
	return decodeAll[Bar](raws)
}

// BarStream is a real-time bars subscription.
type BarStream struct {
	s  *Session
	op *Operation
}

// SubscribeRealtimeBars subscribes to real-time bars. Caller must Close the
// stream.
func (s *Session) SubscribeRealtimeBars(ctx context.Context, p *RealtimeBarsParams) (*BarStream, error) {
	op, err := s.Start(ctx, MethodRealtimeBars, p, correlator.Stream)
	if err != nil {
		return nil, fmt.Errorf("could not subscribe to realtime bars for %s: %w", p.Contract, err)
	}
	return &BarStream{s: s, op: op}, nil
}

// Next blocks for the next bar. Returns the resolution error when the
// subscription ends.
func (b *BarStream) Next(ctx context.Context) (*Bar, error) {
	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case raw, ok := <-b.op.Events():
		if !ok {
			if err := b.op.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("realtime bars subscription has ended: %w", os.ErrClosed)
		}
		bar := new(Bar)
		if err := json.Unmarshal(raw, bar); err != nil {
			return nil, fmt.Errorf("could not decode realtime bar: %w", err)
		}
		return bar, nil
	}
}

// Close cancels the subscription.
func (b *BarStream) Close() {
	b.s.Cancel(b.op)
}

// ContractDetails resolves a contract description into venue details.
func (s *Session) ContractDetails(ctx context.Context, c instrument.Contract, timeout time.Duration) ([]*ContractDetails, error) {
	raws, err := s.Call(ctx, MethodContractDetails, &c, correlator.Sequence, s.timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("could not fetch contract details for %s: %w", c, err)
	}
	return decodeAll[ContractDetails](raws)
}

// OptionChainParams returns the expirations and strikes of the option chain
// per exchange.
func (s *Session) OptionChainParams(ctx context.Context, p *ChainParamsRequest, timeout time.Duration) ([]*ChainParams, error) {
	raws, err := s.Call(ctx, MethodOptionChainParams, p, correlator.Sequence, s.timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("could not fetch option chain params for %s: %w", p.Symbol, err)
	}
	return decodeAll[ChainParams](raws)
}

// MarketSnapshot requests a one-shot market data snapshot.
func (s *Session) MarketSnapshot(ctx context.Context, p *SnapshotParams, timeout time.Duration) (Snapshot, error) {
	raws, err := s.Call(ctx, MethodMarketSnapshot, p, correlator.Sequence, s.timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("could not fetch market snapshot for %s: %w", p.Contract, err)
	}
	return DecodeSnapshot(raws)
}

// PlaceOrder places a new order or, when the order id is already live,
// replaces it in place. Order placement is never retried.
func (s *Session) PlaceOrder(ctx context.Context, c instrument.Contract, o *Order, timeout time.Duration) (*OrderAck, error) {
	raws, err := s.Call(ctx, MethodPlaceOrder, &placeOrderParams{Contract: c, Order: o}, correlator.Single, s.timeout(timeout))
	if err != nil {
		return nil, err
	}
	acks, err := decodeAll[OrderAck](raws)
	if err != nil {
		return nil, err
	}
	if len(acks) == 0 || acks[0].OrderID != o.OrderID {
		fault := &errs.Fault{Kind: errs.UnexpectedReply, OrderID: o.OrderID, Detail: fmt.Sprintf("acknowledgements %v", acks)}
		s.fault(fault)
		return nil, fault
	}
	return acks[0], nil
}

// CancelOrder requests cancellation of a live order.
func (s *Session) CancelOrder(ctx context.Context, orderID int64, timeout time.Duration) error {
	type params struct {
		OrderID int64 `json:"order_id"`
	}
	if _, err := s.Call(ctx, MethodCancelOrder, &params{OrderID: orderID}, correlator.Single, s.timeout(timeout)); err != nil {
		return fmt.Errorf("could not cancel order %d: %w", orderID, err)
	}
	return nil
}
