// Copyright (c) 2025 BVK Chaitanya

// Package order places bracket orders and drives them through fills,
// protective order repricing, trailing stops and closure.
//
// A bracket group is an opening buy order with a take-profit limit order and a
// stop-loss stop order as its children. The three orders are placed with only
// the last one transmitting, so the venue never sees a partial bracket.
package order

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
	"github.com/bvk/orbtrader/idgen"
	"github.com/bvk/orbtrader/instrument"
	"github.com/bvk/orbtrader/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

// Broker is the subset of the gateway session used to place orders.
type Broker interface {
	NextOrderIDs(n int) (int64, error)
	PlaceOrder(ctx context.Context, c instrument.Contract, o *gateway.Order, timeout time.Duration) (*gateway.OrderAck, error)
	CancelOrder(ctx context.Context, orderID int64, timeout time.Duration) error
	OrderUpdates() (*topic.Receiver[*gateway.OrderStatus], error)
}

// Journal saves group snapshots.
type Journal interface {
	SaveGroup(ctx context.Context, g *Group) error
}

const (
	TrailPrice     = "price"
	TrailMilestone = "milestone"
)

var one = decimal.NewFromInt(1)

type Options struct {
	Account  string
	Quantity decimal.Decimal

	EntryOrderType      string
	TakeProfitOrderType string
	StopLossOrderType   string

	// Percentages are fractions, e.g. 0.5 for 50%.
	TakeProfitPct decimal.Decimal
	StopLossPct   decimal.Decimal
	ActivationPct decimal.Decimal
	TrailPct      decimal.Decimal

	// TrailMode is either TrailPrice or TrailMilestone.
	TrailMode string

	OrderTimeout       time.Duration
	SiblingGracePeriod time.Duration

	// GroupSeed seeds the group id sequence of the session.
	GroupSeed string

	Journal Journal

	// OnFault is called for protocol faults found by the manager.
	OnFault func(error)

	// OnClose is called once for every group after it is closed and
	// verified.
	OnClose func(*Group)
}

func (v *Options) setDefaults() {
	if v.Quantity.IsZero() {
		v.Quantity = one
	}
	if v.EntryOrderType == "" {
		v.EntryOrderType = "LMT"
	}
	if v.TakeProfitOrderType == "" {
		v.TakeProfitOrderType = "LMT"
	}
	if v.StopLossOrderType == "" {
		v.StopLossOrderType = "STP"
	}
	if v.TrailMode == "" {
		v.TrailMode = TrailPrice
	}
	if v.OrderTimeout == 0 {
		v.OrderTimeout = 10 * time.Second
	}
	if v.SiblingGracePeriod == 0 {
		v.SiblingGracePeriod = 5 * time.Second
	}
	if v.GroupSeed == "" {
		v.GroupSeed = time.Now().Format(time.RFC3339Nano)
	}
}

func (v *Options) Check() error {
	if !v.Quantity.IsPositive() {
		return fmt.Errorf("order quantity must be positive: %w", os.ErrInvalid)
	}
	if !v.TakeProfitPct.IsPositive() {
		return fmt.Errorf("take profit percent must be positive: %w", os.ErrInvalid)
	}
	if !v.StopLossPct.IsPositive() || v.StopLossPct.GreaterThanOrEqual(one) {
		return fmt.Errorf("stop loss percent must be within (0, 100): %w", os.ErrInvalid)
	}
	if v.ActivationPct.IsNegative() || v.ActivationPct.GreaterThanOrEqual(v.TakeProfitPct) {
		return fmt.Errorf("trailing activation must be below the take profit percent: %w", os.ErrInvalid)
	}
	if v.TrailPct.IsNegative() || v.TrailPct.GreaterThanOrEqual(one) {
		return fmt.Errorf("trail percent must be within [0, 100): %w", os.ErrInvalid)
	}
	if v.TrailMode != TrailPrice && v.TrailMode != TrailMilestone {
		return fmt.Errorf("trail mode %q is invalid: %w", v.TrailMode, os.ErrInvalid)
	}
	return nil
}

type group struct {
	Group

	// modifyMu serializes replace-in-place modifications of the group.
	modifyMu sync.Mutex

	// cancelled channels are closed when the protective order of the role
	// reaches Cancelled or Rejected.
	cancelled map[Role]chan struct{}

	doneOnce sync.Once
	done     chan struct{}
}

func (g *group) byRole(r Role) *Record {
	switch r {
	case Opening:
		return &g.Opening
	case TakeProfit:
		return &g.TakeProfit
	}
	return &g.StopLoss
}

type Manager struct {
	cg ctxutil.CloseGroup

	broker Broker
	opts   Options
	ids    *idgen.Generator

	mu     sync.Mutex
	groups map[uuid.UUID]*group
	orders map[int64]*group
}

func New(b Broker, opts *Options) (*Manager, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	m := &Manager{
		broker: b,
		opts:   *opts,
		ids:    idgen.New(opts.GroupSeed, 0),
		groups: make(map[uuid.UUID]*group),
		orders: make(map[int64]*group),
	}
	return m, nil
}

// Close stops the sibling verifications in progress.
func (m *Manager) Close() error {
	m.cg.Close()
	return nil
}

func (m *Manager) tick(symbol string, price, minTick decimal.Decimal) decimal.Decimal {
	return instrument.TickSize(symbol, price, minTick)
}

// protectivePrices returns the take-profit and stop-loss prices for an entry
// price, both rounded down to their tick. The stop loss is kept below the
// entry price.
func (m *Manager) protectivePrices(symbol string, entry, minTick decimal.Decimal) (tp, sl decimal.Decimal) {
	tpRaw := entry.Mul(one.Add(m.opts.TakeProfitPct))
	tp = instrument.RoundDown(tpRaw, m.tick(symbol, tpRaw, minTick))

	slRaw := entry.Mul(one.Sub(m.opts.StopLossPct))
	slTick := m.tick(symbol, slRaw, minTick)
	sl = instrument.RoundDown(slRaw, slTick)
	if sl.GreaterThanOrEqual(entry) {
		sl = sl.Sub(slTick)
	}
	return tp, sl
}

// trailStop returns the new stop price for the current price and the trail
// level it corresponds to.
func (m *Manager) trailStop(symbol string, fill, current decimal.Decimal, level int, minTick decimal.Decimal) (decimal.Decimal, int, bool) {
	if m.opts.TrailMode == TrailMilestone {
		if !fill.IsPositive() || !m.opts.ActivationPct.IsPositive() {
			return decimal.Zero, level, false
		}
		profit := current.Div(fill).Sub(one)
		next := int(profit.Div(m.opts.ActivationPct).Floor().IntPart())
		if next <= level {
			return decimal.Zero, level, false
		}
		risk := m.opts.StopLossPct.Sub(m.opts.TrailPct.Mul(decimal.NewFromInt(int64(next))))
		raw := fill.Mul(one.Sub(risk))
		return instrument.RoundDown(raw, m.tick(symbol, raw, minTick)), next, true
	}

	raw := current.Mul(one.Sub(m.opts.TrailPct))
	return instrument.RoundDown(raw, m.tick(symbol, raw, minTick)), level, true
}

func (m *Manager) venueOrder(r *Record, transmit bool) *gateway.Order {
	o := &gateway.Order{
		OrderID:     r.OrderID,
		ParentID:    r.ParentID,
		Account:     m.opts.Account,
		Action:      r.Action,
		OrderType:   r.OrderType,
		Quantity:    r.Quantity,
		TimeInForce: "GTC",
		Transmit:    transmit,
	}
	if r.Role == Opening {
		o.TimeInForce = "DAY"
	}
	if r.OrderType == "STP" {
		o.AuxPrice = r.Price
	} else {
		o.LimitPrice = r.Price
	}
	return o
}

func (m *Manager) save(ctx context.Context, g *Group) {
	if m.opts.Journal == nil {
		return
	}
	if err := m.opts.Journal.SaveGroup(context.WithoutCancel(ctx), g); err != nil {
		slog.Error("could not save group to the journal (ignored)", "group", g.ID, "err", err)
	}
}

func (m *Manager) raise(err error) {
	var fault *errs.Fault
	if errors.As(err, &fault) {
		metrics.ProtocolFaults.WithLabelValues(string(fault.Kind)).Inc()
	}
	slog.Error("order lifecycle fault", "err", err)
	if m.opts.OnFault != nil {
		m.opts.OnFault(err)
	}
}

// closeLocked moves the group into the Closed state; m.mu must be held.
func (m *Manager) closeLocked(g *group, reason string) {
	g.State = Closed
	g.CloseReason = reason
	g.CloseTime = time.Now()
}

// finish closes the done channel of a closed group.
func (m *Manager) finish(g *group, snap *Group) {
	g.doneOnce.Do(func() {
		slog.Info("bracket group is finished", "group", snap.ID, "reason", snap.CloseReason, "fault", snap.Fault)
		close(g.done)
		if m.opts.OnClose != nil {
			m.opts.OnClose(snap)
		}
	})
}

// SubmitOpening places a bracket for the contract with the opening limit
// price. Protective prices are computed from the limit price and are
// repriced from the fill price when the opening order fills.
//
// Either all three orders are acknowledged by the venue or every placed order
// is cancelled and an error is returned. Placement is never retried.
func (m *Manager) SubmitOpening(ctx context.Context, c instrument.Contract, price, minTick decimal.Decimal) (*Group, error) {
	if err := c.Check(); err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("opening price %s must be positive: %w", price, os.ErrInvalid)
	}

	first, err := m.broker.NextOrderIDs(3)
	if err != nil {
		return nil, fmt.Errorf("could not reserve order ids: %w", err)
	}

	tp, sl := m.protectivePrices(c.Symbol, price, minTick)
	g := &group{
		Group: Group{
			ID:         m.ids.NextID(),
			State:      AwaitingFill,
			MinTick:    minTick,
			CreateTime: time.Now(),
			Opening: Record{
				OrderID:   first,
				Role:      Opening,
				Contract:  c,
				Action:    "BUY",
				OrderType: m.opts.EntryOrderType,
				Price:     price,
				Quantity:  m.opts.Quantity,
			},
			TakeProfit: Record{
				OrderID:   first + 1,
				Role:      TakeProfit,
				ParentID:  first,
				Contract:  c,
				Action:    "SELL",
				OrderType: m.opts.TakeProfitOrderType,
				Price:     tp,
				Quantity:  m.opts.Quantity,
			},
			StopLoss: Record{
				OrderID:   first + 2,
				Role:      StopLoss,
				ParentID:  first,
				Contract:  c,
				Action:    "SELL",
				OrderType: m.opts.StopLossOrderType,
				Price:     sl,
				Quantity:  m.opts.Quantity,
			},
		},
		cancelled: map[Role]chan struct{}{
			TakeProfit: make(chan struct{}),
			StopLoss:   make(chan struct{}),
		},
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.groups[g.ID] = g
	m.orders[g.Opening.OrderID] = g
	m.orders[g.TakeProfit.OrderID] = g
	m.orders[g.StopLoss.OrderID] = g
	snap := g.Snapshot()
	m.mu.Unlock()
	m.save(ctx, snap)

	slog.Info("submitting bracket", "group", g.ID, "contract", c, "price", price, "take-profit", tp, "stop-loss", sl, "order-id", first)

	var placed []int64
	roles := []Role{Opening, TakeProfit, StopLoss}
	for i, role := range roles {
		m.mu.Lock()
		rec := *g.byRole(role)
		m.mu.Unlock()

		if _, err := m.broker.PlaceOrder(ctx, c, m.venueOrder(&rec, i == len(roles)-1), m.opts.OrderTimeout); err != nil {
			metrics.OrdersPlaced.WithLabelValues(role.String(), "error").Inc()
			if errors.Is(err, errs.ErrTimeout) || errors.Is(err, errs.ErrConnection) {
				// Venue may have accepted the order.
				placed = append(placed, rec.OrderID)
			} else {
				err = fmt.Errorf("%w: %w", errs.ErrSubmissionRejected, err)
			}
			m.abort(ctx, g, placed, err)
			return nil, fmt.Errorf("could not place %s order %d: %w", role, rec.OrderID, err)
		}
		metrics.OrdersPlaced.WithLabelValues(role.String(), "ok").Inc()
		placed = append(placed, rec.OrderID)

		m.mu.Lock()
		if r := g.byRole(role); r.Status == Created {
			r.Status = Submitted
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	snap = g.Snapshot()
	m.mu.Unlock()
	m.save(ctx, snap)

	if snap.State == Closed {
		return nil, fmt.Errorf("bracket %s was closed during submission (%s): %w", snap.ID, snap.CloseReason, errs.ErrSubmissionRejected)
	}
	slog.Info("bracket is submitted", "group", snap.ID, "opening", snap.Opening.OrderID, "take-profit", snap.TakeProfit.OrderID, "stop-loss", snap.StopLoss.OrderID)
	return snap, nil
}

// abort cancels the placed orders of a partially submitted bracket and closes
// the group.
func (m *Manager) abort(ctx context.Context, g *group, placed []int64, cause error) {
	cctx := context.WithoutCancel(ctx)
	for i := len(placed) - 1; i >= 0; i-- {
		if err := m.broker.CancelOrder(cctx, placed[i], m.opts.OrderTimeout); err != nil {
			slog.Error("could not cancel order of a partial bracket", "group", g.ID, "order-id", placed[i], "err", err)
		}
	}

	m.mu.Lock()
	if g.State != Closed {
		m.closeLocked(g, fmt.Sprintf("submission failed: %v", cause))
	}
	snap := g.Snapshot()
	m.mu.Unlock()

	m.save(ctx, snap)
	m.finish(g, snap)
}

// HandleStatus applies an order status notice to the bracket group owning
// the order. Notices for unknown orders are ignored.
func (m *Manager) HandleStatus(ctx context.Context, st *gateway.OrderStatus) error {
	next, ok := venueStatus(st.Status)
	if !ok {
		return nil
	}
	if next == Filled && st.Remaining.IsPositive() {
		slog.Debug("order is partially filled", "order-id", st.OrderID, "filled", st.Filled, "remaining", st.Remaining)
		return nil
	}

	m.mu.Lock()
	g, ok := m.orders[st.OrderID]
	if !ok {
		m.mu.Unlock()
		slog.Debug("ignoring status notice for an unknown order", "order-id", st.OrderID, "status", st.Status)
		return nil
	}
	rec := g.record(st.OrderID)
	cur := rec.Status
	if cur == next {
		m.mu.Unlock()
		return nil
	}
	if !canTransition(cur, next) {
		m.mu.Unlock()
		if isStale(cur, next) {
			slog.Debug("ignoring stale status notice", "order-id", st.OrderID, "current", cur, "notice", next)
			return nil
		}
		fault := &errs.Fault{
			Kind:    errs.BadTransition,
			OrderID: st.OrderID,
			Detail:  fmt.Sprintf("%s order cannot move from %s to %s", rec.Role, cur, next),
		}
		m.raise(fault)
		return fault
	}

	rec.Status = next
	switch next {
	case Filled:
		rec.FillPrice = st.AvgFillPrice
		rec.FillTime = st.Time
		if rec.FillTime.IsZero() {
			rec.FillTime = time.Now()
		}
	case Rejected:
		rec.Reason = st.Message
	}

	var (
		activate   bool
		finish     bool
		verifyRole Role
		verifyID   int64
		problem    error
	)
	switch rec.Role {
	case Opening:
		switch next {
		case Filled:
			activate = g.State == AwaitingFill
		case Cancelled, Rejected:
			if g.State == AwaitingFill {
				m.closeLocked(g, fmt.Sprintf("opening order is %s", next))
				finish = true
			}
		}

	case TakeProfit, StopLoss:
		sib := g.sibling(rec)
		switch next {
		case Filled:
			if g.State == Closed {
				if sib.Status == Filled {
					fault := &errs.Fault{Kind: errs.SiblingLive, OrderID: rec.OrderID, Detail: "both protective orders have filled"}
					g.Fault = fault.Error()
					problem = fault
				}
				break
			}
			m.closeLocked(g, fmt.Sprintf("%s order filled at %s", rec.Role, rec.FillPrice))
			if sib.Status == Cancelled || sib.Status == Rejected {
				finish = true
			} else {
				verifyRole, verifyID = sib.Role, sib.OrderID
			}
		case Cancelled, Rejected:
			close(g.cancelled[rec.Role])
			if next == Rejected && g.State != Closed {
				problem = fmt.Errorf("%s order %d is rejected (%s) while the bracket is %s: %w", rec.Role, rec.OrderID, rec.Reason, g.State, errs.ErrSubmissionRejected)
			}
		}
	}
	snap := g.Snapshot()
	m.mu.Unlock()

	slog.Info("order status changed", "group", snap.ID, "order-id", st.OrderID, "role", rec.Role, "from", cur, "to", next, "state", snap.State)
	m.save(ctx, snap)

	if problem != nil {
		m.raise(problem)
	}
	if finish {
		m.finish(g, snap)
	}
	if verifyID != 0 {
		filled := rec.Role
		m.cg.Go(func(cctx context.Context) {
			m.verifySibling(cctx, g, filled, verifyRole, verifyID)
		})
	}
	if activate {
		return m.activate(ctx, g)
	}
	return nil
}

// verifySibling waits for the sibling of a filled protective order to be
// cancelled by the venue. A sibling still live after the grace period is a
// protocol fault and is cancelled explicitly.
func (m *Manager) verifySibling(ctx context.Context, g *group, filled, role Role, orderID int64) {
	timer := time.NewTimer(m.opts.SiblingGracePeriod)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-g.cancelled[role]:
		slog.Info("sibling order is cancelled", "group", g.ID, "order-id", orderID, "role", role)
	case <-timer.C:
		fault := &errs.Fault{
			Kind:    errs.SiblingLive,
			OrderID: orderID,
			Detail:  fmt.Sprintf("%s order is still live %s after the %s fill", role, m.opts.SiblingGracePeriod, filled),
		}
		m.mu.Lock()
		g.Fault = fault.Error()
		snap := g.Snapshot()
		m.mu.Unlock()

		m.save(ctx, snap)
		m.raise(fault)
		if err := m.broker.CancelOrder(ctx, orderID, m.opts.OrderTimeout); err != nil {
			slog.Error("could not cancel live sibling order", "group", g.ID, "order-id", orderID, "err", err)
		}
	}

	m.mu.Lock()
	snap := g.Snapshot()
	m.mu.Unlock()
	m.finish(g, snap)
}

// activate reprices the protective orders from the opening fill price and
// moves the group into the Active state. The provisional protective orders
// stay live if the repricing fails.
func (m *Manager) activate(ctx context.Context, g *group) error {
	g.modifyMu.Lock()
	defer g.modifyMu.Unlock()

	m.mu.Lock()
	if g.State != AwaitingFill {
		m.mu.Unlock()
		return nil
	}
	c := g.Opening.Contract
	fill := g.Opening.FillPrice
	minTick := g.MinTick
	tpRec, slRec := g.TakeProfit, g.StopLoss
	m.mu.Unlock()

	tp, sl := m.protectivePrices(c.Symbol, fill, minTick)
	tpRec.Price, slRec.Price = tp, sl

	_, err := m.broker.PlaceOrder(ctx, c, m.venueOrder(&tpRec, false), m.opts.OrderTimeout)
	if err == nil {
		metrics.OrdersPlaced.WithLabelValues(TakeProfit.String(), "ok").Inc()
		_, err = m.broker.PlaceOrder(ctx, c, m.venueOrder(&slRec, true), m.opts.OrderTimeout)
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.OrdersPlaced.WithLabelValues(StopLoss.String(), outcome).Inc()

	m.mu.Lock()
	if g.State == AwaitingFill {
		if err == nil {
			g.TakeProfit.Price = tp
			g.StopLoss.Price = sl
		}
		g.State = Active
	}
	snap := g.Snapshot()
	m.mu.Unlock()
	m.save(ctx, snap)

	if err != nil {
		return fmt.Errorf("could not reprice protective orders of %s from fill price %s: %w", snap.ID, fill, err)
	}
	slog.Info("bracket is active", "group", snap.ID, "fill", fill, "take-profit", tp, "stop-loss", sl)
	return nil
}

func (m *Manager) lookup(id uuid.UUID) (*group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[id]
	if !ok {
		return nil, fmt.Errorf("bracket group %s: %w", id, os.ErrNotExist)
	}
	return g, nil
}

// Manage checks the profit of an active group at the current option price
// and tightens the stop loss once the profit reaches the trailing
// activation.
func (m *Manager) Manage(ctx context.Context, id uuid.UUID, current decimal.Decimal) error {
	g, err := m.lookup(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	state, fill := g.State, g.Opening.FillPrice
	m.mu.Unlock()

	if state != Active && state != Trailing {
		return nil
	}
	if !fill.IsPositive() || !current.IsPositive() {
		return nil
	}
	profit := current.Div(fill).Sub(one)
	if profit.LessThan(m.opts.ActivationPct) || profit.GreaterThanOrEqual(m.opts.TakeProfitPct) {
		return nil
	}

	if state == Active {
		m.mu.Lock()
		if g.State == Active {
			g.State = Trailing
		}
		snap := g.Snapshot()
		m.mu.Unlock()

		m.save(ctx, snap)
		slog.Info("trailing stop is activated", "group", id, "profit", profit.StringFixed(4), "price", current)
	}

	if _, err := m.ModifyStopLoss(ctx, id, current); err != nil {
		return err
	}
	return nil
}

// ModifyStopLoss replaces the stop-loss order in place with a tighter stop
// price for the current option price. Stops are never loosened. Returns true
// if the stop was modified.
func (m *Manager) ModifyStopLoss(ctx context.Context, id uuid.UUID, current decimal.Decimal) (bool, error) {
	g, err := m.lookup(id)
	if err != nil {
		return false, err
	}

	g.modifyMu.Lock()
	defer g.modifyMu.Unlock()

	m.mu.Lock()
	state := g.State
	sl := g.StopLoss
	fill := g.Opening.FillPrice
	level := g.TrailLevel
	minTick := g.MinTick
	m.mu.Unlock()

	if state != Active && state != Trailing {
		return false, nil
	}
	stop, next, ok := m.trailStop(sl.Contract.Symbol, fill, current, level, minTick)
	if !ok || !stop.GreaterThan(sl.Price) {
		return false, nil
	}

	prev := sl.Price
	sl.Price = stop
	if _, err := m.broker.PlaceOrder(ctx, sl.Contract, m.venueOrder(&sl, true), m.opts.OrderTimeout); err != nil {
		metrics.OrdersPlaced.WithLabelValues(StopLoss.String(), "error").Inc()
		return false, fmt.Errorf("could not modify stop loss order %d to %s: %w", sl.OrderID, stop, err)
	}
	metrics.OrdersPlaced.WithLabelValues(StopLoss.String(), "ok").Inc()
	metrics.StopAdjustments.Inc()

	m.mu.Lock()
	if stop.GreaterThan(g.StopLoss.Price) {
		g.StopLoss.Price = stop
		g.TrailLevel = next
	}
	snap := g.Snapshot()
	m.mu.Unlock()
	m.save(ctx, snap)

	slog.Info("tightened stop loss", "group", id, "order-id", sl.OrderID, "from", prev, "to", stop, "price", current, "level", next)
	return true, nil
}

// Run feeds gateway order status notices into HandleStatus till the context
// is canceled.
func (m *Manager) Run(ctx context.Context) error {
	updates, err := m.broker.OrderUpdates()
	if err != nil {
		return err
	}
	defer updates.Close()

	updatesCh, err := topic.ReceiveCh(updates)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case st, ok := <-updatesCh:
			if !ok {
				return fmt.Errorf("order updates topic is closed: %w", os.ErrClosed)
			}
			if err := m.HandleStatus(ctx, st); err != nil {
				slog.Warn("could not handle order status notice", "order-id", st.OrderID, "status", st.Status, "err", err)
			}
		}
	}
}

// Done returns a channel that is closed when the group is closed and its
// sibling verification is complete.
func (m *Manager) Done(id uuid.UUID) (<-chan struct{}, error) {
	g, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return g.done, nil
}

// Group returns a snapshot of a group.
func (m *Manager) Group(id uuid.UUID) (*Group, error) {
	g, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return g.Snapshot(), nil
}

// Groups returns snapshots of all groups.
func (m *Manager) Groups() []*Group {
	m.mu.Lock()
	defer m.mu.Unlock()

	gs := make([]*Group, 0, len(m.groups))
	for _, g := range m.groups {
		gs = append(gs, g.Snapshot())
	}
	return gs
}
