// Copyright (c) 2025 BVK Chaitanya

// Package engine drives one trading session through its stages: connect,
// wait for the opening range, watch for a breakout, estimate the gamma
// exposure, execute a bracket and manage it till it closes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bvk/orbtrader/breakout"
	"github.com/bvk/orbtrader/errs"
	"github.com/bvk/orbtrader/gex"
	"github.com/bvk/orbtrader/journal"
	"github.com/bvk/orbtrader/metrics"
	"github.com/bvk/orbtrader/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
	"golang.org/x/sync/errgroup"
)

type State int

const (
	Connecting State = iota
	AwaitingRange
	MonitoringBreakout
	AnalyzingGex
	ExecutingTrade
	ManagingPosition
	Shutdown
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case AwaitingRange:
		return "AwaitingRange"
	case MonitoringBreakout:
		return "MonitoringBreakout"
	case AnalyzingGex:
		return "AnalyzingGex"
	case ExecutingTrade:
		return "ExecutingTrade"
	case ManagingPosition:
		return "ManagingPosition"
	case Shutdown:
		return "Shutdown"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// GexFailurePolicy selects what happens to a breakout when the gex provider
// fails.
type GexFailurePolicy string

const (
	// AbortCycle drops the breakout and waits for the next one.
	AbortCycle GexFailurePolicy = "abort-cycle"

	// DirectionOnly trades a call for a bullish and a put for a bearish
	// breakout.
	DirectionOnly GexFailurePolicy = "direction-only"
)

// Gateway connects the brokerage session.
type Gateway interface {
	Connect(ctx context.Context) error

	// Lost returns a channel that is closed when the connection drops.
	Lost() <-chan struct{}
}

// Signals computes the opening range and the breakout signals.
type Signals interface {
	OpeningRange(ctx context.Context) (*breakout.Range, error)
	NextSignal(ctx context.Context) (*breakout.Signal, error)
}

// Trader executes and manages bracket groups. It is implemented by the order
// manager.
type Trader interface {
	Execute(ctx context.Context, u *order.Underlying, plan *order.Plan, md order.MarketData) (*order.Group, error)
	Manage(ctx context.Context, id uuid.UUID, current decimal.Decimal) error
	Group(id uuid.UUID) (*order.Group, error)
	Done(id uuid.UUID) (<-chan struct{}, error)
	Run(ctx context.Context) error
}

type Journal interface {
	SaveTransition(ctx context.Context, t *journal.Transition) error
}

type Options struct {
	Underlying order.Underlying

	// GexFailure is required; there is no default policy.
	GexFailure GexFailurePolicy

	// TargetExpiration returns the option expiration traded when the gex
	// provider fails under the DirectionOnly policy.
	TargetExpiration func() string

	// ManageInterval is the period of the position management tick.
	ManageInterval time.Duration

	Journal Journal
}

func (v *Options) setDefaults() {
	if v.ManageInterval == 0 {
		v.ManageInterval = 5 * time.Second
	}
}

func (v *Options) Check() error {
	if len(v.Underlying.Symbol) == 0 {
		return fmt.Errorf("underlying symbol cannot be empty: %w", os.ErrInvalid)
	}
	switch v.GexFailure {
	case AbortCycle:
	case DirectionOnly:
		if v.TargetExpiration == nil {
			return fmt.Errorf("target expiration is required for the %s policy: %w", DirectionOnly, os.ErrInvalid)
		}
	case "":
		return fmt.Errorf("gex failure policy must be set: %w", os.ErrInvalid)
	default:
		return fmt.Errorf("gex failure policy %q is invalid: %w", v.GexFailure, os.ErrInvalid)
	}
	if v.ManageInterval <= 0 {
		return fmt.Errorf("manage interval must be positive: %w", os.ErrInvalid)
	}
	return nil
}

type Engine struct {
	opts Options

	gw      Gateway
	signals Signals
	gex     gex.Provider
	trader  Trader
	md      order.MarketData

	transitions *topic.Topic[*journal.Transition]

	mu    sync.Mutex
	state State
	seq   uint64
	group uuid.UUID
}

func New(gw Gateway, signals Signals, provider gex.Provider, trader Trader, md order.MarketData, opts *Options) (*Engine, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	e := &Engine{
		opts:        *opts,
		gw:          gw,
		signals:     signals,
		gex:         provider,
		trader:      trader,
		md:          md,
		transitions: topic.New[*journal.Transition](),
		state:       Connecting,
	}
	metrics.EngineState.Set(float64(Connecting))
	return e, nil
}

// Close closes the transitions topic.
func (e *Engine) Close() error {
	e.transitions.Close()
	return nil
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// GroupID returns the id of the bracket group of the session, if any.
func (e *Engine) GroupID() (uuid.UUID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.group, e.group != uuid.Nil
}

// Transitions returns a receiver for the engine state changes.
func (e *Engine) Transitions() (*topic.Receiver[*journal.Transition], error) {
	return topic.Subscribe(e.transitions, 0, false /* includeRecent */)
}

func (e *Engine) transition(ctx context.Context, to State, reason string) {
	e.mu.Lock()
	from := e.state
	if from == Shutdown {
		e.mu.Unlock()
		return
	}
	e.state = to
	e.seq++
	t := &journal.Transition{
		Seq:    e.seq,
		Time:   time.Now(),
		From:   from.String(),
		To:     to.String(),
		Reason: reason,
	}
	e.mu.Unlock()

	metrics.EngineState.Set(float64(to))
	slog.Info("engine state changed", "from", from, "to", to, "reason", reason)
	if e.opts.Journal != nil {
		if err := e.opts.Journal.SaveTransition(context.WithoutCancel(ctx), t); err != nil {
			slog.Error("could not save engine transition (ignored)", "seq", t.Seq, "err", err)
		}
	}
	e.transitions.Send(t)
}

// Run drives the session till the bracket group closes, the context is
// canceled, the gateway connection is lost or a stage fails. The engine is in
// the Shutdown state when Run returns.
func (e *Engine) Run(ctx context.Context) (status error) {
	defer func() {
		reason := "session is complete"
		if status != nil {
			reason = status.Error()
		}
		e.transition(ctx, Shutdown, reason)
	}()

	if err := e.gw.Connect(ctx); err != nil {
		return fmt.Errorf("could not connect to the gateway: %w", err)
	}
	e.transition(ctx, AwaitingRange, "connected")

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	lost := e.gw.Lost()
	var wg errgroup.Group
	wg.Go(func() error {
		select {
		case <-ctx.Done():
		case <-lost:
			cancel(fmt.Errorf("gateway connection dropped: %w", errs.ErrConnectionLost))
		}
		return nil
	})
	wg.Go(func() error {
		if err := e.trader.Run(ctx); err != nil && ctx.Err() == nil {
			cancel(fmt.Errorf("order updates have stopped: %w", err))
		}
		return nil
	})

	err := e.session(ctx)
	if err != nil && ctx.Err() != nil {
		err = context.Cause(ctx)
	}
	cancel(err)
	wg.Wait()
	return err
}

func (e *Engine) session(ctx context.Context) error {
	r, err := e.signals.OpeningRange(ctx)
	if err != nil {
		return fmt.Errorf("could not compute the opening range: %w", err)
	}
	e.transition(ctx, MonitoringBreakout, fmt.Sprintf("opening range is %s", r))

	for {
		sig, err := e.signals.NextSignal(ctx)
		if err != nil {
			return fmt.Errorf("could not wait for a breakout: %w", err)
		}
		e.transition(ctx, AnalyzingGex, fmt.Sprintf("%s breakout at %s", sig.Direction, sig.Spot))

		plan, err := e.analyze(ctx, sig)
		if err != nil {
			return err
		}
		if plan == nil {
			continue
		}

		g, err := e.trader.Execute(ctx, &e.opts.Underlying, plan, e.md)
		if err != nil {
			return fmt.Errorf("could not execute %s trade: %w", plan.Right, err)
		}
		e.mu.Lock()
		e.group = g.ID
		e.mu.Unlock()
		e.transition(ctx, ManagingPosition, fmt.Sprintf("bracket %s is submitted", g))

		return e.manage(ctx, g.ID)
	}
}

// analyze estimates the gex strike for a signal and returns the trade plan.
// Returns a nil plan after moving back to MonitoringBreakout when no trade
// should be taken for the signal.
func (e *Engine) analyze(ctx context.Context, sig *breakout.Signal) (*order.Plan, error) {
	res, err := e.gex.Estimate(ctx, e.opts.Underlying.Symbol)
	if err == nil && res == nil {
		err = fmt.Errorf("provider %s returned no strike: %w", e.gex.Name(), errs.ErrPartialData)
	}
	if err != nil {
		if ctx.Err() != nil || errs.IsFatal(err) {
			return nil, fmt.Errorf("could not estimate gex: %w", err)
		}
		slog.Warn("could not estimate gex", "provider", e.gex.Name(), "policy", e.opts.GexFailure, "err", err)
		if e.opts.GexFailure == AbortCycle {
			e.transition(ctx, MonitoringBreakout, fmt.Sprintf("gex is unavailable: %v", err))
			return nil, nil
		}
		plan := order.DirectionPlan(sig, e.opts.TargetExpiration())
		e.transition(ctx, ExecutingTrade, fmt.Sprintf("gex is unavailable; trading %s %s by direction", plan.Expiration, plan.Right))
		return plan, nil
	}

	plan, ok := order.NewPlan(sig, res)
	if !ok {
		e.transition(ctx, MonitoringBreakout, fmt.Sprintf("no trade for gex strike %s at spot %s", res.Strike, sig.Spot))
		return nil, nil
	}
	e.transition(ctx, ExecutingTrade, fmt.Sprintf("gex strike is %s for %s", res.Strike, res.Expiration))
	return plan, nil
}

// manage re-prices the option on every tick and passes the price to the
// trader till the group is done.
func (e *Engine) manage(ctx context.Context, id uuid.UUID) error {
	done, err := e.trader.Done(id)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(e.opts.ManageInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)

		case <-done:
			g, err := e.trader.Group(id)
			if err != nil {
				return err
			}
			if len(g.Fault) > 0 {
				return fmt.Errorf("bracket %s closed with a fault: %s: %w", id, g.Fault, errs.ErrProtocolFault)
			}
			slog.Info("bracket group is closed", "group", id, "reason", g.CloseReason)
			return nil

		case <-ticker.C:
			g, err := e.trader.Group(id)
			if err != nil {
				return err
			}
			if g.State != order.Active && g.State != order.Trailing {
				continue
			}
			price, err := e.md.Quote(ctx, g.Opening.Contract)
			if err != nil {
				if errs.IsFatal(err) {
					return err
				}
				if !errors.Is(err, context.Canceled) {
					slog.Warn("could not quote the option (will retry)", "group", id, "contract", g.Opening.Contract, "err", err)
				}
				continue
			}
			if err := e.trader.Manage(ctx, id, price); err != nil {
				slog.Warn("could not manage bracket group (will retry)", "group", id, "price", price, "err", err)
			}
		}
	}
}
