// Copyright (c) 2025 BVK Chaitanya

package order

import (
	"fmt"
	"slices"
	"time"

	"github.com/bvk/orbtrader/gateway"
	"github.com/bvk/orbtrader/instrument"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role int

const (
	Opening Role = iota + 1
	TakeProfit
	StopLoss
)

func (r Role) String() string {
	switch r {
	case Opening:
		return "opening"
	case TakeProfit:
		return "take-profit"
	case StopLoss:
		return "stop-loss"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

type Status int

const (
	Created Status = iota
	Submitted
	Acknowledged
	Filled
	Cancelled
	Rejected
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Submitted:
		return "submitted"
	case Acknowledged:
		return "acknowledged"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) IsTerminal() bool {
	return s == Filled || s == Cancelled || s == Rejected
}

// transitions lists the allowed next statuses. Terminal statuses have none.
// Venue notices can overtake placement acknowledgements, so a created record
// may jump ahead.
var transitions = map[Status][]Status{
	Created:      {Submitted, Acknowledged, Filled, Cancelled, Rejected},
	Submitted:    {Acknowledged, Filled, Cancelled, Rejected},
	Acknowledged: {Filled, Cancelled, Rejected},
}

func canTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// isStale returns true for a non-terminal notice that is behind the current
// status, which happens when notices and acknowledgements race.
func isStale(from, to Status) bool {
	return !to.IsTerminal() && !from.IsTerminal() && to <= from
}

// venueStatus maps a gateway order status into a record status. Transient
// statuses map to false.
func venueStatus(s string) (Status, bool) {
	switch s {
	case gateway.StatusPreSubmitted, gateway.StatusSubmitted:
		return Acknowledged, true
	case gateway.StatusFilled:
		return Filled, true
	case gateway.StatusCancelled, gateway.StatusApiCancelled:
		return Cancelled, true
	case gateway.StatusInactive:
		return Rejected, true
	}
	return 0, false
}

// Record is one order of a bracket group.
type Record struct {
	OrderID  int64
	Role     Role
	ParentID int64

	Contract  instrument.Contract
	Action    string
	OrderType string

	// Price is the limit price for limit orders and the trigger price for stop
	// orders.
	Price    decimal.Decimal
	Quantity decimal.Decimal

	Status    Status
	FillPrice decimal.Decimal
	FillTime  time.Time

	// Reason holds the venue message for rejected orders.
	Reason string
}

func (r *Record) String() string {
	return fmt.Sprintf("%s:%d", r.Role, r.OrderID)
}

type State int

const (
	AwaitingFill State = iota
	Active
	Trailing
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingFill:
		return "awaiting-fill"
	case Active:
		return "active"
	case Trailing:
		return "trailing"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Group is a bracket of an opening order and its two protective orders.
type Group struct {
	ID uuid.UUID

	Opening    Record
	TakeProfit Record
	StopLoss   Record

	State State

	MinTick decimal.Decimal

	// TrailLevel is the last profit milestone applied to the stop loss.
	TrailLevel int

	CloseReason string

	// Fault holds the protocol fault found after the group was closed, if any.
	Fault string

	CreateTime time.Time
	CloseTime  time.Time
}

// Snapshot returns a copy of the group.
func (g *Group) Snapshot() *Group {
	c := *g
	return &c
}

func (g *Group) String() string {
	return fmt.Sprintf("group:%s", g.ID)
}

func (g *Group) record(orderID int64) *Record {
	switch orderID {
	case g.Opening.OrderID:
		return &g.Opening
	case g.TakeProfit.OrderID:
		return &g.TakeProfit
	case g.StopLoss.OrderID:
		return &g.StopLoss
	}
	return nil
}

// sibling returns the other protective order.
func (g *Group) sibling(r *Record) *Record {
	if r.Role == TakeProfit {
		return &g.StopLoss
	}
	return &g.TakeProfit
}
