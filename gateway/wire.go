// Copyright (c) 2025 BVK Chaitanya

package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Request is an outgoing frame. Every request carries the correlation token
// allocated for it; cancel requests reuse the token of the request they
// cancel.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Incoming frame types.
const (
	TypeData        = "data"
	TypeEnd         = "end"
	TypeError       = "error"
	TypeInfo        = "info"
	TypeOrderStatus = "order_status"
	TypeNextValidID = "next_valid_id"
)

// Message is an incoming frame. Frames with a positive ID belong to a
// request; others are notices.
type Message struct {
	ID   int64           `json:"id,omitempty"`
	Type string          `json:"type"`
	Code int             `json:"code,omitempty"`
	Text string          `json:"message,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (m *Message) hasData() bool {
	return len(m.Data) > 0 && string(m.Data) != "null"
}

// Request methods understood by the gateway.
const (
	MethodHello             = "hello"
	MethodCancel            = "cancel"
	MethodHistoricalBars    = "historical_bars"
	MethodRealtimeBars      = "realtime_bars"
	MethodContractDetails   = "contract_details"
	MethodOptionChainParams = "option_chain_params"
	MethodMarketSnapshot    = "market_snapshot"
	MethodPlaceOrder        = "place_order"
	MethodCancelOrder       = "cancel_order"
)

// APIError is an error reported by the gateway for a request.
type APIError struct {
	Code int
	Text string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Text)
}

// IsInformational returns true for gateway codes that report farm
// connectivity and similar status changes through error frames.
func IsInformational(code int) bool {
	return (code >= 2100 && code <= 2110) || code == 2158
}

type helloParams struct {
	ClientID int    `json:"client_id"`
	Account  string `json:"account,omitempty"`
	Version  string `json:"version"`
}

type helloReply struct {
	NextValidID   int64     `json:"next_valid_id"`
	ServerVersion int       `json:"server_version"`
	ServerTime    time.Time `json:"server_time"`
}

type nextValidID struct {
	OrderID int64 `json:"order_id"`
}

// Order status values reported by the gateway.
const (
	StatusPendingSubmit = "PendingSubmit"
	StatusPreSubmitted  = "PreSubmitted"
	StatusSubmitted     = "Submitted"
	StatusFilled        = "Filled"
	StatusPendingCancel = "PendingCancel"
	StatusCancelled     = "Cancelled"
	StatusApiCancelled  = "ApiCancelled"
	StatusInactive      = "Inactive"
)

// OrderStatus is an order status notice keyed by order id.
type OrderStatus struct {
	OrderID       int64           `json:"order_id"`
	ParentID      int64           `json:"parent_id,omitempty"`
	Status        string          `json:"status"`
	Filled        decimal.Decimal `json:"filled"`
	Remaining     decimal.Decimal `json:"remaining"`
	AvgFillPrice  decimal.Decimal `json:"avg_fill_price"`
	LastFillPrice decimal.Decimal `json:"last_fill_price"`
	WhyHeld       string          `json:"why_held,omitempty"`
	Message       string          `json:"message,omitempty"`
	Time          time.Time       `json:"time"`
}
