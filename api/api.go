// Copyright (c) 2023 BVK Chaitanya

// Package api defines the json messages served by a running session.
package api

import (
	"time"

	"github.com/bvk/orbtrader/order"
)

const StatusPath = "/status"

type StatusResponse struct {
	PID int

	StartTime time.Time

	// State is the current trading state.
	State string

	Connected bool

	// PendingRequests is the number of unresolved gateway requests.
	PendingRequests int

	// ActiveGroup is the id of the group being managed, if any.
	ActiveGroup string `json:",omitempty"`

	Groups []*order.Group
}
