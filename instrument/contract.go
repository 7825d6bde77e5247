// Copyright (c) 2025 BVK Chaitanya

package instrument

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	Stock  Kind = "STK"
	Index  Kind = "IND"
	Option Kind = "OPT"
)

type Right string

const (
	Call Right = "C"
	Put  Right = "P"
)

func (r Right) String() string {
	switch r {
	case Call:
		return "CALL"
	case Put:
		return "PUT"
	}
	return string(r)
}

// ExpirationLayout is the date format used for option expirations.
const ExpirationLayout = "20060102"

// Contract identifies a tradable instrument. Contracts are values and are
// never modified after construction.
type Contract struct {
	Symbol   string `json:"symbol"`
	Kind     Kind   `json:"sec_type"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`

	// ConID is the venue-assigned contract id, when known.
	ConID int64 `json:"con_id,omitempty"`

	Expiration string          `json:"expiration,omitempty"`
	Strike     decimal.Decimal `json:"strike"`
	Right      Right           `json:"right,omitempty"`
	Multiplier int             `json:"multiplier,omitempty"`
}

func (c Contract) String() string {
	if c.Kind != Option {
		return fmt.Sprintf("%s/%s", c.Symbol, c.Kind)
	}
	return fmt.Sprintf("%s %s %s %s", c.Symbol, c.Expiration, c.Strike, c.Right)
}

// WithConID returns a copy of the contract with the venue contract id set.
func (c Contract) WithConID(id int64) Contract {
	c.ConID = id
	return c
}

// Check validates the contract fields for its kind.
func (c Contract) Check() error {
	if len(c.Symbol) == 0 {
		return fmt.Errorf("contract symbol cannot be empty: %w", os.ErrInvalid)
	}
	switch c.Kind {
	case Stock, Index:
		return nil
	case Option:
	default:
		return fmt.Errorf("contract kind %q is not supported: %w", c.Kind, os.ErrInvalid)
	}
	if _, err := time.Parse(ExpirationLayout, c.Expiration); err != nil {
		return fmt.Errorf("option expiration %q must be in YYYYMMDD format: %w", c.Expiration, os.ErrInvalid)
	}
	if !c.Strike.IsPositive() {
		return fmt.Errorf("option strike %s must be positive: %w", c.Strike, os.ErrInvalid)
	}
	if c.Right != Call && c.Right != Put {
		return fmt.Errorf("option right %q is invalid: %w", c.Right, os.ErrInvalid)
	}
	if c.Multiplier <= 0 {
		return fmt.Errorf("option multiplier %d must be positive: %w", c.Multiplier, os.ErrInvalid)
	}
	return nil
}

var indexSymbols = []string{"SPX", "VIX", "NDX", "RUT", "XSP"}

// UnderlyingKind returns the contract kind used to look up an underlying
// symbol.
func UnderlyingKind(symbol string) Kind {
	for _, s := range indexSymbols {
		if strings.EqualFold(s, symbol) {
			return Index
		}
	}
	return Stock
}

// Underlying returns the contract for an option underlying.
func Underlying(symbol, exchange, currency string) Contract {
	return Contract{
		Symbol:   strings.ToUpper(symbol),
		Kind:     UnderlyingKind(symbol),
		Exchange: exchange,
		Currency: currency,
	}
}
