// Copyright (c) 2025 BVK Chaitanya

package instrument

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	nickel = decimal.RequireFromString("0.05")
	dime   = decimal.RequireFromString("0.10")
	penny  = decimal.RequireFromString("0.01")
	three  = decimal.NewFromInt(3)
)

// TickSize returns the minimum price increment for an option premium.
// Index options on SPX trade in nickels below $3 and dimes above; other
// symbols use the venue reported minTick, or a penny when it is unknown.
func TickSize(symbol string, price, minTick decimal.Decimal) decimal.Decimal {
	if strings.EqualFold(symbol, "SPX") {
		if price.LessThan(three) {
			return nickel
		}
		return dime
	}
	if minTick.IsPositive() {
		return minTick
	}
	return penny
}

// RoundDown rounds the price down to a multiple of the tick.
func RoundDown(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Div(tick).Floor().Mul(tick)
}

// RoundNearest rounds the price to the nearest multiple of the tick, with
// ties going to the even multiple.
func RoundNearest(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Div(tick).RoundBank(0).Mul(tick)
}
