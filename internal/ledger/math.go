// Package ledger holds the pure valuation arithmetic for leveraged paper
// positions. Nothing in here touches storage; every mutation path in the
// service funnels through these functions so the formulas live in one place.
package ledger

import (
	"github.com/shopspring/decimal"
)

// MinLeverage and MaxLeverage bound the synthetic P&L multiplier. Leverage here
// is not margin borrowing; it linearly amplifies unrealized P&L only.
const (
	MinLeverage = 1
	MaxLeverage = 10
)

// Epsilon is the quantity below which a holding is considered fully closed.
var Epsilon = decimal.RequireFromString("0.00001")

// ClampLeverage normalizes an arbitrary requested leverage into [1, 10].
func ClampLeverage(leverage int) int {
	if leverage < MinLeverage {
		return MinLeverage
	}
	if leverage > MaxLeverage {
		return MaxLeverage
	}
	return leverage
}

// LeveragedMarketValue returns quantity * (avgCost + (price - avgCost) * leverage).
// The cost basis stays unleveraged; only the unrealized P&L is amplified. No floor
// is applied: a deep leveraged loss can drive this negative, which is what the
// liquidation check needs to see.
func LeveragedMarketValue(quantity, avgCost, price decimal.Decimal, leverage int) decimal.Decimal {
	lev := decimal.NewFromInt(int64(leverage))
	return quantity.Mul(avgCost.Add(price.Sub(avgCost).Mul(lev)))
}

// LeveragedSaleProceeds is LeveragedMarketValue floored at zero: a seller can be
// wiped out but never receives a cash debit.
func LeveragedSaleProceeds(sellQty, avgCost, price decimal.Decimal, leverage int) decimal.Decimal {
	v := LeveragedMarketValue(sellQty, avgCost, price, leverage)
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// BlendAvgCost returns the weighted-average cost after topping up oldQty at
// oldAvgCost with addQty at price. Callers must only blend within one
// (symbol, leverage) aggregate.
func BlendAvgCost(oldAvgCost, oldQty, price, addQty decimal.Decimal) decimal.Decimal {
	totalQty := oldQty.Add(addQty)
	if totalQty.IsZero() {
		return price
	}
	return oldAvgCost.Mul(oldQty).Add(price.Mul(addQty)).Div(totalQty)
}
