package trading

import (
	"github.com/shopspring/decimal"

	"papertrade/internal/ledger"
	"papertrade/internal/models"
)

// PortfolioTotals values a portfolio against a price map. Holdings whose
// symbol is missing from prices are skipped rather than failing the valuation.
// A liquidated portfolio is always worth exactly zero, whatever stale rows say.
func PortfolioTotals(p *models.Portfolio, prices map[string]decimal.Decimal) (total, cash, holdingsValue decimal.Decimal) {
	if p == nil || p.Liquidated() {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}
	holdingsValue = decimal.Zero
	for _, h := range p.Holdings {
		price, ok := prices[h.Symbol]
		if !ok {
			continue
		}
		holdingsValue = holdingsValue.Add(
			ledger.LeveragedMarketValue(h.Quantity, h.AvgCost, price, h.Leverage),
		)
	}
	cash = p.CashBalance
	total = cash.Add(holdingsValue)
	return total, cash, holdingsValue
}

// HoldingValue is one position's leveraged market value at the given price.
func HoldingValue(h *models.Holding, price decimal.Decimal) decimal.Decimal {
	return ledger.LeveragedMarketValue(h.Quantity, h.AvgCost, price, h.Leverage)
}
