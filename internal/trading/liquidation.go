package trading

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"papertrade/internal/ledger"
	"papertrade/internal/repository"
)

// Monitor force-closes portfolios whose leveraged equity has reached zero.
// Liquidation is the only path into the liquidated state and is terminal.
type Monitor struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// CheckAndLiquidate recomputes total leveraged equity and wipes the portfolio
// when it is non-positive. Holdings without a price in the map are skipped;
// partial oracle data must not fail the check. Returns whether the portfolio
// is (now or already) liquidated.
func (m *Monitor) CheckAndLiquidate(ctx context.Context, portfolioID string, prices map[string]decimal.Decimal) (bool, error) {
	portfolio, err := m.Repo.GetPortfolioByID(ctx, portfolioID)
	if err != nil {
		return false, err
	}
	if portfolio == nil {
		return false, nil
	}
	if portfolio.Liquidated() {
		return true, nil
	}

	holdingsValue := decimal.Zero
	for _, h := range portfolio.Holdings {
		price, ok := prices[h.Symbol]
		if !ok {
			continue
		}
		holdingsValue = holdingsValue.Add(
			ledger.LeveragedMarketValue(h.Quantity, h.AvgCost, price, h.Leverage),
		)
	}
	totalAssets := portfolio.CashBalance.Add(holdingsValue)
	if totalAssets.IsPositive() {
		return false, nil
	}

	now := time.Now().UTC()
	err = m.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := m.Repo.DeleteHoldingsByPortfolioTx(ctx, tx, portfolio.ID); err != nil {
			return err
		}
		return m.Repo.LiquidatePortfolioTx(ctx, tx, portfolio.ID, now)
	})
	if err != nil {
		return false, err
	}

	if m.Logger != nil {
		m.Logger.Warn("portfolio liquidated",
			zap.String("portfolio_id", portfolio.ID),
			zap.String("total_assets", totalAssets.StringFixed(2)),
		)
	}
	return true, nil
}
