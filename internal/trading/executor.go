package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"papertrade/internal/ledger"
	"papertrade/internal/models"
	"papertrade/internal/repository"
)

const defaultExecRetries = 3

var oneHundred = decimal.NewFromInt(100)

// Executor applies one decision to one portfolio. Cash, holdings and the audit
// trade commit in a single transaction; a lost update against a concurrent
// writer is retried from a fresh read.
type Executor struct {
	Repo   repository.Repository
	Oracle PriceOracle
	Logger *zap.Logger

	// Spends below MinSpend are dropped as dust. Zero means the default of 1.
	MinSpend decimal.Decimal
}

// ExecResult reports what one Execute call did. Skipped no-ops are results,
// not errors, so the batch loop stays uniform.
type ExecResult struct {
	Executed bool
	Skipped  string

	Side     string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Total    decimal.Decimal
	Leverage int
}

func skipped(reason string) ExecResult {
	return ExecResult{Skipped: reason}
}

// Execute fetches the price once and applies the decision. The same price is
// used for every mutation in the call; it is never re-fetched mid-transaction.
func (e *Executor) Execute(ctx context.Context, userID, portfolioID string, d Decision) (ExecResult, error) {
	switch d.Action {
	case ActionHold:
		return skipped("hold"), nil
	case ActionBuy, ActionSell:
	default:
		return skipped("unknown_action"), nil
	}

	price, err := e.Oracle.GetPrice(ctx, d.Symbol)
	if err != nil {
		return ExecResult{}, fmt.Errorf("price lookup for %s: %w", d.Symbol, err)
	}
	if !price.IsPositive() {
		return ExecResult{}, fmt.Errorf("non-positive price %s for %s", price.String(), d.Symbol)
	}

	for attempt := 0; ; attempt++ {
		res, err := e.apply(ctx, userID, portfolioID, d, price)
		if errors.Is(err, repository.ErrConflict) && attempt < defaultExecRetries {
			if e.Logger != nil {
				e.Logger.Debug("trade retry after concurrent update",
					zap.String("portfolio_id", portfolioID),
					zap.String("symbol", d.Symbol),
					zap.Int("attempt", attempt+1),
				)
			}
			continue
		}
		return res, err
	}
}

func (e *Executor) apply(ctx context.Context, userID, portfolioID string, d Decision, price decimal.Decimal) (ExecResult, error) {
	portfolio, err := e.Repo.GetPortfolioByID(ctx, portfolioID)
	if err != nil {
		return ExecResult{}, err
	}
	if portfolio == nil {
		return skipped("portfolio_not_found"), nil
	}

	if d.Action == ActionBuy {
		return e.buy(ctx, userID, portfolio, d, price)
	}
	return e.sell(ctx, userID, portfolio, d, price)
}

func (e *Executor) buy(ctx context.Context, userID string, portfolio *models.Portfolio, d Decision, price decimal.Decimal) (ExecResult, error) {
	pct := decimal.NewFromFloat(d.Percentage)
	spend := portfolio.CashBalance.Mul(pct).Div(oneHundred)

	minSpend := e.MinSpend
	if minSpend.IsZero() {
		minSpend = decimal.NewFromInt(1)
	}
	if spend.LessThan(minSpend) {
		return skipped("dust"), nil
	}

	quantity := spend.Div(price)
	leverage := ledger.ClampLeverage(d.Leverage)

	var existing *models.Holding
	for i := range portfolio.Holdings {
		h := &portfolio.Holdings[i]
		if h.Symbol == d.Symbol && h.Leverage == leverage {
			existing = h
			break
		}
	}

	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := e.Repo.AddPortfolioCashTx(ctx, tx, portfolio.ID, spend.Neg()); err != nil {
			return err
		}
		if existing != nil {
			blended := ledger.BlendAvgCost(existing.AvgCost, existing.Quantity, price, quantity)
			if err := e.Repo.UpdateHoldingTx(ctx, tx, existing.ID,
				existing.Quantity, existing.Quantity.Add(quantity), blended); err != nil {
				return err
			}
		} else {
			if err := e.Repo.CreateHoldingTx(ctx, tx, &models.Holding{
				ID:          uuid.NewString(),
				PortfolioID: portfolio.ID,
				Symbol:      d.Symbol,
				Leverage:    leverage,
				Quantity:    quantity,
				AvgCost:     price,
			}); err != nil {
				return err
			}
		}
		return e.Repo.InsertTradeTx(ctx, tx, &models.Trade{
			ID:          uuid.NewString(),
			UserID:      userID,
			PortfolioID: portfolio.ID,
			Symbol:      d.Symbol,
			Side:        models.TradeSideBuy,
			Quantity:    quantity,
			Price:       price,
			Total:       spend,
			Leverage:    leverage,
			Reason:      d.Reason,
			Monologue:   d.Monologue,
			CreatedAt:   time.Now().UTC(),
		})
	})
	if err != nil {
		return ExecResult{}, err
	}

	if e.Logger != nil {
		e.Logger.Info("trade executed",
			zap.String("portfolio_id", portfolio.ID),
			zap.String("side", models.TradeSideBuy),
			zap.String("symbol", d.Symbol),
			zap.String("spend", spend.StringFixed(2)),
			zap.Int("leverage", leverage),
		)
	}
	return ExecResult{
		Executed: true,
		Side:     models.TradeSideBuy,
		Quantity: quantity,
		Price:    price,
		Total:    spend,
		Leverage: leverage,
	}, nil
}

// sellLeg is one holding's share of a SELL spanning leverage tiers.
type sellLeg struct {
	holding   models.Holding
	sellQty   decimal.Decimal
	remaining decimal.Decimal
	proceeds  decimal.Decimal
}

func (e *Executor) sell(ctx context.Context, userID string, portfolio *models.Portfolio, d Decision, price decimal.Decimal) (ExecResult, error) {
	var matching []models.Holding
	for _, h := range portfolio.Holdings {
		if h.Symbol == d.Symbol {
			matching = append(matching, h)
		}
	}
	if len(matching) == 0 {
		return skipped("no_holding"), nil
	}

	pct := decimal.NewFromFloat(d.Percentage)
	totalQty := decimal.Zero
	proceeds := decimal.Zero
	weighted := decimal.Zero
	legs := make([]sellLeg, 0, len(matching))
	for _, h := range matching {
		sellQty := h.Quantity.Mul(pct).Div(oneHundred)
		if !sellQty.IsPositive() {
			continue
		}
		legProceeds := ledger.LeveragedSaleProceeds(sellQty, h.AvgCost, price, h.Leverage)
		legs = append(legs, sellLeg{
			holding:   h,
			sellQty:   sellQty,
			remaining: h.Quantity.Sub(sellQty),
			proceeds:  legProceeds,
		})
		totalQty = totalQty.Add(sellQty)
		proceeds = proceeds.Add(legProceeds)
		weighted = weighted.Add(sellQty.Mul(decimal.NewFromInt(int64(h.Leverage))))
	}
	if !totalQty.IsPositive() {
		return skipped("nothing_to_sell"), nil
	}

	// Reported leverage on the audit row is the quantity-weighted average
	// rounded to the nearest integer; proceeds stay exact per tier.
	leverage := int(weighted.Div(totalQty).Round(0).IntPart())

	err := e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := e.Repo.AddPortfolioCashTx(ctx, tx, portfolio.ID, proceeds); err != nil {
			return err
		}
		for _, leg := range legs {
			if leg.remaining.LessThanOrEqual(ledger.Epsilon) {
				if err := e.Repo.DeleteHoldingTx(ctx, tx, leg.holding.ID); err != nil {
					return err
				}
				continue
			}
			if err := e.Repo.UpdateHoldingTx(ctx, tx, leg.holding.ID,
				leg.holding.Quantity, leg.remaining, leg.holding.AvgCost); err != nil {
				return err
			}
		}
		return e.Repo.InsertTradeTx(ctx, tx, &models.Trade{
			ID:          uuid.NewString(),
			UserID:      userID,
			PortfolioID: portfolio.ID,
			Symbol:      d.Symbol,
			Side:        models.TradeSideSell,
			Quantity:    totalQty,
			Price:       price,
			Total:       proceeds,
			Leverage:    leverage,
			Reason:      d.Reason,
			Monologue:   d.Monologue,
			CreatedAt:   time.Now().UTC(),
		})
	})
	if err != nil {
		return ExecResult{}, err
	}

	if e.Logger != nil {
		e.Logger.Info("trade executed",
			zap.String("portfolio_id", portfolio.ID),
			zap.String("side", models.TradeSideSell),
			zap.String("symbol", d.Symbol),
			zap.String("proceeds", proceeds.StringFixed(2)),
			zap.Int("leverage", leverage),
		)
	}
	return ExecResult{
		Executed: true,
		Side:     models.TradeSideSell,
		Quantity: totalQty,
		Price:    price,
		Total:    proceeds,
		Leverage: leverage,
	}, nil
}
