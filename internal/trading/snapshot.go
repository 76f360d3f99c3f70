package trading

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/models"
	"papertrade/internal/repository"
)

// Recorder persists one equity data point per portfolio per UTC calendar day.
// Re-recording within the same day overwrites, so repeated runs converge to a
// single row holding the latest values.
type Recorder struct {
	Repo   repository.Repository
	Logger *zap.Logger

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (r *Recorder) today() string {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return now().UTC().Format("2006-01-02")
}

// RecordFor snapshots one portfolio against the given price map.
func (r *Recorder) RecordFor(ctx context.Context, portfolioID string, prices map[string]decimal.Decimal) error {
	portfolio, err := r.Repo.GetPortfolioByID(ctx, portfolioID)
	if err != nil {
		return err
	}
	if portfolio == nil {
		return nil
	}
	return r.record(ctx, portfolio, prices)
}

// RecordAll snapshots the entire population. Per-portfolio failures are logged
// and skipped so one bad row cannot lose everyone else's data point.
func (r *Recorder) RecordAll(ctx context.Context, prices map[string]decimal.Decimal) error {
	portfolios, err := r.Repo.ListPortfolios(ctx, "")
	if err != nil {
		return err
	}
	for i := range portfolios {
		if err := r.record(ctx, &portfolios[i], prices); err != nil {
			if r.Logger != nil {
				r.Logger.Warn("snapshot failed",
					zap.String("portfolio_id", portfolios[i].ID),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

func (r *Recorder) record(ctx context.Context, portfolio *models.Portfolio, prices map[string]decimal.Decimal) error {
	total, cash, holdingsValue := PortfolioTotals(portfolio, prices)
	return r.Repo.UpsertPortfolioSnapshot(ctx, &models.PortfolioSnapshot{
		PortfolioID:   portfolio.ID,
		Date:          r.today(),
		TotalAssets:   total,
		CashBalance:   cash,
		HoldingsValue: holdingsValue,
	})
}
