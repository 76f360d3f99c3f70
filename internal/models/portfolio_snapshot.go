package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is one equity data point per portfolio per calendar day.
// Re-recording the same day overwrites the row (upsert on the composite key).
type PortfolioSnapshot struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	PortfolioID string `gorm:"type:varchar(64);not null;uniqueIndex:uniq_snapshot_portfolio_date,priority:1"`

	// Calendar date as "YYYY-MM-DD" in UTC.
	Date string `gorm:"type:varchar(10);not null;uniqueIndex:uniq_snapshot_portfolio_date,priority:2"`

	TotalAssets   decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	CashBalance   decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	HoldingsValue decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}
