package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is one open position aggregate. Within a portfolio the (symbol, leverage)
// pair is a single row; the same symbol at a different leverage is a separate holding
// and is never blended across tiers.
type Holding struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	PortfolioID string `gorm:"type:varchar(64);not null;uniqueIndex:uniq_holding_symbol_leverage,priority:1"`
	Symbol      string `gorm:"type:varchar(32);not null;uniqueIndex:uniq_holding_symbol_leverage,priority:2"`
	Leverage    int    `gorm:"not null;default:1;uniqueIndex:uniq_holding_symbol_leverage,priority:3"`

	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	AvgCost  decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Holding) TableName() string {
	return "holdings"
}
