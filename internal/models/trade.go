package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeSideBuy  = "BUY"
	TradeSideSell = "SELL"
)

// Trade is an append-only audit record of one executed BUY or SELL. Rows are never
// updated; they are deleted only when the owning portfolio is closed.
type Trade struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	UserID      string `gorm:"type:varchar(64);not null;index"`
	PortfolioID string `gorm:"type:varchar(64);not null;index"`

	Symbol   string          `gorm:"type:varchar(32);not null"`
	Side     string          `gorm:"type:varchar(8);not null"`
	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Total    decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	// For a SELL spanning leverage tiers this is the quantity-weighted average
	// rounded to the nearest integer; proceeds are still computed per tier.
	Leverage int `gorm:"not null;default:1"`

	Reason    string `gorm:"type:text"`
	Monologue string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Trade) TableName() string {
	return "trades"
}
