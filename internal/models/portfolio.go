package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PortfolioTypeAI     = "AI"
	PortfolioTypeManual = "MANUAL"
)

// Portfolio is one ledger (cash + positions) belonging to a user. A user holds at
// most one portfolio per type, enforced by the composite unique index.
type Portfolio struct {
	ID     string `gorm:"primaryKey;type:varchar(64)"`
	UserID string `gorm:"type:varchar(64);not null;uniqueIndex:uniq_portfolio_user_type,priority:1"`
	Type   string `gorm:"type:varchar(16);not null;uniqueIndex:uniq_portfolio_user_type,priority:2"`

	CashBalance decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	// Set once when the portfolio is force-closed; terminal.
	LiquidatedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`

	Holdings []Holding `gorm:"foreignKey:PortfolioID"`
}

func (Portfolio) TableName() string {
	return "portfolios"
}

func (p *Portfolio) Liquidated() bool {
	return p != nil && p.LiquidatedAt != nil
}
