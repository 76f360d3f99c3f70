package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"papertrade/internal/models"
)

// ErrConflict is returned by conditional updates when the row changed under us
// (lost update detected). Callers are expected to re-read and retry.
var ErrConflict = errors.New("repository: concurrent modification")

// Repository is the persistence boundary for the trading engine. Methods with a
// Tx suffix take the surrounding gorm transaction so one trade's mutations
// commit together or not at all.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Users.
	UpsertUser(ctx context.Context, item *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUserTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error
	UpdateUserStyle(ctx context.Context, id, styleID, customPersona string) error

	// Portfolios.
	CreatePortfolio(ctx context.Context, item *models.Portfolio) error
	GetPortfolioByID(ctx context.Context, id string) (*models.Portfolio, error)
	GetPortfolioByUserAndType(ctx context.Context, userID, ptype string) (*models.Portfolio, error)
	ListPortfolios(ctx context.Context, ptype string) ([]models.Portfolio, error)
	ListActivePortfolios(ctx context.Context, ptype string) ([]models.Portfolio, error)
	AddPortfolioCashTx(ctx context.Context, tx *gorm.DB, id string, delta decimal.Decimal) error
	LiquidatePortfolioTx(ctx context.Context, tx *gorm.DB, id string, at time.Time) error
	DeletePortfolioCascade(ctx context.Context, id string) error

	// Holdings.
	ListHoldingsByPortfolio(ctx context.Context, portfolioID string) ([]models.Holding, error)
	ListHoldingsBySymbol(ctx context.Context, portfolioID, symbol string) ([]models.Holding, error)
	CreateHoldingTx(ctx context.Context, tx *gorm.DB, item *models.Holding) error
	UpdateHoldingTx(ctx context.Context, tx *gorm.DB, id string, oldQty, qty, avgCost decimal.Decimal) error
	DeleteHoldingTx(ctx context.Context, tx *gorm.DB, id string) error
	DeleteHoldingsByPortfolioTx(ctx context.Context, tx *gorm.DB, portfolioID string) error
	ListHeldSymbols(ctx context.Context) ([]string, error)

	// Trades (append-only).
	InsertTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error
	ListTradesByUser(ctx context.Context, userID string, limit int) ([]models.Trade, error)
	ListTradesByPortfolio(ctx context.Context, portfolioID string, limit int) ([]models.Trade, error)

	// Snapshots.
	UpsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error
	ListPortfolioSnapshots(ctx context.Context, portfolioID, sinceDate string) ([]models.PortfolioSnapshot, error)

	// Batch runs.
	InsertBatchRun(ctx context.Context, item *models.BatchRun) error
}
