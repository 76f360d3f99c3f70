package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"papertrade/internal/models"
	"papertrade/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// dbOrTx lets Tx-suffixed methods run inside a surrounding transaction when one
// is given, or standalone otherwise.
func (s *Store) dbOrTx(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

// --- Users ------------------------------------------------------------------

func (s *Store) UpsertUser(ctx context.Context, item *models.User) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"email",
			"avatar",
			"bio",
			"access_token",
			"refresh_token",
			"token_expires_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateUserTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token":     accessToken,
			"refresh_token":    refreshToken,
			"token_expires_at": expiresAt,
		}).Error
}

func (s *Store) UpdateUserStyle(ctx context.Context, id, styleID, customPersona string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"trading_style":  styleID,
			"custom_persona": customPersona,
		}).Error
}

// --- Portfolios -------------------------------------------------------------

func (s *Store) CreatePortfolio(ctx context.Context, item *models.Portfolio) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetPortfolioByID(ctx context.Context, id string) (*models.Portfolio, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Portfolio
	err := s.db.WithContext(ctx).Preload("Holdings").Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetPortfolioByUserAndType(ctx context.Context, userID, ptype string) (*models.Portfolio, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Portfolio
	err := s.db.WithContext(ctx).Preload("Holdings").
		Where("user_id = ? AND type = ?", userID, strings.ToUpper(ptype)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPortfolios(ctx context.Context, ptype string) ([]models.Portfolio, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Preload("Holdings").Model(&models.Portfolio{})
	if ptype != "" {
		query = query.Where("type = ?", strings.ToUpper(ptype))
	}
	var items []models.Portfolio
	if err := query.Order("created_at asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActivePortfolios(ctx context.Context, ptype string) ([]models.Portfolio, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Preload("Holdings").
		Model(&models.Portfolio{}).
		Where("liquidated_at IS NULL")
	if ptype != "" {
		query = query.Where("type = ?", strings.ToUpper(ptype))
	}
	var items []models.Portfolio
	if err := query.Order("created_at asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// AddPortfolioCashTx adjusts the cash balance in place. Debits are guarded by
// the current balance: a debit that would drive cash negative means the caller
// spent against a stale read, so it fails with ErrConflict for a retry instead
// of corrupting the balance. Credits are unconditional.
func (s *Store) AddPortfolioCashTx(ctx context.Context, tx *gorm.DB, id string, delta decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	query := s.dbOrTx(ctx, tx).Model(&models.Portfolio{}).Where("id = ?", id)
	if delta.IsNegative() {
		query = query.Where("cash_balance >= ?", delta.Neg())
	}
	res := query.Update("cash_balance", gorm.Expr("cash_balance + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if delta.IsNegative() && res.RowsAffected == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (s *Store) LiquidatePortfolioTx(ctx context.Context, tx *gorm.DB, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.dbOrTx(ctx, tx).Model(&models.Portfolio{}).
		Where("id = ? AND liquidated_at IS NULL", id).
		Updates(map[string]any{
			"cash_balance":  decimal.Zero,
			"liquidated_at": at,
		}).Error
}

func (s *Store) DeletePortfolioCascade(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("portfolio_id = ?", id).Delete(&models.Holding{}).Error; err != nil {
			return err
		}
		if err := tx.Where("portfolio_id = ?", id).Delete(&models.Trade{}).Error; err != nil {
			return err
		}
		if err := tx.Where("portfolio_id = ?", id).Delete(&models.PortfolioSnapshot{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Portfolio{}).Error
	})
}

// --- Holdings ---------------------------------------------------------------

func (s *Store) ListHoldingsByPortfolio(ctx context.Context, portfolioID string) ([]models.Holding, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Holding
	if err := s.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("symbol asc, leverage asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListHoldingsBySymbol(ctx context.Context, portfolioID, symbol string) ([]models.Holding, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Holding
	if err := s.db.WithContext(ctx).
		Where("portfolio_id = ? AND symbol = ?", portfolioID, symbol).
		Order("leverage asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CreateHoldingTx(ctx context.Context, tx *gorm.DB, item *models.Holding) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.dbOrTx(ctx, tx).Create(item).Error
}

// UpdateHoldingTx writes new quantity and average cost, guarded by the quantity
// the caller read. A zero-row update means another writer got there first.
func (s *Store) UpdateHoldingTx(ctx context.Context, tx *gorm.DB, id string, oldQty, qty, avgCost decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	res := s.dbOrTx(ctx, tx).Model(&models.Holding{}).
		Where("id = ? AND quantity = ?", id, oldQty).
		Updates(map[string]any{
			"quantity": qty,
			"avg_cost": avgCost,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (s *Store) DeleteHoldingTx(ctx context.Context, tx *gorm.DB, id string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.dbOrTx(ctx, tx).Where("id = ?", id).Delete(&models.Holding{}).Error
}

func (s *Store) DeleteHoldingsByPortfolioTx(ctx context.Context, tx *gorm.DB, portfolioID string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.dbOrTx(ctx, tx).Where("portfolio_id = ?", portfolioID).Delete(&models.Holding{}).Error
}

func (s *Store) ListHeldSymbols(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var symbols []string
	if err := s.db.WithContext(ctx).Model(&models.Holding{}).
		Distinct("symbol").
		Pluck("symbol", &symbols).Error; err != nil {
		return nil, err
	}
	return symbols, nil
}

// --- Trades -----------------------------------------------------------------

func (s *Store) InsertTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.dbOrTx(ctx, tx).Create(item).Error
}

func (s *Store) ListTradesByUser(ctx context.Context, userID string, limit int) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var items []models.Trade
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTradesByPortfolio(ctx context.Context, portfolioID string, limit int) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var items []models.Trade
	if err := s.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("created_at desc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Snapshots --------------------------------------------------------------

func (s *Store) UpsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "portfolio_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_assets",
			"cash_balance",
			"holdings_value",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListPortfolioSnapshots(ctx context.Context, portfolioID, sinceDate string) ([]models.PortfolioSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PortfolioSnapshot{}).
		Where("portfolio_id = ?", portfolioID)
	if sinceDate != "" {
		query = query.Where("date >= ?", sinceDate)
	}
	var items []models.PortfolioSnapshot
	if err := query.Order("date asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Batch runs -------------------------------------------------------------

func (s *Store) InsertBatchRun(ctx context.Context, item *models.BatchRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}
