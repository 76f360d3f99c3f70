package trading

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"papertrade/internal/models"
	"papertrade/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// InTx runs the callback with a nil transaction; the Tx methods mutate the
// maps directly, which is enough for single-goroutine test scenarios.
type stubRepo struct {
	mu         sync.Mutex
	users      map[string]models.User
	portfolios map[string]models.Portfolio
	holdings   map[string]models.Holding
	trades     []models.Trade
	snapshots  map[string]models.PortfolioSnapshot
	batchRuns  []models.BatchRun

	// conflictsLeft makes the next N UpdateHoldingTx calls fail with
	// ErrConflict, to exercise the executor's retry path.
	conflictsLeft int

	// beforeDebit runs once, without the lock held, before the next cash
	// debit. Tests use it to model a concurrent writer racing the debit.
	beforeDebit func()
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:      map[string]models.User{},
		portfolios: map[string]models.Portfolio{},
		holdings:   map[string]models.Holding{},
		snapshots:  map[string]models.PortfolioSnapshot{},
	}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) UpsertUser(ctx context.Context, item *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[item.ID] = *item
	return nil
}

func (s *stubRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *stubRepo) UpdateUserTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	u.AccessToken = accessToken
	u.RefreshToken = refreshToken
	u.TokenExpiresAt = expiresAt
	s.users[id] = u
	return nil
}

func (s *stubRepo) UpdateUserStyle(ctx context.Context, id, styleID, customPersona string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	u.TradingStyle = styleID
	u.CustomPersona = customPersona
	s.users[id] = u
	return nil
}

func (s *stubRepo) CreatePortfolio(ctx context.Context, item *models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios[item.ID] = *item
	return nil
}

func (s *stubRepo) GetPortfolioByID(ctx context.Context, id string) (*models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[id]
	if !ok {
		return nil, nil
	}
	p.Holdings = s.holdingsOfLocked(id)
	return &p, nil
}

func (s *stubRepo) GetPortfolioByUserAndType(ctx context.Context, userID, ptype string) (*models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.portfolios {
		if p.UserID == userID && p.Type == ptype {
			p.Holdings = s.holdingsOfLocked(p.ID)
			return &p, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListPortfolios(ctx context.Context, ptype string) ([]models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Portfolio
	for _, p := range s.portfolios {
		if ptype != "" && p.Type != ptype {
			continue
		}
		p.Holdings = s.holdingsOfLocked(p.ID)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) ListActivePortfolios(ctx context.Context, ptype string) ([]models.Portfolio, error) {
	all, _ := s.ListPortfolios(ctx, ptype)
	out := all[:0]
	for _, p := range all {
		if p.LiquidatedAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubRepo) AddPortfolioCashTx(ctx context.Context, tx *gorm.DB, id string, delta decimal.Decimal) error {
	if delta.IsNegative() {
		s.mu.Lock()
		hook := s.beforeDebit
		s.beforeDebit = nil
		s.mu.Unlock()
		if hook != nil {
			hook()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if delta.IsNegative() && p.CashBalance.LessThan(delta.Neg()) {
		return repository.ErrConflict
	}
	p.CashBalance = p.CashBalance.Add(delta)
	s.portfolios[id] = p
	return nil
}

func (s *stubRepo) LiquidatePortfolioTx(ctx context.Context, tx *gorm.DB, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if p.LiquidatedAt == nil {
		p.LiquidatedAt = &at
		s.portfolios[id] = p
	}
	return nil
}

func (s *stubRepo) DeletePortfolioCascade(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.portfolios, id)
	for hid, h := range s.holdings {
		if h.PortfolioID == id {
			delete(s.holdings, hid)
		}
	}
	kept := s.trades[:0]
	for _, t := range s.trades {
		if t.PortfolioID != id {
			kept = append(kept, t)
		}
	}
	s.trades = kept
	for key, snap := range s.snapshots {
		if snap.PortfolioID == id {
			delete(s.snapshots, key)
		}
	}
	return nil
}

func (s *stubRepo) holdingsOfLocked(portfolioID string) []models.Holding {
	var out []models.Holding
	for _, h := range s.holdings {
		if h.PortfolioID == portfolioID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *stubRepo) ListHoldingsByPortfolio(ctx context.Context, portfolioID string) ([]models.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdingsOfLocked(portfolioID), nil
}

func (s *stubRepo) ListHoldingsBySymbol(ctx context.Context, portfolioID, symbol string) ([]models.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Holding
	for _, h := range s.holdingsOfLocked(portfolioID) {
		if h.Symbol == symbol {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *stubRepo) CreateHoldingTx(ctx context.Context, tx *gorm.DB, item *models.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdings[item.ID] = *item
	return nil
}

func (s *stubRepo) UpdateHoldingTx(ctx context.Context, tx *gorm.DB, id string, oldQty, qty, avgCost decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		return repository.ErrConflict
	}
	h, ok := s.holdings[id]
	if !ok || !h.Quantity.Equal(oldQty) {
		return repository.ErrConflict
	}
	h.Quantity = qty
	h.AvgCost = avgCost
	s.holdings[id] = h
	return nil
}

func (s *stubRepo) DeleteHoldingTx(ctx context.Context, tx *gorm.DB, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holdings, id)
	return nil
}

func (s *stubRepo) DeleteHoldingsByPortfolioTx(ctx context.Context, tx *gorm.DB, portfolioID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.holdings {
		if h.PortfolioID == portfolioID {
			delete(s.holdings, id)
		}
	}
	return nil
}

func (s *stubRepo) ListHeldSymbols(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	var out []string
	for _, h := range s.holdings {
		if _, ok := seen[h.Symbol]; ok {
			continue
		}
		seen[h.Symbol] = struct{}{}
		out = append(out, h.Symbol)
	}
	sort.Strings(out)
	return out, nil
}

func (s *stubRepo) InsertTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, *item)
	return nil
}

func (s *stubRepo) ListTradesByUser(ctx context.Context, userID string, limit int) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trade
	for i := len(s.trades) - 1; i >= 0 && len(out) < limit; i-- {
		if s.trades[i].UserID == userID {
			out = append(out, s.trades[i])
		}
	}
	return out, nil
}

func (s *stubRepo) ListTradesByPortfolio(ctx context.Context, portfolioID string, limit int) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trade
	for i := len(s.trades) - 1; i >= 0 && len(out) < limit; i-- {
		if s.trades[i].PortfolioID == portfolioID {
			out = append(out, s.trades[i])
		}
	}
	return out, nil
}

func (s *stubRepo) UpsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[item.PortfolioID+"|"+item.Date] = *item
	return nil
}

func (s *stubRepo) ListPortfolioSnapshots(ctx context.Context, portfolioID, sinceDate string) ([]models.PortfolioSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PortfolioSnapshot
	for _, snap := range s.snapshots {
		if snap.PortfolioID != portfolioID {
			continue
		}
		if sinceDate != "" && snap.Date < sinceDate {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *stubRepo) InsertBatchRun(ctx context.Context, item *models.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchRuns = append(s.batchRuns, *item)
	return nil
}
