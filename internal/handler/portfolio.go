package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrade/internal/auth"
	"papertrade/internal/config"
	"papertrade/internal/models"
	"papertrade/internal/repository"
	"papertrade/internal/trading"
)

type PortfolioHandler struct {
	Repo     repository.Repository
	Oracle   trading.PriceOracle
	Sessions *auth.Sessions

	Session config.SessionConfig
	Trading config.TradingConfig
}

func (h *PortfolioHandler) Register(r *gin.Engine) {
	g := r.Group("/api/portfolio", auth.Middleware(h.Sessions, h.Session.CookieName))
	g.GET("", h.summary)
	g.GET("/history", h.history)
	g.GET("/trades", h.trades)
	g.POST("/manual", h.openManual)
	g.DELETE("/manual", h.closeManual)
}

type holdingView struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	Leverage     int             `json:"leverage"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	MarketValue  decimal.Decimal `json:"market_value"`
	PnL          decimal.Decimal `json:"pnl"`
}

type portfolioView struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	CashBalance   decimal.Decimal `json:"cash_balance"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	TotalAssets   decimal.Decimal `json:"total_assets"`
	Liquidated    bool            `json:"liquidated"`
	LiquidatedAt  *time.Time      `json:"liquidated_at,omitempty"`
	Holdings      []holdingView   `json:"holdings"`
}

func (h *PortfolioHandler) summary(c *gin.Context) {
	claims, _ := auth.CurrentUser(c)
	ptype := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("type", models.PortfolioTypeAI)))
	if ptype != models.PortfolioTypeAI && ptype != models.PortfolioTypeManual {
		Error(c, http.StatusBadRequest, "invalid type", nil)
		return
	}
	ctx := c.Request.Context()
	portfolio, err := h.Repo.GetPortfolioByUserAndType(ctx, claims.UserID, ptype)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if portfolio == nil {
		Error(c, http.StatusNotFound, "portfolio not found", nil)
		return
	}

	view, err := h.buildView(c, portfolio)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, view, nil)
}

func (h *PortfolioHandler) buildView(c *gin.Context, portfolio *models.Portfolio) (*portfolioView, error) {
	symbols := make([]string, 0, len(portfolio.Holdings))
	for _, holding := range portfolio.Holdings {
		symbols = append(symbols, holding.Symbol)
	}
	prices := map[string]decimal.Decimal{}
	if len(symbols) > 0 {
		var err error
		prices, err = h.Oracle.GetPrices(c.Request.Context(), symbols)
		if err != nil {
			return nil, err
		}
	}

	total, cash, holdingsValue := trading.PortfolioTotals(portfolio, prices)
	view := &portfolioView{
		ID:            portfolio.ID,
		Type:          portfolio.Type,
		CashBalance:   cash,
		HoldingsValue: holdingsValue,
		TotalAssets:   total,
		Liquidated:    portfolio.Liquidated(),
		LiquidatedAt:  portfolio.LiquidatedAt,
		Holdings:      []holdingView{},
	}
	if portfolio.Liquidated() {
		return view, nil
	}
	for _, holding := range portfolio.Holdings {
		price, ok := prices[holding.Symbol]
		if !ok {
			continue
		}
		value := trading.HoldingValue(&holding, price)
		cost := holding.Quantity.Mul(holding.AvgCost)
		view.Holdings = append(view.Holdings, holdingView{
			Symbol:       holding.Symbol,
			Quantity:     holding.Quantity,
			AvgCost:      holding.AvgCost,
			Leverage:     holding.Leverage,
			CurrentPrice: price,
			MarketValue:  value,
			PnL:          value.Sub(cost),
		})
	}
	return view, nil
}

var historyRanges = map[string]int{
	"1D":  1,
	"1W":  7,
	"1M":  30,
	"3M":  90,
	"ALL": 0,
}

func (h *PortfolioHandler) history(c *gin.Context) {
	claims, _ := auth.CurrentUser(c)
	ptype := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("type", models.PortfolioTypeAI)))
	rng := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("range", "1M")))
	days, ok := historyRanges[rng]
	if !ok {
		Error(c, http.StatusBadRequest, "invalid range", nil)
		return
	}

	ctx := c.Request.Context()
	portfolio, err := h.Repo.GetPortfolioByUserAndType(ctx, claims.UserID, ptype)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if portfolio == nil {
		Error(c, http.StatusNotFound, "portfolio not found", nil)
		return
	}

	since := ""
	if days > 0 {
		since = time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	}
	snapshots, err := h.Repo.ListPortfolioSnapshots(ctx, portfolio.ID, since)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, snapshots, map[string]any{"range": rng})
}

func (h *PortfolioHandler) trades(c *gin.Context) {
	claims, _ := auth.CurrentUser(c)
	ptype := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("type", models.PortfolioTypeAI)))
	limit := intQuery(c, "limit", 100)
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	ctx := c.Request.Context()
	portfolio, err := h.Repo.GetPortfolioByUserAndType(ctx, claims.UserID, ptype)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if portfolio == nil {
		Error(c, http.StatusNotFound, "portfolio not found", nil)
		return
	}
	trades, err := h.Repo.ListTradesByPortfolio(ctx, portfolio.ID, limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, trades, nil)
}

// openManual creates the user's self-managed portfolio with the standard
// starting fund. A user has at most one.
func (h *PortfolioHandler) openManual(c *gin.Context) {
	claims, _ := auth.CurrentUser(c)
	ctx := c.Request.Context()
	existing, err := h.Repo.GetPortfolioByUserAndType(ctx, claims.UserID, models.PortfolioTypeManual)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if existing != nil {
		Error(c, http.StatusConflict, "manual portfolio already exists", nil)
		return
	}
	portfolio := &models.Portfolio{
		ID:          uuid.NewString(),
		UserID:      claims.UserID,
		Type:        models.PortfolioTypeManual,
		CashBalance: decimal.NewFromFloat(h.Trading.InitialFund),
	}
	if err := h.Repo.CreatePortfolio(ctx, portfolio); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, portfolio, nil)
}

// closeManual removes the manual portfolio and everything hanging off it.
func (h *PortfolioHandler) closeManual(c *gin.Context) {
	claims, _ := auth.CurrentUser(c)
	ctx := c.Request.Context()
	existing, err := h.Repo.GetPortfolioByUserAndType(ctx, claims.UserID, models.PortfolioTypeManual)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if existing == nil {
		Error(c, http.StatusNotFound, "manual portfolio not found", nil)
		return
	}
	if err := h.Repo.DeletePortfolioCascade(ctx, existing.ID); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, nil, nil)
}
