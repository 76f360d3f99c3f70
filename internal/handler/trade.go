package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"papertrade/internal/auth"
	"papertrade/internal/config"
	"papertrade/internal/ledger"
	"papertrade/internal/models"
	"papertrade/internal/repository"
	"papertrade/internal/trading"
)

type TradeHandler struct {
	Repo     repository.Repository
	Executor *trading.Executor
	Monitor  *trading.Monitor
	Oracle   trading.PriceOracle
	Sessions *auth.Sessions

	Session config.SessionConfig
}

func (h *TradeHandler) Register(r *gin.Engine) {
	g := r.Group("/api/trade", auth.Middleware(h.Sessions, h.Session.CookieName))
	g.POST("", h.execute)
}

type tradeRequest struct {
	Action     string  `json:"action"`
	Symbol     string  `json:"symbol"`
	Percentage float64 `json:"percentage"`
	Leverage   int     `json:"leverage"`
	Reason     string  `json:"reason"`
}

// execute places one trade on the caller's manual portfolio. The same engine
// the AI batch uses applies it, so the P&L rules cannot drift between the two.
func (h *TradeHandler) execute(c *gin.Context) {
	claims, _ := auth.CurrentUser(c)
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.Action = strings.ToUpper(strings.TrimSpace(req.Action))
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Action != trading.ActionBuy && req.Action != trading.ActionSell {
		Error(c, http.StatusBadRequest, "action must be BUY or SELL", nil)
		return
	}
	if req.Symbol == "" {
		Error(c, http.StatusBadRequest, "missing symbol", nil)
		return
	}
	if req.Percentage < 1 || req.Percentage > 100 {
		Error(c, http.StatusBadRequest, "percentage must be between 1 and 100", nil)
		return
	}

	ctx := c.Request.Context()
	portfolio, err := h.Repo.GetPortfolioByUserAndType(ctx, claims.UserID, models.PortfolioTypeManual)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if portfolio == nil {
		Error(c, http.StatusNotFound, "manual portfolio not found", nil)
		return
	}
	if portfolio.Liquidated() {
		Error(c, http.StatusConflict, "portfolio is liquidated", nil)
		return
	}

	res, err := h.Executor.Execute(ctx, claims.UserID, portfolio.ID, trading.Decision{
		Action:     req.Action,
		Symbol:     req.Symbol,
		Percentage: req.Percentage,
		Leverage:   ledger.ClampLeverage(req.Leverage),
		Reason:     req.Reason,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if !res.Executed {
		Error(c, http.StatusUnprocessableEntity, "trade skipped: "+res.Skipped, nil)
		return
	}

	liquidated := false
	if prices, perr := h.holdingPrices(c, portfolio.ID, req.Symbol); perr == nil {
		liquidated, _ = h.Monitor.CheckAndLiquidate(ctx, portfolio.ID, prices)
	}

	Ok(c, gin.H{
		"side":       res.Side,
		"symbol":     req.Symbol,
		"quantity":   res.Quantity,
		"price":      res.Price,
		"total":      res.Total,
		"leverage":   res.Leverage,
		"liquidated": liquidated,
	}, nil)
}

func (h *TradeHandler) holdingPrices(c *gin.Context, portfolioID, tradedSymbol string) (map[string]decimal.Decimal, error) {
	holdings, err := h.Repo.ListHoldingsByPortfolio(c.Request.Context(), portfolioID)
	if err != nil {
		return nil, err
	}
	symbols := []string{tradedSymbol}
	for _, holding := range holdings {
		if holding.Symbol != tradedSymbol {
			symbols = append(symbols, holding.Symbol)
		}
	}
	return h.Oracle.GetPrices(c.Request.Context(), symbols)
}
