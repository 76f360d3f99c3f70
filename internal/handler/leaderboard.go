package handler

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/models"
	"papertrade/internal/repository"
	"papertrade/internal/trading"
)

type LeaderboardHandler struct {
	Repo   repository.Repository
	Oracle trading.PriceOracle
	Logger *zap.Logger

	InitialFund float64
}

func (h *LeaderboardHandler) Register(r *gin.Engine) {
	r.GET("/api/leaderboard", h.leaderboard)
}

type leaderboardEntry struct {
	Rank         int             `json:"rank"`
	UserID       string          `json:"user_id"`
	UserName     string          `json:"user_name"`
	Avatar       string          `json:"avatar"`
	TradingStyle string          `json:"trading_style"`
	Type         string          `json:"type"`
	TotalAssets  decimal.Decimal `json:"total_assets"`
	ReturnPct    decimal.Decimal `json:"return_pct"`
	Liquidated   bool            `json:"liquidated"`
}

// leaderboard ranks accounts by current leveraged equity, scoped to AI (the
// default), MANUAL, or ALL portfolios. Liquidated accounts sit at the bottom
// at zero.
func (h *LeaderboardHandler) leaderboard(c *gin.Context) {
	ptype := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("type", models.PortfolioTypeAI)))
	switch ptype {
	case models.PortfolioTypeAI, models.PortfolioTypeManual:
	case "ALL":
		ptype = ""
	default:
		Error(c, http.StatusBadRequest, "invalid type", nil)
		return
	}
	ctx := c.Request.Context()
	portfolios, err := h.Repo.ListPortfolios(ctx, ptype)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	prices := map[string]decimal.Decimal{}
	held, err := h.Repo.ListHeldSymbols(ctx)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if len(held) > 0 {
		prices, err = h.Oracle.GetPrices(ctx, held)
		if err != nil {
			h.Logger.Warn("leaderboard price fetch incomplete", zap.Error(err))
		}
	}

	initial := decimal.NewFromFloat(h.InitialFund)
	entries := make([]leaderboardEntry, 0, len(portfolios))
	for i := range portfolios {
		p := &portfolios[i]
		user, err := h.Repo.GetUserByID(ctx, p.UserID)
		if err != nil || user == nil {
			continue
		}
		total, _, _ := trading.PortfolioTotals(p, prices)
		returnPct := decimal.Zero
		if initial.IsPositive() {
			returnPct = total.Sub(initial).Div(initial).Mul(decimal.NewFromInt(100))
		}
		entries = append(entries, leaderboardEntry{
			UserID:       user.ID,
			UserName:     user.Name,
			Avatar:       user.Avatar,
			TradingStyle: user.TradingStyle,
			Type:         p.Type,
			TotalAssets:  total,
			ReturnPct:    returnPct,
			Liquidated:   p.Liquidated(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalAssets.GreaterThan(entries[j].TotalAssets)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	Ok(c, entries, map[string]any{"total": len(entries)})
}
