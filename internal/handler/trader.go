package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
	"papertrade/internal/repository"
	"papertrade/internal/trading"
)

// TraderHandler serves the public view of one AI account: profile, current
// equity and recent trades. No session required; tokens never leave the row.
type TraderHandler struct {
	Repo   repository.Repository
	Oracle trading.PriceOracle
}

func (h *TraderHandler) Register(r *gin.Engine) {
	g := r.Group("/api/traders")
	g.GET("/:id", h.detail)
	g.GET("/:id/trades", h.trades)
}

func (h *TraderHandler) detail(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	ctx := c.Request.Context()
	user, err := h.Repo.GetUserByID(ctx, id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if user == nil {
		Error(c, http.StatusNotFound, "trader not found", nil)
		return
	}
	portfolio, err := h.Repo.GetPortfolioByUserAndType(ctx, id, models.PortfolioTypeAI)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	out := gin.H{
		"id":            user.ID,
		"name":          user.Name,
		"avatar":        user.Avatar,
		"bio":           user.Bio,
		"trading_style": user.TradingStyle,
	}
	if portfolio != nil {
		prices := map[string]decimal.Decimal{}
		symbols := make([]string, 0, len(portfolio.Holdings))
		for _, holding := range portfolio.Holdings {
			symbols = append(symbols, holding.Symbol)
		}
		if len(symbols) > 0 {
			if fetched, err := h.Oracle.GetPrices(ctx, symbols); err == nil {
				prices = fetched
			}
		}
		total, cash, holdingsValue := trading.PortfolioTotals(portfolio, prices)
		holdings := []holdingView{}
		if !portfolio.Liquidated() {
			for _, holding := range portfolio.Holdings {
				price, ok := prices[holding.Symbol]
				if !ok {
					continue
				}
				value := trading.HoldingValue(&holding, price)
				holdings = append(holdings, holdingView{
					Symbol:       holding.Symbol,
					Quantity:     holding.Quantity,
					AvgCost:      holding.AvgCost,
					Leverage:     holding.Leverage,
					CurrentPrice: price,
					MarketValue:  value,
					PnL:          value.Sub(holding.Quantity.Mul(holding.AvgCost)),
				})
			}
		}
		out["portfolio"] = gin.H{
			"total_assets":   total,
			"cash_balance":   cash,
			"holdings_value": holdingsValue,
			"liquidated":     portfolio.Liquidated(),
			"holdings":       holdings,
		}
	}
	Ok(c, out, nil)
}

func (h *TraderHandler) trades(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	limit := intQuery(c, "limit", 100)
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	trades, err := h.Repo.ListTradesByUser(c.Request.Context(), id, limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, trades, nil)
}
