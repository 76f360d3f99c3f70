package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"papertrade/internal/trading"
)

type MarketHandler struct {
	Oracle     trading.PriceOracle
	TopSymbols []string
}

func (h *MarketHandler) Register(r *gin.Engine) {
	g := r.Group("/api/market")
	g.GET("/top", h.top)
	g.GET("/price/:symbol", h.price)
}

func (h *MarketHandler) top(c *gin.Context) {
	tickers, err := h.Oracle.GetTopTickers(c.Request.Context(), h.TopSymbols)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, tickers, nil)
}

func (h *MarketHandler) price(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		Error(c, http.StatusBadRequest, "missing symbol", nil)
		return
	}
	price, err := h.Oracle.GetPrice(c.Request.Context(), symbol)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"symbol": symbol, "price": price}, nil)
}
