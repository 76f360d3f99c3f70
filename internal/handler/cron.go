package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"papertrade/internal/repository"
	"papertrade/internal/trading"
)

// CronHandler exposes the scheduled jobs for external triggering. Calls must
// carry the shared cron secret as a bearer token; with no secret configured
// the endpoints are disabled.
type CronHandler struct {
	Repo         repository.Repository
	Orchestrator *trading.Orchestrator
	Recorder     *trading.Recorder
	Oracle       trading.PriceOracle

	Secret string
}

func (h *CronHandler) Register(r *gin.Engine) {
	g := r.Group("/api/cron", h.authorize)
	g.POST("/trade", h.trade)
	g.POST("/trade/:userID", h.tradeOne)
	g.POST("/snapshot", h.snapshot)
}

func (h *CronHandler) authorize(c *gin.Context) {
	if h.Secret == "" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code":    http.StatusForbidden,
			"message": "cron endpoints disabled",
		})
		return
	}
	header := c.GetHeader("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if header == token || token != h.Secret {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "invalid cron secret",
		})
		return
	}
	c.Next()
}

func (h *CronHandler) trade(c *gin.Context) {
	report, err := h.Orchestrator.RunBatch(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, report, nil)
}

func (h *CronHandler) tradeOne(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userID"))
	if userID == "" {
		Error(c, http.StatusBadRequest, "missing user id", nil)
		return
	}
	result, err := h.Orchestrator.RunAccount(c.Request.Context(), userID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}

func (h *CronHandler) snapshot(c *gin.Context) {
	ctx := c.Request.Context()
	prices := map[string]decimal.Decimal{}
	held, err := h.Repo.ListHeldSymbols(ctx)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if len(held) > 0 {
		if fetched, err := h.Oracle.GetPrices(ctx, held); err == nil {
			prices = fetched
		}
	}
	if err := h.Recorder.RecordAll(ctx, prices); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"snapshotted": true}, nil)
}
