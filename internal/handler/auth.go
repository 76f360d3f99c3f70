package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/auth"
	"papertrade/internal/client/secondme"
	"papertrade/internal/config"
	"papertrade/internal/models"
	"papertrade/internal/persona"
	"papertrade/internal/repository"
)

type AuthHandler struct {
	Repo     repository.Repository
	SecondMe *secondme.Client
	Sessions *auth.Sessions
	Logger   *zap.Logger

	Session config.SessionConfig
	Trading config.TradingConfig
}

func (h *AuthHandler) Register(r *gin.Engine) {
	g := r.Group("/api/auth")
	g.GET("/login", h.login)
	g.GET("/callback", h.callback)
	g.POST("/logout", h.logout)

	authed := r.Group("/api/auth", auth.Middleware(h.Sessions, h.Session.CookieName))
	authed.GET("/me", h.me)
	authed.DELETE("/account", h.deleteAccount)
}

func (h *AuthHandler) login(c *gin.Context) {
	c.Redirect(http.StatusFound, h.SecondMe.AuthorizationURL(uuid.NewString()))
}

func (h *AuthHandler) callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		Error(c, http.StatusBadRequest, "missing code", nil)
		return
	}
	ctx := c.Request.Context()

	token, err := h.SecondMe.ExchangeCode(ctx, code)
	if err != nil {
		h.Logger.Warn("oauth exchange failed", zap.Error(err))
		Error(c, http.StatusBadGateway, "login failed", nil)
		return
	}
	info, err := h.SecondMe.GetUserInfo(ctx, token.AccessToken)
	if err != nil || info.UserID == "" {
		h.Logger.Warn("user info fetch failed", zap.Error(err))
		Error(c, http.StatusBadGateway, "login failed", nil)
		return
	}

	existing, err := h.Repo.GetUserByID(ctx, info.UserID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	user := models.User{
		ID:             info.UserID,
		Name:           info.Name,
		Email:          info.Email,
		Avatar:         info.Avatar,
		Bio:            info.Bio,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}
	if existing != nil {
		user.TradingStyle = existing.TradingStyle
		user.CustomPersona = existing.CustomPersona
	}
	if user.TradingStyle == "" {
		user.TradingStyle = h.matchStyle(c, token.AccessToken, info)
	}

	if err := h.Repo.UpsertUser(ctx, &user); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if err := h.ensureAIPortfolio(c, user.ID); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	session, err := h.Sessions.Issue(user.ID, user.Name)
	if err != nil {
		Error(c, http.StatusInternalServerError, "session issue failed", nil)
		return
	}
	c.SetCookie(h.Session.CookieName, session, int(h.Sessions.TTL().Seconds()),
		"/", "", h.Session.CookieSecure, true)

	h.Logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("style", user.TradingStyle),
	)
	c.Redirect(http.StatusFound, "/")
}

// matchStyle assigns a trading style from profile context. Any fetch failure
// falls back to matching on the bio alone; style assignment never blocks login.
func (h *AuthHandler) matchStyle(c *gin.Context, accessToken string, info secondme.UserInfo) string {
	ctx := c.Request.Context()
	shades, err := h.SecondMe.GetUserShades(ctx, accessToken)
	if err != nil {
		h.Logger.Warn("shades fetch failed during login", zap.Error(err))
	}
	memories, err := h.SecondMe.GetUserSoftMemory(ctx, accessToken)
	if err != nil {
		h.Logger.Warn("memory fetch failed during login", zap.Error(err))
	}
	return persona.Match(shades, memories, info.Bio)
}

func (h *AuthHandler) ensureAIPortfolio(c *gin.Context, userID string) error {
	ctx := c.Request.Context()
	existing, err := h.Repo.GetPortfolioByUserAndType(ctx, userID, models.PortfolioTypeAI)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return h.Repo.CreatePortfolio(ctx, &models.Portfolio{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        models.PortfolioTypeAI,
		CashBalance: decimal.NewFromFloat(h.Trading.InitialFund),
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	c.SetCookie(h.Session.CookieName, "", -1, "/", "", h.Session.CookieSecure, true)
	Ok(c, nil, nil)
}

func (h *AuthHandler) me(c *gin.Context) {
	claims, ok := auth.CurrentUser(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "not logged in", nil)
		return
	}
	user, err := h.Repo.GetUserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if user == nil {
		Error(c, http.StatusNotFound, "user not found", nil)
		return
	}
	Ok(c, gin.H{
		"id":             user.ID,
		"name":           user.Name,
		"email":          user.Email,
		"avatar":         user.Avatar,
		"bio":            user.Bio,
		"trading_style":  user.TradingStyle,
		"custom_persona": user.CustomPersona,
	}, nil)
}

// deleteAccount closes every portfolio the user owns, cascading holdings,
// trades and snapshots, and ends the session.
func (h *AuthHandler) deleteAccount(c *gin.Context) {
	claims, ok := auth.CurrentUser(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "not logged in", nil)
		return
	}
	ctx := c.Request.Context()
	for _, ptype := range []string{models.PortfolioTypeAI, models.PortfolioTypeManual} {
		p, err := h.Repo.GetPortfolioByUserAndType(ctx, claims.UserID, ptype)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		if p == nil {
			continue
		}
		if err := h.Repo.DeletePortfolioCascade(ctx, p.ID); err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
	}
	c.SetCookie(h.Session.CookieName, "", -1, "/", "", h.Session.CookieSecure, true)
	h.Logger.Info("account closed", zap.String("user_id", claims.UserID))
	Ok(c, nil, nil)
}
