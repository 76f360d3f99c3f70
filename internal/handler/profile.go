package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"papertrade/internal/auth"
	"papertrade/internal/config"
	"papertrade/internal/persona"
	"papertrade/internal/repository"
)

type ProfileHandler struct {
	Repo     repository.Repository
	Sessions *auth.Sessions
	Session  config.SessionConfig
}

func (h *ProfileHandler) Register(r *gin.Engine) {
	r.GET("/api/styles", h.styles)

	authed := r.Group("/api/profile", auth.Middleware(h.Sessions, h.Session.CookieName))
	authed.PATCH("/style", h.updateStyle)
}

func (h *ProfileHandler) styles(c *gin.Context) {
	Ok(c, persona.Styles, nil)
}

type updateStyleRequest struct {
	Style         string `json:"style"`
	CustomPersona string `json:"custom_persona"`
}

// updateStyle switches the account's AI persona. A custom persona may be set
// alongside a style; clearing both falls back to the default style.
func (h *ProfileHandler) updateStyle(c *gin.Context) {
	claims, ok := auth.CurrentUser(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "not logged in", nil)
		return
	}
	var req updateStyleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.Style = strings.TrimSpace(req.Style)
	req.CustomPersona = strings.TrimSpace(req.CustomPersona)
	if req.Style == "" && req.CustomPersona == "" {
		req.Style = persona.DefaultStyleID
	}
	if req.Style != "" && !persona.ValidID(req.Style) {
		Error(c, http.StatusBadRequest, "unknown style", nil)
		return
	}
	if len(req.CustomPersona) > 2000 {
		Error(c, http.StatusBadRequest, "custom persona too long", nil)
		return
	}
	if err := h.Repo.UpdateUserStyle(c.Request.Context(), claims.UserID, req.Style, req.CustomPersona); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"style": req.Style, "custom_persona": req.CustomPersona}, nil)
}
