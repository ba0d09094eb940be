package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JuhanV/Sleep-Game/internal/config"
	"github.com/JuhanV/Sleep-Game/internal/http/middleware"
	authsvc "github.com/JuhanV/Sleep-Game/internal/service/auth"
)

// AuthHandler serves the Oura login endpoints.
type AuthHandler struct {
	OAuth        authsvc.OAuthService
	CookieSecure bool
	Logger       *zap.Logger
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(oauth authsvc.OAuthService, cfg config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{OAuth: oauth, CookieSecure: cfg.CookieSecure, Logger: logger}
}

// OAuthStart redirects the browser to the Oura consent page.
func (h *AuthHandler) OAuthStart(c *gin.Context) {
	output, err := h.OAuth.StartAuthorization(c.Request.Context(), authsvc.StartAuthorizationInput{
		ReturnTo: c.Query("return_to"),
	})
	if err != nil {
		respondError(c, h.log(), err, h.CookieSecure)
		return
	}
	c.Redirect(http.StatusFound, output.AuthorizationURL)
}

// OAuthCallback completes the login, issues the session cookie and redirects home.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	if reason := strings.TrimSpace(c.Query("error")); reason != "" {
		h.log().Warn("oura authorization denied", zap.String("reason", reason))
	}
	session, err := h.OAuth.HandleCallback(c.Request.Context(), authsvc.OAuthCallbackInput{
		Code:  c.Query("code"),
		State: c.Query("state"),
	})
	if err != nil {
		respondError(c, h.log(), err, h.CookieSecure)
		return
	}

	middleware.SetSessionCookie(c, session.SessionToken, session.ExpiresIn, h.CookieSecure)
	redirect := session.ReturnTo
	if redirect == "" {
		redirect = "/"
	}
	c.Redirect(http.StatusFound, redirect)
}

// Logout clears the session cookie. Sessions are stateless so nothing else changes.
func (h *AuthHandler) Logout(c *gin.Context) {
	middleware.ClearSessionCookie(c, h.CookieSecure)
	c.Redirect(http.StatusFound, "/")
}

func (h *AuthHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}
