package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JuhanV/Sleep-Game/internal/domain"
	domainoauth "github.com/JuhanV/Sleep-Game/internal/domain/oauth"
	"github.com/JuhanV/Sleep-Game/internal/http/middleware"
	"github.com/JuhanV/Sleep-Game/internal/service"
)

// authorizationFailed is the plain-text body for a callback without a code.
const authorizationFailed = "Authorization failed"

func errorBody(code, description string) gin.H {
	return gin.H{"error": code, "error_description": description}
}

// respondError maps service errors to HTTP responses.
func respondError(c *gin.Context, logger *zap.Logger, err error, cookieSecure bool) {
	var (
		exchangeErr *domainoauth.TokenExchangeError
		identityErr *domainoauth.IdentityFetchError
	)
	switch {
	case domainoauth.IsMissingCode(err):
		logger.Warn("oauth callback without code")
		c.String(http.StatusBadRequest, authorizationFailed)
	case errors.Is(err, domainoauth.ErrInvalidState):
		logger.Warn("oauth invalid state")
		c.JSON(http.StatusBadRequest, errorBody("invalid_state", "Login link expired. Start again."))
	case errors.As(err, &exchangeErr):
		logger.Warn("oura token exchange failed", zap.Int("upstream_status", exchangeErr.StatusCode), zap.Error(err))
		c.JSON(upstreamStatus(exchangeErr.StatusCode), errorBody("token_exchange_failed", "Oura rejected the authorization code."))
	case errors.As(err, &identityErr):
		logger.Warn("oura identity fetch failed", zap.Int("upstream_status", identityErr.StatusCode), zap.Error(err))
		c.JSON(upstreamStatus(identityErr.StatusCode), errorBody("identity_fetch_failed", "Could not read the Oura account."))
	case errors.Is(err, domainoauth.ErrDecryptionFailure):
		logger.Warn("stored tokens unreadable, ending session")
		middleware.ClearSessionCookie(c, cookieSecure)
		c.JSON(http.StatusUnauthorized, errorBody("session_invalid", "Stored Oura tokens are unreadable. Sign in again."))
	case errors.Is(err, service.ErrUpstreamUnauthorized):
		logger.Warn("oura authorization rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, errorBody("oura_unauthorized", "Oura access was revoked. Connect your ring again."))
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", err.Error()))
	case errors.Is(err, domain.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, errorBody("not_found", "Profile not found."))
	case errors.Is(err, domain.ErrAlreadyFriends):
		c.JSON(http.StatusConflict, errorBody("already_friends", "Already in your friends list."))
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, errorBody("forbidden", "Admin access required."))
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("server_error", "Internal server error."))
	}
}

// upstreamStatus is 400 when Oura answered and 502 when it could not be reached.
func upstreamStatus(status int) int {
	if status == 0 {
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}
