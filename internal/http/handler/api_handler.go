package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JuhanV/Sleep-Game/internal/config"
	"github.com/JuhanV/Sleep-Game/internal/domain"
	domainoauth "github.com/JuhanV/Sleep-Game/internal/domain/oauth"
	"github.com/JuhanV/Sleep-Game/internal/http/middleware"
	"github.com/JuhanV/Sleep-Game/internal/service"
)

// DashboardReader is implemented by *service.DashboardService.
type DashboardReader interface {
	Me(ctx context.Context, profileID int64) (service.ProfileView, error)
	Dashboard(ctx context.Context, profileID int64) (*service.Dashboard, error)
}

// SocialGraph is implemented by *service.SocialService.
type SocialGraph interface {
	Leaderboard(ctx context.Context, currentUserID int64) ([]domain.LeaderboardEntry, error)
	ListFriends(ctx context.Context, userID int64) ([]domain.Friend, error)
	AddFriend(ctx context.Context, userID int64, email string) (domain.Friend, error)
	RemoveFriend(ctx context.Context, userID, friendID int64) error
}

// AdminConsole is implemented by *service.AdminService.
type AdminConsole interface {
	TokenStatus(ctx context.Context, profileID int64) (service.TokenStatus, error)
	ListProfiles(ctx context.Context, callerID int64) ([]service.AdminProfileView, error)
	ProfileMetrics(ctx context.Context, callerID, targetID int64) (service.ProfileView, *service.MetricsView, error)
	GrantAdmin(ctx context.Context, callerID, targetID int64) error
}

// APIHandler serves the signed-in JSON endpoints.
type APIHandler struct {
	Dashboard    DashboardReader
	Social       SocialGraph
	Admin        AdminConsole
	CookieSecure bool
	Logger       *zap.Logger
}

// NewAPIHandler creates the handler set.
func NewAPIHandler(
	dashboard *service.DashboardService,
	social *service.SocialService,
	admin *service.AdminService,
	cfg config.Config,
	logger *zap.Logger,
) *APIHandler {
	return &APIHandler{
		Dashboard:    dashboard,
		Social:       social,
		Admin:        admin,
		CookieSecure: cfg.CookieSecure,
		Logger:       logger,
	}
}

type addFriendRequest struct {
	Email string `json:"email" form:"email" binding:"required"`
}

// Me returns the caller's profile.
func (h *APIHandler) Me(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	view, err := h.Dashboard.Me(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// TokenStatus reports on the caller's stored Oura tokens.
func (h *APIHandler) TokenStatus(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	status, err := h.Admin.TokenStatus(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetDashboard returns metrics, leaderboard and friends for the caller.
func (h *APIHandler) GetDashboard(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	dash, err := h.Dashboard.Dashboard(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

// Leaderboard returns every profile ranked by average sleep score.
func (h *APIHandler) Leaderboard(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	board, err := h.Social.Leaderboard(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": board})
}

// ListFriends returns the caller's friends.
func (h *APIHandler) ListFriends(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	friends, err := h.Social.ListFriends(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// AddFriend links the caller to the profile with the posted email.
func (h *APIHandler) AddFriend(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	var req addFriendRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", "email is required."))
		return
	}
	friend, err := h.Social.AddFriend(c.Request.Context(), id, req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, friend)
}

// RemoveFriend unlinks the friend in the path.
func (h *APIHandler) RemoveFriend(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	friendID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Social.RemoveFriend(c.Request.Context(), id, friendID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AdminListProfiles returns every profile with token status.
func (h *APIHandler) AdminListProfiles(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	profiles, err := h.Admin.ListProfiles(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

// AdminProfileMetrics returns another user's recent metrics.
func (h *APIHandler) AdminProfileMetrics(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c)
	if !ok {
		return
	}
	profile, metrics, err := h.Admin.ProfileMetrics(c.Request.Context(), id, targetID)
	if err != nil {
		// The caller's own session is fine; only the target's record is bad.
		if errors.Is(err, domainoauth.ErrDecryptionFailure) {
			c.JSON(http.StatusConflict, errorBody("token_unreadable", "Stored Oura tokens for this profile are unreadable."))
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile, "metrics": metrics})
}

// AdminGrant sets the admin flag on the profile in the path.
func (h *APIHandler) AdminGrant(c *gin.Context) {
	id, ok := h.caller(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Admin.GrantAdmin(c.Request.Context(), id, targetID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) caller(c *gin.Context) (int64, bool) {
	session, ok := middleware.GetSession(c)
	if !ok || session == nil || session.ProfileID == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("login_required", "Sign in with Oura first."))
		return 0, false
	}
	return session.ProfileID, true
}

func (h *APIHandler) fail(c *gin.Context, err error) {
	respondError(c, h.log(), err, h.CookieSecure)
}

func (h *APIHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorBody("invalid_request", "Invalid profile id."))
		return 0, false
	}
	return id, true
}
