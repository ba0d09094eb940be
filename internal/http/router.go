package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/JuhanV/Sleep-Game/internal/config"
	"github.com/JuhanV/Sleep-Game/internal/http/handler"
	httpmiddleware "github.com/JuhanV/Sleep-Game/internal/http/middleware"
	"github.com/JuhanV/Sleep-Game/internal/metrics"
	"github.com/JuhanV/Sleep-Game/internal/middleware"
)

const callbackPath = "/auth/oura/callback"

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	logger *zap.Logger,
	authHandler *handler.AuthHandler,
	apiHandler *handler.APIHandler,
	authMiddleware *httpmiddleware.Auth,
	rateLimiter *middleware.RateLimiter,
	m *metrics.Metrics,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger, callbackPath))
	r.Use(rateLimiter.Handler())
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	authGroup := r.Group("/auth")
	{
		authGroup.GET("/oura/start", authHandler.OAuthStart)
		authGroup.GET("/oura/callback", authHandler.OAuthCallback)
		authGroup.POST("/logout", authHandler.Logout)
	}

	api := r.Group("/api", authMiddleware.RequireSession)
	{
		api.GET("/me", apiHandler.Me)
		api.GET("/me/token", apiHandler.TokenStatus)
		api.GET("/dashboard", apiHandler.GetDashboard)
		api.GET("/leaderboard", apiHandler.Leaderboard)
		api.GET("/friends", apiHandler.ListFriends)
		api.POST("/friends", apiHandler.AddFriend)
		api.DELETE("/friends/:id", apiHandler.RemoveFriend)

		admin := api.Group("/admin")
		{
			admin.GET("/profiles", apiHandler.AdminListProfiles)
			admin.GET("/profiles/:id", apiHandler.AdminProfileMetrics)
			admin.POST("/profiles/:id/admin", apiHandler.AdminGrant)
		}
	}

	// UI is served only as static files; the API stays on its own routes.
	uiDir := cfg.UIDir
	if uiDir == "" {
		uiDir = filepath.Join("ui", "dist")
	}
	attachUIRoutes(r, uiDir)

	return r
}

func attachUIRoutes(r *gin.Engine, distDir string) {
	indexPath := filepath.Join(distDir, "index.html")

	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if isAPIPath(path) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Unknown endpoint."})
			return
		}

		if filePath, ok := safeJoin(distDir, path); ok {
			if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
				c.File(filePath)
				return
			}
		}

		if _, err := os.Stat(indexPath); err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(indexPath)
	})
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/auth") ||
		strings.HasPrefix(path, "/api") ||
		path == "/metrics" ||
		path == "/healthz"
}

func safeJoin(baseDir, requestPath string) (string, bool) {
	trimmed := strings.TrimPrefix(requestPath, "/")
	cleaned := filepath.Clean(trimmed)
	if cleaned == "." {
		return filepath.Join(baseDir, cleaned), true
	}
	if strings.HasPrefix(cleaned, "..") {
		return "", false
	}
	return filepath.Join(baseDir, cleaned), true
}
