package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JuhanV/Sleep-Game/internal/jwt"
)

// SessionCookie carries the signed session token.
const SessionCookie = "sg_session"

const sessionKey = "session"

// Auth validates the session cookie and attaches the session.
type Auth struct {
	Sessions     *jwt.Generator
	CookieSecure bool
}

// RequireSession rejects requests without a valid session. A bearer token is
// accepted in place of the cookie.
func (m *Auth) RequireSession(c *gin.Context) {
	token := sessionToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login_required", "error_description": "Sign in with Oura first."})
		return
	}
	session, err := m.Sessions.ValidateSessionToken(token)
	if err != nil {
		ClearSessionCookie(c, m.CookieSecure)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_invalid", "error_description": "Session expired. Sign in again."})
		return
	}
	c.Set(sessionKey, session)
	c.Next()
}

// GetSession returns the session attached by RequireSession.
func GetSession(c *gin.Context) (*jwt.Session, bool) {
	value, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	session, ok := value.(*jwt.Session)
	return session, ok
}

// SetSession attaches a session directly. Used by tests and internal callers.
func SetSession(c *gin.Context, session *jwt.Session) {
	c.Set(sessionKey, session)
}

// SetSessionCookie writes the session cookie.
func SetSessionCookie(c *gin.Context, token string, ttl time.Duration, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure || c.Request.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(c *gin.Context, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure || c.Request.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && strings.TrimSpace(cookie) != "" {
		return strings.TrimSpace(cookie)
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
