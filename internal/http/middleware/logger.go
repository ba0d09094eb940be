package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-ID"

// oauthSecrets are the callback parameters that must never reach the logs.
var oauthSecrets = []string{"code", "state"}

// RequestLogger writes one http_request entry per request, tagged with the
// request id and the signed-in profile. On redactedPaths the OAuth code and
// state are masked while provider error parameters stay readable.
func RequestLogger(logger *zap.Logger, redactedPaths ...string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}
	redacted := make(map[string]struct{}, len(redactedPaths))
	for _, p := range redactedPaths {
		redacted[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)

		_, scrub := redacted[c.Request.URL.Path]
		target := loggedTarget(c.Request.URL, scrub)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", target),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if session, ok := GetSession(c); ok && session != nil {
			fields = append(fields, zap.Int64("profile_id", session.ProfileID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Check(levelFor(status), "http_request").Write(fields...)
	}
}

func loggedTarget(u *url.URL, scrub bool) string {
	if u.RawQuery == "" {
		return u.Path
	}
	if !scrub {
		return u.Path + "?" + u.RawQuery
	}
	q := u.Query()
	for _, key := range oauthSecrets {
		if q.Has(key) {
			q.Set(key, "REDACTED")
		}
	}
	return u.Path + "?" + q.Encode()
}

func levelFor(status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
