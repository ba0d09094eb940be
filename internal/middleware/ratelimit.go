package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	loginPathPrefix = "/auth/oura/"
	idleBucketTTL   = 5 * time.Minute
)

// RateLimitPolicy sets per-client request budgets. The Oura login routes get
// their own, usually tighter, budget since each callback costs two upstream
// calls. A zero budget disables that tier.
type RateLimitPolicy struct {
	RequestsPerMinute int
	LoginPerMinute    int
	Exempt            []string
}

type tier struct {
	name  string
	limit rate.Limit
	burst int
}

func newTier(name string, perMinute int) *tier {
	if perMinute <= 0 {
		return nil
	}
	return &tier{
		name:  name,
		limit: rate.Limit(float64(perMinute) / 60.0),
		burst: max(perMinute/10, 1),
	}
}

// retryAfter is the whole seconds until one token is available again.
func (t *tier) retryAfter() int {
	return int(math.Ceil(1 / float64(t.limit)))
}

// RateLimiter throttles clients by IP, one token bucket per tier.
type RateLimiter struct {
	api    *tier
	login  *tier
	exempt map[string]struct{}

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter returns nil when every tier is disabled.
func NewRateLimiter(policy RateLimitPolicy) *RateLimiter {
	api := newTier("api", policy.RequestsPerMinute)
	login := newTier("login", policy.LoginPerMinute)
	if api == nil && login == nil {
		return nil
	}
	exempt := make(map[string]struct{}, len(policy.Exempt))
	for _, p := range policy.Exempt {
		exempt[p] = struct{}{}
	}
	return &RateLimiter{
		api:       api,
		login:     login,
		exempt:    exempt,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// Handler rejects over-budget requests with 429 and Retry-After.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		t := r.tierFor(c.Request.URL.Path)
		if t == nil {
			c.Next()
			return
		}
		if !r.allow(t, c.ClientIP()) {
			c.Header("Retry-After", strconv.Itoa(t.retryAfter()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) tierFor(path string) *tier {
	if _, ok := r.exempt[path]; ok {
		return nil
	}
	if strings.HasPrefix(path, loginPathPrefix) {
		return r.login
	}
	return r.api
}

func (r *RateLimiter) allow(t *tier, clientIP string) bool {
	now := time.Now()
	key := t.name + "|" + clientIP

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) > idleBucketTTL {
		for k, b := range r.buckets {
			if now.Sub(b.lastSeen) > idleBucketTTL {
				delete(r.buckets, k)
			}
		}
		r.lastSweep = now
	}

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(t.limit, t.burst)}
		r.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}
