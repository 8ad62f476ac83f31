package admin

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"signalrelay/internal/apperr"
	"signalrelay/internal/models"
)

// ClientKeyResolver is the subset of store.ClientRepo the auth middleware
// needs to resolve a client key to an active client.
type ClientKeyResolver interface {
	LookupByKey(ctx context.Context, key string) (models.Client, error)
}

// resolvePrincipal implements §4.7's validate rule: a matching master key
// wins outright; otherwise an X-API-Key is resolved against active clients;
// otherwise the caller is unauthenticated.
func resolvePrincipal(ctx context.Context, masterKey string, resolver ClientKeyResolver, r *http.Request) (Principal, bool) {
	if adminKey := r.Header.Get("X-Admin-Key"); adminKey != "" && masterKey != "" && adminKey == masterKey {
		return Principal{Role: RoleAdmin}, true
	}
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		client, err := resolver.LookupByKey(ctx, apiKey)
		if err == nil {
			return Principal{Role: RoleClient, ClientID: client.ID}, true
		}
	}
	return Principal{}, false
}

// authMiddleware resolves the caller's principal and attaches it to the
// request context; requests with no valid key are rejected with 401.
// /health and /api/auth/validate are mounted outside any group using this
// middleware, since both report status rather than require it.
func authMiddleware(masterKey string, resolver ClientKeyResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := resolvePrincipal(c.Request().Context(), masterKey, resolver, c.Request())
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorBody("missing or invalid credentials"))
			}
			c.SetRequest(c.Request().WithContext(withPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}

// requireAdmin rejects any principal that isn't RoleAdmin. Must run after
// authMiddleware.
func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := principalFromContext(c.Request().Context())
		if !ok || p.Role != RoleAdmin {
			return c.JSON(http.StatusUnauthorized, errorBody("admin key required"))
		}
		return next(c)
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// asNotFound reports whether err is a store not-found error, for handlers
// that translate it to a 404 response.
func asNotFound(err error) bool {
	return apperr.IsNotFound(err)
}

// ipRateLimiter is a per-remote-address token bucket guarding the admin
// surface from request floods, adapted from the teacher's
// ConnectionRateLimiter down to a single dimension (no separate global
// limiter; the admin surface has no "distributed attack" concern the
// subscriber accept path does).
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newIPRateLimiter(perSecond float64, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func rateLimitMiddleware(limiter *ipRateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			host, _, err := net.SplitHostPort(c.Request().RemoteAddr)
			if err != nil {
				host = c.Request().RemoteAddr
			}
			if !limiter.allow(host) {
				return c.JSON(http.StatusTooManyRequests, errorBody("rate limit exceeded"))
			}
			return next(c)
		}
	}
}
