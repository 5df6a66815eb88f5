package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/habitkit/devicegate/pkg/config"
)

// Middleware applies per-IP and per-account limits, plus a tighter limit on
// device registration.
type Middleware struct {
	config   config.RateLimitConfig
	ip       *KeyedLimiter
	account  *KeyedLimiter
	register *KeyedLimiter
}

func NewMiddleware(cfg config.RateLimitConfig) *Middleware {
	m := &Middleware{config: cfg}
	if cfg.PerIPEnabled {
		m.ip = NewKeyedLimiter(cfg.PerIPCapacity, cfg.PerIPRefillRate, cfg.BucketTTL)
	}
	if cfg.PerAccountEnabled {
		m.account = NewKeyedLimiter(cfg.PerAccountCapacity, cfg.PerAccountRefillRate, cfg.BucketTTL)
	}
	if cfg.RegisterCapacity > 0 {
		m.register = NewKeyedLimiter(cfg.RegisterCapacity, cfg.RegisterRefillRate, cfg.BucketTTL)
	}
	return m
}

// Handler is the chi middleware.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if m.ip != nil && ip != "" && !m.ip.Allow(ip) {
			m.rateLimitExceeded(w, r, "ip", ip)
			return
		}

		account := accountKey(r)
		if m.account != nil && account != "" && !m.account.Allow(account) {
			m.rateLimitExceeded(w, r, "account", ip)
			return
		}

		if m.register != nil && r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/register") {
			key := account
			if key == "" {
				key = ip
			}
			if !m.register.Allow(key) {
				m.rateLimitExceeded(w, r, "register", ip)
				return
			}
		}

		if m.ip != nil {
			w.Header().Set("X-RateLimit-Limit-IP", strconv.Itoa(m.config.PerIPCapacity))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, limitType, ip string) {
	slog.Warn("Rate limit exceeded", "type", limitType, "ip", ip, "path", r.URL.Path, "method", r.Method)

	w.Header().Set("Retry-After", "60")
	render.Status(r, http.StatusTooManyRequests)
	render.JSON(w, r, map[string]string{
		"error":   "rate_limit_exceeded",
		"message": "Too many requests. Please try again later.",
		"type":    limitType,
	})
}

// ClientIP prefers proxy headers and falls back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func accountKey(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return ""
	}
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}
