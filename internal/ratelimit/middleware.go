package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-api/internal/common"
)

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler enforces rate limits before delegating to the next handler. Limiter failures let
// the request through.
type Handler struct {
	Limiter Limiter
	Config  Config
	Logger  zerolog.Logger
}

// ByClientIP keys requests by route pattern and client address.
func ByClientIP(r *http.Request) string {
	route := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		route = rc.RoutePattern()
	}
	return route + "|" + common.ClientIP(r)
}

// Middleware implements the http.Handler middleware interface.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyFn := h.Config.Key
		if keyFn == nil {
			keyFn = ByClientIP
		}
		decision, err := h.Limiter.Allow(r.Context(), keyFn(r), h.Config.Window, h.Config.Max)
		if err != nil {
			h.Logger.Warn().Err(err).Str("path", r.URL.Path).Msg("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			retryAfter := int(math.Ceil(time.Until(decision.ResetAt).Seconds()))
			headers.Set("Retry-After", strconv.Itoa(max(retryAfter, 0)))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
