package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHandlerMiddlewareEnforcesLimitPerClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	limited := Handler{
		Limiter: Limiter{Client: client, Prefix: "ratelimit:"},
		Config:  Config{Window: time.Minute, Max: 1},
		Logger:  zerolog.Nop(),
	}
	r := chi.NewRouter()
	r.With(limited.Middleware).Post("/api/v1/coupons/validate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusOK, send("10.0.0.1:1111").Code)
	rr := send("10.0.0.1:2222")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
	require.Contains(t, rr.Body.String(), "RATE_LIMITED")

	require.Equal(t, http.StatusOK, send("10.0.0.2:1111").Code, "other clients keep their own budget")
}

func TestHandlerMiddlewareFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0", MaxRetries: -1})
	defer func() { _ = client.Close() }()
	handler := Handler{
		Limiter: Limiter{Client: client, Prefix: "ratelimit:"},
		Config:  Config{Key: func(*http.Request) string { return "err" }, Window: time.Second, Max: 1},
		Logger:  zerolog.Nop(),
	}
	h := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
