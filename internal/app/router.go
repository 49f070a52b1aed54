package app

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/checkout-api/internal/common"
	"github.com/noah-isme/checkout-api/internal/config"
	"github.com/noah-isme/checkout-api/internal/coupon"
	"github.com/noah-isme/checkout-api/internal/health"
	"github.com/noah-isme/checkout-api/internal/obs"
	"github.com/noah-isme/checkout-api/internal/payment"
	"github.com/noah-isme/checkout-api/internal/ratelimit"
	"github.com/noah-isme/checkout-api/internal/security"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	Config   *config.Config
	Services *Services
	Health   health.Checker
	Redis    *redis.Client
	Metrics  *obs.HTTPMetrics
	Logger   zerolog.Logger
	Tracing  bool
}

// NewRouter builds the chi router with the middleware chain and all checkout routes.
func NewRouter(rc RouterConfig) http.Handler {
	cfg := rc.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if rc.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if rc.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: rc.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: rc.Logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.IsProduction()}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	r.Handle("/metrics", obs.Handler())
	if cfg.PprofEnabled {
		r.Route("/debug/pprof", func(d chi.Router) {
			d.Use(requireAdmin(cfg.AdminUser, cfg.AdminPass))
			d.Handle("/*", newPprofMux())
		})
	}

	healthHandler := health.Handler{Checker: rc.Health, Logger: rc.Logger}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	limited := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: rc.Redis, Prefix: "checkout:ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		Logger: rc.Logger,
	}
	couponHandler := &coupon.Handler{Svc: rc.Services.Coupons}
	paymentHandler := &payment.Handler{Svc: rc.Services.Payments}

	r.Route("/api/v1", func(v chi.Router) {
		v.Group(func(public chi.Router) {
			public.Use(limited.Middleware)
			public.Post("/orders", paymentHandler.CreateOrder)
			public.Post("/payments/verify", paymentHandler.Verify)
			public.Post("/coupons/validate", couponHandler.Validate)
		})
		v.Route("/admin", func(admin chi.Router) {
			admin.Use(requireAdmin(cfg.AdminUser, cfg.AdminPass))
			admin.Post("/coupons/redeem", couponHandler.Redeem)
		})
		v.Post("/webhooks/razorpay", rc.Services.Webhook.Handle)
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

// requireAdmin guards operator routes with HTTP basic auth. Without configured credentials
// every request is refused.
func requireAdmin(user, pass string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if user == "" || !ok ||
				subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="checkout-admin"`)
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
