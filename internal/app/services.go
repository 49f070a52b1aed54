package app

import (
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/checkout-api/internal/account"
	"github.com/noah-isme/checkout-api/internal/config"
	"github.com/noah-isme/checkout-api/internal/coupon"
	"github.com/noah-isme/checkout-api/internal/events"
	"github.com/noah-isme/checkout-api/internal/lock"
	"github.com/noah-isme/checkout-api/internal/payment"
	"github.com/noah-isme/checkout-api/internal/resilience"
)

// Services groups the domain services behind the HTTP surface.
type Services struct {
	Coupons  *coupon.Service
	Payments *payment.Service
	Webhook  payment.Webhook
	Events   *events.Bus
}

// NewServices wires domain services from config and shared connections.
func NewServices(cfg *config.Config, deps *Dependencies, logger zerolog.Logger) *Services {
	var rdb *redis.Client
	couponSvc := &coupon.Service{Timeout: cfg.StoreTimeout, Logger: &logger}
	if deps != nil {
		rdb = deps.Redis
		couponSvc.Store = coupon.NewPGStore(deps.DB)
	}

	bus := &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}
	if rdb != nil {
		bus.Notifiers = append(bus.Notifiers, events.RedisStreamNotifier{Client: rdb, MaxLen: 10000})
	}

	razorpayBreaker := resilience.NewBreaker(resilience.BreakerConfig{
		MinRequests:  cfg.CircuitMinRequests,
		FailureRatio: cfg.CircuitFailureRatio,
		OpenFor:      cfg.CircuitOpenFor,
	}).WithTarget("razorpay").WithLogger(logger)

	provider := payment.Razorpay{
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpayKeySecret,
		BaseURL:   cfg.RazorpayBaseURL,
		Client: resilience.HTTPClient{
			Client:  tracedClient(),
			Breaker: razorpayBreaker,
			Timeout: cfg.ProviderTimeout,
		},
	}

	return &Services{
		Coupons: couponSvc,
		Payments: &payment.Service{
			Provider:  provider,
			Coupons:   couponSvc,
			Accounts:  NewAccountUpdater(cfg, logger),
			Events:    bus,
			BasePrice: cfg.BasePrice,
			Currency:  cfg.Currency,
			KeySecret: cfg.RazorpayKeySecret,
			Logger:    &logger,
		},
		Webhook: payment.Webhook{
			Secret:   cfg.RazorpayWebhookSecret,
			Handlers: payment.DefaultHandlers(logger, bus),
			Dedupe:   webhookDedupe(rdb),
			Logger:   logger,
		},
		Events: bus,
	}
}

// NewAccountUpdater posts to the account service when a URL is configured and otherwise
// only logs the subscription.
func NewAccountUpdater(cfg *config.Config, logger zerolog.Logger) account.Updater {
	if cfg.AccountUpdateURL == "" {
		return account.LogUpdater{Logger: logger}
	}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		MinRequests:  cfg.CircuitMinRequests,
		FailureRatio: cfg.CircuitFailureRatio,
		OpenFor:      cfg.CircuitOpenFor,
	}).WithTarget("account").WithLogger(logger)
	return account.HTTPUpdater{
		URL:   cfg.AccountUpdateURL,
		Token: cfg.AccountUpdateToken,
		Client: resilience.HTTPClient{
			Client:  tracedClient(),
			Breaker: breaker,
			Timeout: cfg.AccountUpdateTimeout,
			// The update carries an Idempotency-Key, so retrying is safe.
			MaxAttempts: 3,
			BaseBackoff: 200 * time.Millisecond,
			Jitter:      0.2,
		},
	}
}

func webhookDedupe(rdb *redis.Client) payment.Deduper {
	if rdb == nil {
		return nil
	}
	return lock.Once{Client: rdb, Prefix: "checkout:webhook:", LockTTL: 30 * time.Second, DoneTTL: 72 * time.Hour}
}

func tracedClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}
