package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CouponEvaluationTotal counts coupon evaluations by result (valid, invalid, error).
	CouponEvaluationTotal *prometheus.CounterVec
	// CouponRedemptionTotal counts redemption attempts by result.
	CouponRedemptionTotal *prometheus.CounterVec
	// OrderCreateTotal counts provider order creation outcomes.
	OrderCreateTotal *prometheus.CounterVec
	// PaymentVerifyTotal counts client side payment verifications.
	PaymentVerifyTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound provider webhooks by event and outcome.
	PaymentWebhookTotal *prometheus.CounterVec
	// ProviderCallDuration records outbound provider latency in milliseconds.
	ProviderCallDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers checkout Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CouponEvaluationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_evaluation_total",
			Help:      "Count of coupon evaluations by result.",
		}, []string{"result"})
		CouponRedemptionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_redemption_total",
			Help:      "Count of coupon redemption attempts by result.",
		}, []string{"result"})
		OrderCreateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_create_total",
			Help:      "Count of provider order creation outcomes.",
		}, []string{"result"})
		PaymentVerifyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verify_total",
			Help:      "Count of payment verification outcomes.",
		}, []string{"result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by event and outcome.",
		}, []string{"event", "result"})
		ProviderCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_ms",
			Help:      "Latency of payment provider calls in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"operation", "result"})

		mustRegisterCollector(reg, CouponEvaluationTotal, reuseCounterVec(&CouponEvaluationTotal))
		mustRegisterCollector(reg, CouponRedemptionTotal, reuseCounterVec(&CouponRedemptionTotal))
		mustRegisterCollector(reg, OrderCreateTotal, reuseCounterVec(&OrderCreateTotal))
		mustRegisterCollector(reg, PaymentVerifyTotal, reuseCounterVec(&PaymentVerifyTotal))
		mustRegisterCollector(reg, PaymentWebhookTotal, reuseCounterVec(&PaymentWebhookTotal))
		mustRegisterCollector(reg, ProviderCallDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				ProviderCallDuration = v
			}
		})
	})
}

func reuseCounterVec(target **prometheus.CounterVec) func(prometheus.Collector) {
	return func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			*target = v
		}
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
