package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// TokenRefreshTotal counts provider token acquisition attempts by outcome.
	TokenRefreshTotal *prometheus.CounterVec
	// TokenHighRefreshTotal counts hour buckets in which the refresh rate tripped the warning threshold.
	TokenHighRefreshTotal prometheus.Counter
	// WebhookVerifiedTotal counts inbound callback verification outcomes by callback type.
	WebhookVerifiedTotal *prometheus.CounterVec
	// PaymentIntentTotal counts payment intention creation outcomes.
	PaymentIntentTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		TokenRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Count of provider auth token requests by outcome.",
		}, []string{"result"})
		TokenHighRefreshTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_high_refresh_total",
			Help:      "Number of times the hourly token refresh rate exceeded the warning threshold.",
		})
		WebhookVerifiedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_verified_total",
			Help:      "Count of inbound callback verification outcomes.",
		}, []string{"type", "result"})
		PaymentIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment intention creation outcomes.",
		}, []string{"result"})

		registerCollector(reg, TokenRefreshTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TokenRefreshTotal = v
			}
		})
		registerCollector(reg, TokenHighRefreshTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				TokenHighRefreshTotal = v
			}
		})
		registerCollector(reg, WebhookVerifiedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				WebhookVerifiedTotal = v
			}
		})
		registerCollector(reg, PaymentIntentTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentIntentTotal = v
			}
		})
	})
}
