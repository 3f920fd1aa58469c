package resilience

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// BreakerState exposes the current breaker state per target (0 closed, 1 open, 2 half-open).
	BreakerState *prometheus.GaugeVec
	// BreakerOpenedTotal counts breaker open transitions per target.
	BreakerOpenedTotal *prometheus.CounterVec
)

// MustRegisterMetrics registers breaker collectors. Safe to call more than once.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per target (0 closed, 1 open, 2 half-open).",
		}, []string{"target"})
		BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_opened_total",
			Help:      "Number of times the circuit breaker opened per target.",
		}, []string{"target"})

		for _, c := range []prometheus.Collector{BreakerState, BreakerOpenedTotal} {
			if err := reg.Register(c); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					switch existing := are.ExistingCollector.(type) {
					case *prometheus.GaugeVec:
						BreakerState = existing
					case *prometheus.CounterVec:
						BreakerOpenedTotal = existing
					}
					continue
				}
				panic(fmt.Errorf("register breaker metric: %w", err))
			}
		}
	})
}
