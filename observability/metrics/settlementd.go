package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementdMetrics bundles collectors for the backend authority service.
type SettlementdMetrics struct {
	completions    *prometheus.CounterVec
	authorizations *prometheus.CounterVec
	batchSize      prometheus.Histogram
	signLatency    prometheus.Histogram
	errors         *prometheus.CounterVec
}

var (
	settlementdOnce     sync.Once
	settlementdRegistry *SettlementdMetrics
)

// Settlementd exposes the metrics registry for settlementd.
func Settlementd() *SettlementdMetrics {
	settlementdOnce.Do(func() {
		settlementdRegistry = &SettlementdMetrics{
			completions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quest",
				Subsystem: "settlementd",
				Name:      "completions_total",
				Help:      "Recorded task completions, split into new and duplicate submissions.",
			}, []string{"result"}),
			authorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quest",
				Subsystem: "settlementd",
				Name:      "authorizations_total",
				Help:      "Batch authorizations served, split into issued and replayed.",
			}, []string{"result"}),
			batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "quest",
				Subsystem: "settlementd",
				Name:      "authorization_campaigns",
				Help:      "Number of campaigns bundled into each issued authorization.",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
			}),
			signLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "quest",
				Subsystem: "settlementd",
				Name:      "sign_duration_seconds",
				Help:      "Latency of EIP-712 authorization signing.",
				Buckets:   prometheus.DefBuckets,
			}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quest",
				Subsystem: "settlementd",
				Name:      "errors_total",
				Help:      "Request failures segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			settlementdRegistry.completions,
			settlementdRegistry.authorizations,
			settlementdRegistry.batchSize,
			settlementdRegistry.signLatency,
			settlementdRegistry.errors,
		)
	})
	return settlementdRegistry
}

// RecordCompletion counts a completion submission.
func (m *SettlementdMetrics) RecordCompletion(duplicate bool) {
	if m == nil {
		return
	}
	result := "recorded"
	if duplicate {
		result = "duplicate"
	}
	m.completions.WithLabelValues(result).Inc()
}

// RecordAuthorization counts an authorization response and, for newly issued
// ones, the bundle size.
func (m *SettlementdMetrics) RecordAuthorization(replayed bool, campaigns int) {
	if m == nil {
		return
	}
	if replayed {
		m.authorizations.WithLabelValues("replayed").Inc()
		return
	}
	m.authorizations.WithLabelValues("issued").Inc()
	m.batchSize.Observe(float64(campaigns))
}

// ObserveSign records the signing latency.
func (m *SettlementdMetrics) ObserveSign(d time.Duration) {
	if m == nil {
		return
	}
	m.signLatency.Observe(d.Seconds())
}

// RecordError increments the error counter for the supplied reason.
func (m *SettlementdMetrics) RecordError(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.errors.WithLabelValues(reason).Inc()
}
