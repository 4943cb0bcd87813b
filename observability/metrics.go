package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "omnivault"

type vaultMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

type bridgeMetrics struct {
	messages *prometheus.CounterVec
}

type strategyMetrics struct {
	evaluations *prometheus.CounterVec
}

var (
	vaultMetricsOnce sync.Once
	vaultRegistry    *vaultMetrics

	bridgeMetricsOnce sync.Once
	bridgeRegistry    *bridgeMetrics

	strategyMetricsOnce sync.Once
	strategyRegistry    *strategyMetrics
)

// VaultMetrics returns the lazily-initialised vault operation metrics.
func VaultMetrics() *vaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &vaultMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "operations_total",
				Help:      "Total vault operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "operation_seconds",
				Help:      "Vault operation latency in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
		}
		prometheus.MustRegister(vaultRegistry.operations, vaultRegistry.latency)
	})
	return vaultRegistry
}

// Observe records one vault operation with its latency.
func (m *vaultMetrics) Observe(operation string, err error, started time.Time) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// BridgeMetrics returns the lazily-initialised cross-domain message metrics.
func BridgeMetrics() *bridgeMetrics {
	bridgeMetricsOnce.Do(func() {
		bridgeRegistry = &bridgeMetrics{
			messages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bridge",
				Name:      "messages_total",
				Help:      "Cross-domain messages segmented by direction and outcome.",
			}, []string{"direction", "outcome"}),
		}
		prometheus.MustRegister(bridgeRegistry.messages)
	})
	return bridgeRegistry
}

// RecordSent counts one outbound message hand-off.
func (m *bridgeMetrics) RecordSent(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.messages.WithLabelValues("outbound", outcome).Inc()
}

// RecordReceived counts one inbound delivery attempt.
func (m *bridgeMetrics) RecordReceived(applied bool, err error) {
	if m == nil {
		return
	}
	outcome := "applied"
	switch {
	case err != nil:
		outcome = "rejected"
	case !applied:
		outcome = "duplicate"
	}
	m.messages.WithLabelValues("inbound", outcome).Inc()
}

// StrategyMetrics returns the lazily-initialised strategy metrics.
func StrategyMetrics() *strategyMetrics {
	strategyMetricsOnce.Do(func() {
		strategyRegistry = &strategyMetrics{
			evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "strategy",
				Name:      "evaluations_total",
				Help:      "Strategy evaluations segmented by decision.",
			}, []string{"decision"}),
		}
		prometheus.MustRegister(strategyRegistry.evaluations)
	})
	return strategyRegistry
}

// RecordEvaluation counts one rebalance check by its decision.
func (m *strategyMetrics) RecordEvaluation(decision string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(decision).Inc()
}
