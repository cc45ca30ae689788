package observability

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coreerrors "augmint/core/errors"
)

// NodeMetrics tracks operation outcomes and the monetary KPIs of the node.
type NodeMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	kpis       *prometheus.GaugeVec
	orderBook  *prometheus.GaugeVec
}

var (
	nodeMetricsOnce sync.Once
	nodeRegistry    *NodeMetrics
)

// Node returns the lazily-initialised node metrics registry.
func Node() *NodeMetrics {
	nodeMetricsOnce.Do(func() {
		nodeRegistry = &NodeMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "augmint",
				Subsystem: "node",
				Name:      "operations_total",
				Help:      "Total node operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "augmint",
				Subsystem: "node",
				Name:      "operation_failures_total",
				Help:      "Failed node operations segmented by operation and failure kind.",
			}, []string{"operation", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "augmint",
				Subsystem: "node",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for node operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			kpis: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "augmint",
				Subsystem: "supervisor",
				Name:      "kpi",
				Help:      "Monetary KPIs in token units: total_loan, total_locked and total_supply.",
			}, []string{"kpi"}),
			orderBook: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "augmint",
				Subsystem: "exchange",
				Name:      "open_orders",
				Help:      "Open orders on the exchange by side.",
			}, []string{"side"}),
		}
		prometheus.MustRegister(
			nodeRegistry.operations,
			nodeRegistry.failures,
			nodeRegistry.latency,
			nodeRegistry.kpis,
			nodeRegistry.orderBook,
		)
	})
	return nodeRegistry
}

// ObserveOperation records the outcome of one node operation.
func (m *NodeMetrics) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.failures.WithLabelValues(operation, failureKind(err)).Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

func failureKind(err error) string {
	switch coreerrors.Kind(err) {
	case coreerrors.ErrInvariantViolation:
		return "invariant_violation"
	case coreerrors.ErrPermissionDenied:
		return "permission_denied"
	case coreerrors.ErrInvalidState:
		return "invalid_state"
	case coreerrors.ErrArithmeticBounds:
		return "arithmetic_bounds"
	default:
		return "internal"
	}
}

// SetKPIs publishes the supervisor totals and the token supply.
func (m *NodeMetrics) SetKPIs(totalLoan, totalLocked, totalSupply *big.Int) {
	if m == nil {
		return
	}
	m.kpis.WithLabelValues("total_loan").Set(toFloat(totalLoan))
	m.kpis.WithLabelValues("total_locked").Set(toFloat(totalLocked))
	m.kpis.WithLabelValues("total_supply").Set(toFloat(totalSupply))
}

// SetOrderBook publishes the open order counts.
func (m *NodeMetrics) SetOrderBook(buyCount, sellCount int) {
	if m == nil {
		return
	}
	m.orderBook.WithLabelValues("buy").Set(float64(buyCount))
	m.orderBook.WithLabelValues("sell").Set(float64(sellCount))
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
