package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CollectorMetrics tracks the matured loan collection job.
type CollectorMetrics struct {
	runs      *prometheus.CounterVec
	collected prometheus.Counter
}

var (
	collectorMetricsOnce sync.Once
	collectorRegistry    *CollectorMetrics
)

func Collector() *CollectorMetrics {
	collectorMetricsOnce.Do(func() {
		collectorRegistry = &CollectorMetrics{
			runs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "augmint",
				Subsystem: "collector",
				Name:      "runs_total",
				Help:      "Collector runs segmented by outcome.",
			}, []string{"outcome"}),
			collected: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "augmint",
				Subsystem: "collector",
				Name:      "loans_collected_total",
				Help:      "Defaulted loans collected by the scheduled job.",
			}),
		}
		prometheus.MustRegister(collectorRegistry.runs, collectorRegistry.collected)
	})
	return collectorRegistry
}

// ObserveRun records one run. outcome is "idle", "collected" or "error".
func (m *CollectorMetrics) ObserveRun(outcome string, collected int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	if collected > 0 {
		m.collected.Add(float64(collected))
	}
}
