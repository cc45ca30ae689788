package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"augmint/core/events"
)

// EventMetrics counts committed events by type. It is an events.Emitter so the
// node can flush into it like any other sink.
type EventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *EventMetrics
)

// Events returns the metrics registry tracking committed events.
func Events() *EventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &EventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "augmint",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed events segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

func (m *EventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.emitted.WithLabelValues(normalizeLabel(evt.EventType())).Inc()
}
