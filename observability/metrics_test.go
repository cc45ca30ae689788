package observability

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	coreerrors "augmint/core/errors"
	"augmint/core/events"
)

func gather(t *testing.T, name string) []*dto.Metric {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family.GetMetric()
		}
	}
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, pair := range m.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}

func TestObserveOperationClassifiesFailures(t *testing.T) {
	m := Node()
	sentinel := coreerrors.New(coreerrors.ErrPermissionDenied, "denied")
	m.ObserveOperation("test.op", nil, time.Millisecond)
	m.ObserveOperation("test.op", fmt.Errorf("wrapped: %w", sentinel), time.Millisecond)

	var found bool
	for _, metric := range gather(t, "augmint_node_operation_failures_total") {
		if labelValue(metric, "operation") == "test.op" {
			require.Equal(t, "permission_denied", labelValue(metric, "kind"))
			require.Equal(t, float64(1), metric.GetCounter().GetValue())
			found = true
		}
	}
	require.True(t, found)
}

func TestKPIGauges(t *testing.T) {
	m := Node()
	m.SetKPIs(big.NewInt(1500), big.NewInt(2500), big.NewInt(9000))
	m.SetOrderBook(3, 1)

	values := map[string]float64{}
	for _, metric := range gather(t, "augmint_supervisor_kpi") {
		values[labelValue(metric, "kpi")] = metric.GetGauge().GetValue()
	}
	require.Equal(t, float64(1500), values["total_loan"])
	require.Equal(t, float64(2500), values["total_locked"])
	require.Equal(t, float64(9000), values["total_supply"])
}

func TestEventMetricsCountsByType(t *testing.T) {
	sink := Events()
	sink.Emit(events.RateChanged{Symbol: "EUR", NewRate: big.NewInt(1)})
	sink.Emit(events.RateChanged{Symbol: "EUR", NewRate: big.NewInt(2)})

	for _, metric := range gather(t, "augmint_events_emitted_total") {
		if labelValue(metric, "type") == events.TypeRateChanged {
			require.GreaterOrEqual(t, metric.GetCounter().GetValue(), float64(2))
			return
		}
	}
	t.Fatalf("rate change events not counted")
}
