package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncIntentDispatched("cart")
	collector.ObserveIntentDuration("cart", time.Second)
	collector.SetSubscribers("cart", 3)
}

func TestPrometheusCollectorRegistersAndReusesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.NotNil(t, collector)

	collector.IncIntentDispatched("cart")
	collector.IncIntentDispatched("cart")

	families, err := reg.Gather()
	require.NoError(t, err)
	family := findFamily(t, families, "orbit_intents_dispatched_total")
	requireCounterValue(t, family, 2)

	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector, again)

	again.IncIntentDispatched("cart")
	families, err = reg.Gather()
	require.NoError(t, err)
	requireCounterValue(t, findFamily(t, families, "orbit_intents_dispatched_total"), 3)
}

func TestPrometheusCollectorReusesForeignRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	existing := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_intents_failed_total",
		Help: "Number of intents that returned an error or panicked.",
	}, []string{"container"})
	require.NoError(t, reg.Register(existing))

	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, existing, collector.failed)
}

func TestPrometheusCollectorRecordsAllSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.IncIntentFailed("cart")
	collector.IncIntentCancelled("cart")
	collector.ObserveIntentDuration("cart", 5*time.Millisecond)
	collector.IncSideEffectPosted("cart")
	collector.IncStateUpdate("cart")
	collector.SetSubscribers("cart", 2)

	families, err := reg.Gather()
	require.NoError(t, err)
	requireCounterValue(t, findFamily(t, families, "orbit_intents_failed_total"), 1)
	requireCounterValue(t, findFamily(t, families, "orbit_intents_cancelled_total"), 1)
	requireCounterValue(t, findFamily(t, families, "orbit_side_effects_posted_total"), 1)
	requireCounterValue(t, findFamily(t, families, "orbit_state_updates_total"), 1)

	gauge := findFamily(t, families, "orbit_subscribers")
	require.Len(t, gauge.Metric, 1)
	require.Equal(t, 2.0, gauge.Metric[0].GetGauge().GetValue())

	hist := findFamily(t, families, "orbit_intent_duration_seconds")
	require.Len(t, hist.Metric, 1)
	require.Equal(t, uint64(1), hist.Metric[0].GetHistogram().GetSampleCount())
}

func TestNilPrometheusCollectorIsSafe(t *testing.T) {
	var collector *PrometheusCollector
	collector.IncIntentDispatched("cart")
	collector.SetSubscribers("cart", 1)
}

func findFamily(t *testing.T, families []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not gathered", name)
	return nil
}

func requireCounterValue(t *testing.T, mf *dto.MetricFamily, value float64) {
	t.Helper()
	require.Len(t, mf.Metric, 1)
	require.NotNil(t, mf.Metric[0].Counter)
	require.Equal(t, value, mf.Metric[0].Counter.GetValue())
}
