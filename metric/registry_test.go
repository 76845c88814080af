package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistryRegistersCoreMetrics(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry.CoreMetrics())

	// Touching a core metric then gathering must not panic or error
	registry.Metrics.ConnectionsTotal.Inc()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	value := testutil.ToFloat64(registry.Metrics.ConnectionsTotal)
	assert.Equal(t, float64(1), value)
}

func TestRegisterAndUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_component_things_total",
		Help: "test counter",
	})

	require.NoError(t, registry.Register("dispatcher", "things_total", counter))
	assert.Equal(t, 1, registry.Registered())

	// Duplicate registration under the same key must fail
	err := registry.Register("dispatcher", "things_total", counter)
	require.Error(t, err)

	assert.True(t, registry.Unregister("dispatcher", "things_total"))
	assert.False(t, registry.Unregister("dispatcher", "things_total"))
	assert.Equal(t, 0, registry.Registered())
}

func TestConnectionStateGauge(t *testing.T) {
	registry := NewMetricsRegistry()

	registry.Metrics.ConnectionState.WithLabelValues("robot-7").Set(3)
	value := testutil.ToFloat64(registry.Metrics.ConnectionState.WithLabelValues("robot-7"))
	assert.Equal(t, float64(3), value)
}
