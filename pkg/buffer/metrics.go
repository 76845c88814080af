package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/funkyflowstudios/synapse-hub-sub000/metric"
)

// bufferMetrics holds Prometheus metrics for buffer operations.
type bufferMetrics struct {
	writes    prometheus.Counter
	reads     prometheus.Counter
	peeks     prometheus.Counter
	overflows prometheus.Counter
	drops     prometheus.Counter
	expired   prometheus.Counter

	size        prometheus.Gauge
	utilization prometheus.Gauge
}

// newBufferMetrics creates and registers buffer metrics with the provided registry.
func newBufferMetrics(registry *metric.MetricsRegistry, prefix string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"stream": prefix}

	m := &bufferMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Subsystem: "buffer", Name: "writes_total",
			ConstLabels: labels,
			Help:        "Total number of buffer write operations",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Subsystem: "buffer", Name: "reads_total",
			ConstLabels: labels,
			Help:        "Total number of buffer read operations",
		}),
		peeks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Subsystem: "buffer", Name: "peeks_total",
			ConstLabels: labels,
			Help:        "Total number of buffer peek operations",
		}),
		overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Subsystem: "buffer", Name: "overflows_total",
			ConstLabels: labels,
			Help:        "Total number of buffer overflow events",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Subsystem: "buffer", Name: "drops_total",
			ConstLabels: labels,
			Help:        "Total number of items dropped due to overflow",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Subsystem: "buffer", Name: "expired_total",
			ConstLabels: labels,
			Help:        "Total number of items evicted by the time window",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "synapse", Subsystem: "buffer", Name: "size",
			ConstLabels: labels,
			Help:        "Current number of items in buffer",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "synapse", Subsystem: "buffer", Name: "utilization",
			ConstLabels: labels,
			Help:        "Buffer utilization as a fraction (0.0 to 1.0)",
		}),
	}

	registrations := []struct {
		name      string
		collector prometheus.Collector
	}{
		{"buffer_writes", m.writes},
		{"buffer_reads", m.reads},
		{"buffer_peeks", m.peeks},
		{"buffer_overflows", m.overflows},
		{"buffer_drops", m.drops},
		{"buffer_expired", m.expired},
		{"buffer_size", m.size},
		{"buffer_utilization", m.utilization},
	}
	for _, reg := range registrations {
		if err := registry.Register(prefix, reg.name, reg.collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}

func (m *bufferMetrics) recordRead(size, capacity int) {
	m.reads.Inc()
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}

func (m *bufferMetrics) recordPeek() {
	m.peeks.Inc()
}

func (m *bufferMetrics) recordOverflow() {
	m.overflows.Inc()
}

func (m *bufferMetrics) recordDrop() {
	m.drops.Inc()
}

func (m *bufferMetrics) recordExpire() {
	m.expired.Inc()
}

func (m *bufferMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
