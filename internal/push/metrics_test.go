package push

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, c prometheus.Collector) map[string]*dto.Metric {
	t.Helper()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]*dto.Metric, len(families))
	for _, f := range families {
		require.Len(t, f.GetMetric(), 1, f.GetName())
		out[f.GetName()] = f.GetMetric()[0]
	}
	return out
}

func TestCollector(t *testing.T) {
	m, clock := newClockedMonitor()
	m.RecordMessageProcessed(20*time.Millisecond, PriorityUrgent)
	m.RecordMessageProcessed(40*time.Millisecond, PriorityNormal)
	m.RecordError()
	m.RecordQueueSize(12)
	clock.Advance(4 * time.Second)

	metrics := gather(t, NewCollector(m, func() int { return 5 }))
	require.Len(t, metrics, 10)

	assert.Equal(t, 2.0, metrics["hmdm_push_messages_processed_total"].GetCounter().GetValue())
	assert.Equal(t, 1.0, metrics["hmdm_push_urgent_messages_processed_total"].GetCounter().GetValue())
	assert.Equal(t, 1.0, metrics["hmdm_push_errors_total"].GetCounter().GetValue())
	assert.Equal(t, 0.0, metrics["hmdm_push_queue_overflows_total"].GetCounter().GetValue())
	assert.Equal(t, 12.0, metrics["hmdm_push_queue_high_water_mark"].GetGauge().GetValue())
	assert.Equal(t, 5.0, metrics["hmdm_push_queue_length"].GetGauge().GetValue())
	assert.InDelta(t, 0.03, metrics["hmdm_push_average_processing_seconds"].GetGauge().GetValue(), 1e-9)
	assert.InDelta(t, 0.5, metrics["hmdm_push_messages_per_second"].GetGauge().GetValue(), 1e-9)
	assert.Equal(t, 0.0, metrics["hmdm_push_healthy"].GetGauge().GetValue(), "1 error in 2 is unhealthy")
	assert.Equal(t, 4.0, metrics["hmdm_push_monitor_uptime_seconds"].GetGauge().GetValue())
}

func TestCollector_NilQueueLength(t *testing.T) {
	m, _ := newClockedMonitor()

	metrics := gather(t, NewCollector(m, nil))
	assert.Equal(t, 0.0, metrics["hmdm_push_queue_length"].GetGauge().GetValue())
	assert.Equal(t, 1.0, metrics["hmdm_push_healthy"].GetGauge().GetValue())
}
