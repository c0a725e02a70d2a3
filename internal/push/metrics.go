package push

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports Monitor snapshots as Prometheus metrics. Values are read
// at scrape time.
type Collector struct {
	monitor *Monitor
	queue   func() int

	processed     *prometheus.Desc
	urgent        *prometheus.Desc
	errors        *prometheus.Desc
	overflows     *prometheus.Desc
	maxQueue      *prometheus.Desc
	queueLength   *prometheus.Desc
	avgProcessing *prometheus.Desc
	throughput    *prometheus.Desc
	healthy       *prometheus.Desc
	uptimeSeconds *prometheus.Desc
}

// NewCollector creates a collector for m. queueLength may be nil.
func NewCollector(m *Monitor, queueLength func() int) *Collector {
	const ns, sub = "hmdm", "push"
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(ns, sub, name), help, nil, nil)
	}
	return &Collector{
		monitor:       m,
		queue:         queueLength,
		processed:     desc("messages_processed_total", "Push messages handled by the MQTT path"),
		urgent:        desc("urgent_messages_processed_total", "Urgent push messages handled"),
		errors:        desc("errors_total", "Push deliveries that failed"),
		overflows:     desc("queue_overflows_total", "Push messages rejected by a full queue"),
		maxQueue:      desc("queue_high_water_mark", "Largest push backlog observed"),
		queueLength:   desc("queue_length", "Current push backlog"),
		avgProcessing: desc("average_processing_seconds", "Mean time to deliver one push message"),
		throughput:    desc("messages_per_second", "Push messages handled per second of uptime"),
		healthy:       desc("healthy", "1 when push delivery is healthy"),
		uptimeSeconds: desc("monitor_uptime_seconds", "Seconds since the push monitor was started or reset"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.processed
	ch <- c.urgent
	ch <- c.errors
	ch <- c.overflows
	ch <- c.maxQueue
	ch <- c.queueLength
	ch <- c.avgProcessing
	ch <- c.throughput
	ch <- c.healthy
	ch <- c.uptimeSeconds
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	h := c.monitor.HealthStatus()

	healthy := 0.0
	if h.Healthy {
		healthy = 1
	}
	queueLength := 0
	if c.queue != nil {
		queueLength = c.queue()
	}

	ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(h.MessagesProcessed))
	ch <- prometheus.MustNewConstMetric(c.urgent, prometheus.CounterValue, float64(h.UrgentProcessed))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(h.Errors))
	ch <- prometheus.MustNewConstMetric(c.overflows, prometheus.CounterValue, float64(h.QueueOverflows))
	ch <- prometheus.MustNewConstMetric(c.maxQueue, prometheus.GaugeValue, float64(h.MaxQueueSize))
	ch <- prometheus.MustNewConstMetric(c.queueLength, prometheus.GaugeValue, float64(queueLength))
	ch <- prometheus.MustNewConstMetric(c.avgProcessing, prometheus.GaugeValue, h.AverageProcessingTime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.throughput, prometheus.GaugeValue, h.MessagesPerSecond)
	ch <- prometheus.MustNewConstMetric(c.healthy, prometheus.GaugeValue, healthy)
	ch <- prometheus.MustNewConstMetric(c.uptimeSeconds, prometheus.GaugeValue, h.Uptime.Seconds())
}
