package push

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Health thresholds.
const (
	// maxErrorRate is the error share of processed messages above which
	// delivery is unhealthy.
	maxErrorRate = 0.10

	// largeQueueSize is the backlog high-water mark that triggers an advisory.
	largeQueueSize = 100
)

// HealthStatus is a point-in-time view of delivery performance.
type HealthStatus struct {
	Healthy bool
	// Issues is a human-readable summary, empty when nothing is notable.
	Issues string

	MessagesProcessed     int64
	UrgentProcessed       int64
	Errors                int64
	QueueOverflows        int64
	MaxQueueSize          int64
	MessagesPerSecond     float64
	AverageProcessingTime time.Duration
	Uptime                time.Duration
}

// ErrorRate is errors as a share of processed messages.
func (h HealthStatus) ErrorRate() float64 {
	if h.MessagesProcessed == 0 {
		return 0
	}
	return float64(h.Errors) / float64(h.MessagesProcessed)
}

// Monitor tracks push delivery counters. All methods are safe for
// concurrent use and never block.
type Monitor struct {
	processed      atomic.Int64
	processingTime atomic.Int64 // nanoseconds
	urgent         atomic.Int64
	overflows      atomic.Int64
	errors         atomic.Int64
	maxQueue       atomic.Int64
	startedAt      atomic.Int64 // unix nanoseconds

	now func() time.Time
}

// NewMonitor creates a monitor whose uptime clock starts now.
func NewMonitor() *Monitor {
	m := &Monitor{now: time.Now}
	m.startedAt.Store(m.now().UnixNano())
	return m
}

// RecordMessageProcessed counts one handled message and its processing time.
func (m *Monitor) RecordMessageProcessed(d time.Duration, p Priority) {
	m.processed.Add(1)
	m.processingTime.Add(int64(d))
	if p == PriorityUrgent {
		m.urgent.Add(1)
	}
}

// RecordQueueSize raises the high-water mark if size exceeds it.
func (m *Monitor) RecordQueueSize(size int) {
	n := int64(size)
	for {
		cur := m.maxQueue.Load()
		if n <= cur || m.maxQueue.CompareAndSwap(cur, n) {
			return
		}
	}
}

// RecordQueueOverflow counts a message rejected by a full queue.
func (m *Monitor) RecordQueueOverflow() {
	m.overflows.Add(1)
}

// RecordError counts a failed delivery.
func (m *Monitor) RecordError() {
	m.errors.Add(1)
}

// HealthStatus computes a snapshot from the current counters.
func (m *Monitor) HealthStatus() HealthStatus {
	h := HealthStatus{
		MessagesProcessed: m.processed.Load(),
		UrgentProcessed:   m.urgent.Load(),
		Errors:            m.errors.Load(),
		QueueOverflows:    m.overflows.Load(),
		MaxQueueSize:      m.maxQueue.Load(),
		Uptime:            m.now().Sub(time.Unix(0, m.startedAt.Load())),
	}

	if secs := h.Uptime.Seconds(); secs > 0 {
		h.MessagesPerSecond = float64(h.MessagesProcessed) / secs
	}
	if h.MessagesProcessed > 0 {
		h.AverageProcessingTime = time.Duration(m.processingTime.Load() / h.MessagesProcessed)
	}

	var issues []string
	h.Healthy = true

	if h.QueueOverflows > 0 {
		h.Healthy = false
		issues = append(issues, fmt.Sprintf("queue overflowed %d times", h.QueueOverflows))
	}
	if float64(h.Errors) > maxErrorRate*float64(h.MessagesProcessed) {
		h.Healthy = false
		if h.MessagesProcessed == 0 {
			issues = append(issues, fmt.Sprintf("error rate high: %d errors with no messages processed", h.Errors))
		} else {
			issues = append(issues, fmt.Sprintf("error rate high: %.1f%% (%d of %d)",
				h.ErrorRate()*100, h.Errors, h.MessagesProcessed))
		}
	}
	if h.MaxQueueSize > largeQueueSize {
		issues = append(issues, fmt.Sprintf("large queue observed: %d messages", h.MaxQueueSize))
	}

	h.Issues = strings.Join(issues, "; ")
	return h
}

// IsHealthy reports whether the current snapshot is healthy.
func (m *Monitor) IsHealthy() bool {
	return m.HealthStatus().Healthy
}

// Reset zeroes every counter and restarts the uptime clock.
func (m *Monitor) Reset() {
	m.processed.Store(0)
	m.processingTime.Store(0)
	m.urgent.Store(0)
	m.overflows.Store(0)
	m.errors.Store(0)
	m.maxQueue.Store(0)
	m.startedAt.Store(m.now().UnixNano())
}
