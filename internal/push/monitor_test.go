package push

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for uptime calculations.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedMonitor() (*Monitor, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := &Monitor{now: clock.Now}
	m.Reset()
	return m, clock
}

func TestMonitor_Snapshot(t *testing.T) {
	m, clock := newClockedMonitor()

	m.RecordMessageProcessed(10*time.Millisecond, PriorityNormal)
	m.RecordMessageProcessed(20*time.Millisecond, PriorityUrgent)
	m.RecordMessageProcessed(30*time.Millisecond, PriorityRoutine)
	m.RecordMessageProcessed(40*time.Millisecond, PriorityNormal)
	m.RecordQueueSize(7)
	m.RecordQueueSize(3)
	clock.Advance(2 * time.Second)

	h := m.HealthStatus()
	assert.EqualValues(t, 4, h.MessagesProcessed)
	assert.EqualValues(t, 1, h.UrgentProcessed)
	assert.EqualValues(t, 7, h.MaxQueueSize)
	assert.Equal(t, 25*time.Millisecond, h.AverageProcessingTime)
	assert.InDelta(t, 2.0, h.MessagesPerSecond, 1e-9)
	assert.Equal(t, 2*time.Second, h.Uptime)
	assert.True(t, h.Healthy)
	assert.Empty(t, h.Issues)
}

func TestMonitor_EmptySnapshot(t *testing.T) {
	m, _ := newClockedMonitor()

	h := m.HealthStatus()
	assert.Zero(t, h.AverageProcessingTime)
	assert.Zero(t, h.MessagesPerSecond)
	assert.Zero(t, h.ErrorRate())
	assert.True(t, h.Healthy)
}

func TestMonitor_Reset(t *testing.T) {
	m, clock := newClockedMonitor()

	m.RecordMessageProcessed(time.Second, PriorityUrgent)
	m.RecordQueueSize(500)
	m.RecordQueueOverflow()
	m.RecordError()
	m.RecordError()
	clock.Advance(time.Minute)
	require.False(t, m.IsHealthy())

	m.Reset()

	h := m.HealthStatus()
	assert.Zero(t, h.MessagesProcessed)
	assert.Zero(t, h.UrgentProcessed)
	assert.Zero(t, h.Errors)
	assert.Zero(t, h.QueueOverflows)
	assert.Zero(t, h.MaxQueueSize)
	assert.Zero(t, h.AverageProcessingTime)
	assert.Zero(t, h.Uptime)
	assert.True(t, m.IsHealthy())
	assert.Empty(t, h.Issues)

	// Reset twice is the same as once.
	m.Reset()
	assert.Equal(t, h, m.HealthStatus())
}

func TestMonitor_ErrorRateFlipsHealth(t *testing.T) {
	m, _ := newClockedMonitor()

	for range 10 {
		m.RecordMessageProcessed(time.Millisecond, PriorityNormal)
	}
	m.RecordError()
	assert.True(t, m.IsHealthy(), "1 error in 10 is exactly 10 percent")

	m.RecordError()
	h := m.HealthStatus()
	assert.False(t, h.Healthy)
	assert.Contains(t, h.Issues, "error rate")
	assert.InDelta(t, 0.2, h.ErrorRate(), 1e-9)
}

func TestMonitor_ErrorsWithoutProcessed(t *testing.T) {
	m, _ := newClockedMonitor()
	m.RecordError()

	h := m.HealthStatus()
	assert.False(t, h.Healthy)
	assert.Contains(t, h.Issues, "error rate")
}

func TestMonitor_OverflowFlipsHealth(t *testing.T) {
	m, _ := newClockedMonitor()
	for range 100 {
		m.RecordMessageProcessed(time.Millisecond, PriorityNormal)
	}
	require.True(t, m.IsHealthy())

	m.RecordQueueOverflow()
	h := m.HealthStatus()
	assert.False(t, h.Healthy)
	assert.Contains(t, h.Issues, "overflow")
}

func TestMonitor_LargeQueueIsAdvisory(t *testing.T) {
	m, _ := newClockedMonitor()
	m.RecordQueueSize(150)

	h := m.HealthStatus()
	assert.True(t, h.Healthy)
	assert.Contains(t, h.Issues, "large queue")

	m.RecordQueueSize(100)
	assert.EqualValues(t, 150, m.HealthStatus().MaxQueueSize)
}

func TestMonitor_ConcurrentHighWaterMark(t *testing.T) {
	m := NewMonitor()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 1000 {
				m.RecordQueueSize(i*8 + g)
				m.RecordMessageProcessed(time.Microsecond, PriorityNormal)
			}
		}()
	}
	wg.Wait()

	h := m.HealthStatus()
	assert.EqualValues(t, 7999, h.MaxQueueSize)
	assert.EqualValues(t, 8000, h.MessagesProcessed)
}
