package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementPushHealth is the measurement name for push queue snapshots.
const measurementPushHealth = "push_health"

// HealthPoint is one snapshot of the push queue counters.
type HealthPoint struct {
	ServerID          string
	Processed         int64
	MessagesPerSecond float64
	AvgProcessingMs   float64
	Urgent            int64
	Errors            int64
	Overflow          int64
	MaxQueueSize      int64
	Healthy           bool
}

// newHealthPoint converts a snapshot into a line-protocol point.
func newHealthPoint(h HealthPoint, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementPushHealth,
		map[string]string{
			"server_id": h.ServerID,
		},
		map[string]interface{}{
			"processed":           h.Processed,
			"messages_per_second": h.MessagesPerSecond,
			"avg_processing_ms":   h.AvgProcessingMs,
			"urgent":              h.Urgent,
			"errors":              h.Errors,
			"overflow":            h.Overflow,
			"max_queue_size":      h.MaxQueueSize,
			"healthy":             h.Healthy,
		},
		ts,
	)
}

// WritePushHealth queues a push health snapshot stamped with the current time.
// The write is non-blocking; failures surface through the SetOnError callback.
func (c *Client) WritePushHealth(h HealthPoint) {
	c.WritePushHealthAt(h, time.Now())
}

// WritePushHealthAt is WritePushHealth with an explicit timestamp.
func (c *Client) WritePushHealthAt(h HealthPoint, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newHealthPoint(h, ts))
}
