package influxdb

import (
	"context"
	"time"
)

// HealthWriter accepts health snapshots. *Client implements it.
type HealthWriter interface {
	WritePushHealth(h HealthPoint)
}

// Exporter periodically samples a snapshot source and writes it.
type Exporter struct {
	writer   HealthWriter
	source   func() HealthPoint
	interval time.Duration
}

// NewExporter creates an exporter writing source() every interval.
func NewExporter(w HealthWriter, source func() HealthPoint, interval time.Duration) *Exporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Exporter{writer: w, source: source, interval: interval}
}

// Run writes one snapshot per tick until ctx is cancelled, then writes a
// final snapshot so the last interval is not lost.
func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.writer.WritePushHealth(e.source())
			return nil
		case <-ticker.C:
			e.writer.WritePushHealth(e.source())
		}
	}
}
