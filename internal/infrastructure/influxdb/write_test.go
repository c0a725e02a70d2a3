package influxdb

import (
	"testing"
	"time"
)

func TestNewHealthPoint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := newHealthPoint(HealthPoint{
		ServerID:          "hmdm-1",
		Processed:         50,
		MessagesPerSecond: 1.5,
		AvgProcessingMs:   20,
		Urgent:            4,
		Errors:            6,
		Overflow:          1,
		MaxQueueSize:      120,
		Healthy:           false,
	}, ts)

	if p.Name() != measurementPushHealth {
		t.Errorf("Name() = %q, want %q", p.Name(), measurementPushHealth)
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", p.Time(), ts)
	}

	tags := p.TagList()
	if len(tags) != 1 || tags[0].Key != "server_id" || tags[0].Value != "hmdm-1" {
		t.Errorf("tags = %v, want server_id=hmdm-1", tags)
	}

	fields := make(map[string]interface{})
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	want := map[string]interface{}{
		"processed":           int64(50),
		"messages_per_second": 1.5,
		"avg_processing_ms":   20.0,
		"urgent":              int64(4),
		"errors":              int64(6),
		"overflow":            int64(1),
		"max_queue_size":      int64(120),
		"healthy":             false,
	}
	if len(fields) != len(want) {
		t.Fatalf("field count = %d, want %d", len(fields), len(want))
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %v (%T), want %v (%T)", k, fields[k], fields[k], v, v)
		}
	}
}
