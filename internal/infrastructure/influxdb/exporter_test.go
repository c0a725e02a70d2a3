package influxdb

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingWriter struct {
	mu     sync.Mutex
	points []HealthPoint
}

func (w *recordingWriter) WritePushHealth(h HealthPoint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, h)
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.points)
}

func TestExporter_RunWritesUntilCancelled(t *testing.T) {
	w := &recordingWriter{}
	var samples atomic.Int64
	source := func() HealthPoint {
		return HealthPoint{ServerID: "hmdm", Processed: samples.Add(1)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewExporter(w, source, 10*time.Millisecond).Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for w.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if got := w.count(); got < 4 {
		t.Errorf("points written = %d, want at least 4 (3 ticks + final)", got)
	}
	last := w.points[len(w.points)-1]
	if last.Processed != samples.Load() {
		t.Errorf("final point Processed = %d, want latest sample %d", last.Processed, samples.Load())
	}
}

func TestNewExporter_DefaultInterval(t *testing.T) {
	e := NewExporter(&recordingWriter{}, func() HealthPoint { return HealthPoint{} }, 0)
	if e.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", e.interval)
	}
}
