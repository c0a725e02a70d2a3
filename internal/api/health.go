package api

import (
	"context"
	"net/http"
	"time"

	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/mqtt"
)

// healthCheckTimeout bounds the database ping in the health endpoint.
const healthCheckTimeout = 2 * time.Second

type healthResponse struct {
	Status   string        `json:"status"`
	Version  string        `json:"version"`
	Push     pushHealth    `json:"push"`
	MQTT     *brokerHealth `json:"mqtt,omitempty"`
	Database string        `json:"database,omitempty"`
}

type pushHealth struct {
	Healthy             bool    `json:"healthy"`
	Issues              string  `json:"issues,omitempty"`
	MessagesProcessed   int64   `json:"messages_processed"`
	UrgentProcessed     int64   `json:"urgent_processed"`
	Errors              int64   `json:"errors"`
	QueueOverflows      int64   `json:"queue_overflows"`
	MaxQueueSize        int64   `json:"max_queue_size"`
	QueueLength         *int    `json:"queue_length,omitempty"`
	MessagesPerSecond   float64 `json:"messages_per_second"`
	AverageProcessingMs float64 `json:"average_processing_ms"`
	UptimeSeconds       float64 `json:"uptime_seconds"`
}

type brokerHealth struct {
	State    string `json:"state"`
	Endpoint string `json:"endpoint"`
}

// handleHealth reports the push monitor snapshot together with the broker
// and database state. Anything unhealthy turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.monitor.HealthStatus()
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Push: pushHealth{
			Healthy:             h.Healthy,
			Issues:              h.Issues,
			MessagesProcessed:   h.MessagesProcessed,
			UrgentProcessed:     h.UrgentProcessed,
			Errors:              h.Errors,
			QueueOverflows:      h.QueueOverflows,
			MaxQueueSize:        h.MaxQueueSize,
			MessagesPerSecond:   h.MessagesPerSecond,
			AverageProcessingMs: float64(h.AverageProcessingTime) / float64(time.Millisecond),
			UptimeSeconds:       h.Uptime.Seconds(),
		},
	}
	healthy := h.Healthy

	if s.queueLength != nil {
		n := s.queueLength()
		resp.Push.QueueLength = &n
	}

	if s.broker != nil {
		state := s.broker.State()
		resp.MQTT = &brokerHealth{
			State:    state.String(),
			Endpoint: s.broker.Endpoint().String(),
		}
		if state != mqtt.StateConnected {
			healthy = false
		}
	}

	if s.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		resp.Database = "ok"
		if err := s.database.HealthCheck(ctx); err != nil {
			resp.Database = err.Error()
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
