package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/h-mdm/hmdm-server-sub001/internal/audit"
	"github.com/h-mdm/hmdm-server-sub001/internal/device"
	"github.com/h-mdm/hmdm-server-sub001/internal/push"
)

// pushRequest is the body of a device push.
type pushRequest struct {
	MessageType string `json:"messageType"`

	// Payload is any JSON value; it is forwarded verbatim.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// pollResponse is the body returned to a long-polling device.
type pollResponse struct {
	Status string            `json:"status"`
	Data   []json.RawMessage `json:"data"`
}

// handlePoll parks the request until messages arrive for the device or the
// polling timeout elapses.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if strings.TrimSpace(number) == "" {
		writeBadRequest(w, "device number is required")
		return
	}

	d, err := s.devices.GetDeviceByNumber(r.Context(), number)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("poll device lookup failed", "number", number, "error", err)
		writeInternalError(w, "device lookup failed")
		return
	}

	msgs, err := s.polling.Poll(r.Context(), d.ID, s.pollTimeout)
	if err != nil {
		// Messages were requeued by the poller; the device will poll again.
		s.logger.Debug("poll ended without delivery", "device_id", d.ID, "error", err)
		if r.Context().Err() != nil {
			return
		}
		writeInternalError(w, "polling failed")
		return
	}

	data := make([]json.RawMessage, 0, len(msgs))
	for i := range msgs {
		encoded, err := msgs[i].Encode()
		if err != nil {
			s.logger.Warn("dropping undeliverable polled message",
				"device_id", d.ID,
				"message_type", msgs[i].MessageType,
				"error", err,
			)
			continue
		}
		data = append(data, encoded)
	}

	writeJSON(w, http.StatusOK, pollResponse{Status: "OK", Data: data})
}

// handlePushDevice sends a command to a single device.
func (s *Server) handlePushDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.MessageType) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "messageType is required")
		return
	}

	if _, err := s.devices.GetDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("push device lookup failed", "device_id", id, "error", err)
		writeInternalError(w, "device lookup failed")
		return
	}

	priority := push.Classify(req.MessageType)
	err := s.push.NotifyDevice(r.Context(), id, req.MessageType, string(req.Payload))
	s.recordAudit(r, &audit.Entry{
		Action:      audit.ActionDevicePush,
		TargetType:  audit.TargetDevice,
		TargetID:    id,
		MessageType: req.MessageType,
		Priority:    priority.String(),
		Recipients:  1,
	}, err)
	if err != nil {
		if errors.Is(err, push.ErrInvalidMessage) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		s.logger.Error("push to device failed",
			"device_id", id,
			"message_type", req.MessageType,
			"error", err,
		)
		writeInternalError(w, "push failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id":    id,
		"message_type": req.MessageType,
		"priority":     priority.String(),
	})
}

// handlePushConfiguration notifies every device using a configuration.
func (s *Server) handlePushConfiguration(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	n, err := s.push.NotifyConfigurationUpdated(r.Context(), id)
	if errors.Is(err, device.ErrConfigurationNotFound) {
		writeNotFound(w, "configuration not found")
		return
	}
	s.recordAudit(r, &audit.Entry{
		Action:      audit.ActionConfigurationPush,
		TargetType:  audit.TargetConfiguration,
		TargetID:    id,
		MessageType: push.TypeConfigUpdated,
		Priority:    push.Classify(push.TypeConfigUpdated).String(),
		Recipients:  n,
	}, err)
	if err != nil {
		s.logger.Error("configuration push failed", "configuration_id", id, "error", err)
		writeInternalError(w, "push failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"configuration_id": id,
		"devices":          n,
	})
}

// parseID reads the {id} path parameter, writing a 400 when it is invalid.
func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// recordAudit stores the outcome of an administrative push. Audit failures
// are logged and never fail the request.
func (s *Server) recordAudit(r *http.Request, e *audit.Entry, pushErr error) {
	if s.audit == nil {
		return
	}
	if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok {
		e.RequestID = id
	}
	if pushErr != nil {
		e.Error = pushErr.Error()
	}
	if err := s.audit.Record(r.Context(), e); err != nil {
		s.logger.Warn("recording push audit entry failed",
			"action", e.Action,
			"target_id", e.TargetID,
			"error", err,
		)
	}
}

// handleListAudit lists recorded pushes, newest first.
//
// Query parameters: action, target_type, target_id, failed, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		Action:     audit.Action(q.Get("action")),
		TargetType: q.Get("target_type"),
	}

	ints := []struct {
		name string
		dst  *int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}}
	for _, p := range ints {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeBadRequest(w, p.name+" must be an integer")
				return
			}
			*p.dst = n
		}
	}
	if v := q.Get("target_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeBadRequest(w, "target_id must be an integer")
			return
		}
		f.TargetID = id
	}
	if v := q.Get("failed"); v != "" {
		failed, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "failed must be a boolean")
			return
		}
		f.FailedOnly = failed
	}

	page, err := s.audit.List(r.Context(), f)
	if err != nil {
		s.logger.Error("listing push audit failed", "error", err)
		writeInternalError(w, "listing audit entries failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
