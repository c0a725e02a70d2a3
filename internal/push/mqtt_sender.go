package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/h-mdm/hmdm-server-sub001/internal/device"
)

// DeviceLookup resolves a device by ID. *device.Registry implements it.
type DeviceLookup interface {
	GetDevice(ctx context.Context, id int64) (*device.Device, error)
}

// ConnectionSource is the connection lifecycle the MQTT sender drives.
// *mqtt.ConnectionManager implements it.
type ConnectionSource interface {
	ClientSource
	Connect(ctx context.Context) error
	OnFirstConnect(fn func())
}

// MQTTSender publishes push messages to devices over MQTT.
//
// With a zero base delay every message is published synchronously.
// Otherwise messages are classified and queued on the ThrottledSender.
type MQTTSender struct {
	devices  DeviceLookup
	conn     ConnectionSource
	throttle *ThrottledSender
	monitor  *Monitor
	logger   Logger

	// publishMu serialises direct publishes only.
	publishMu sync.Mutex
}

// MQTTSenderOption customises an MQTTSender.
type MQTTSenderOption func(*MQTTSender)

// WithSenderLogger sets the logger.
func WithSenderLogger(l Logger) MQTTSenderOption {
	return func(s *MQTTSender) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewMQTTSender creates an MQTT sender. The throttle's base delay selects the
// direct or queued path and its monitor receives direct-path outcomes.
func NewMQTTSender(devices DeviceLookup, conn ConnectionSource, throttle *ThrottledSender, opts ...MQTTSenderOption) *MQTTSender {
	s := &MQTTSender{
		devices:  devices,
		conn:     conn,
		throttle: throttle,
		monitor:  throttle.monitor,
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects to the broker. The queue worker is started on the first
// successful connection and is never started again by later reconnects.
func (s *MQTTSender) Start(ctx context.Context) error {
	if s.queued() {
		s.conn.OnFirstConnect(func() { s.throttle.Start(ctx) })
	}
	if err := s.conn.Connect(ctx); err != nil {
		return fmt.Errorf("starting mqtt sender: %w", err)
	}
	return nil
}

// Stop stops the queue worker.
func (s *MQTTSender) Stop() {
	s.throttle.Stop()
}

// Send delivers m to its device. An unknown device is a no-op. Broker
// failures are logged and counted, never returned.
func (s *MQTTSender) Send(ctx context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	dev, err := s.devices.GetDevice(ctx, m.DeviceID)
	if errors.Is(err, device.ErrDeviceNotFound) {
		s.logger.Debug("push target device not found", "device_id", m.DeviceID, "type", m.MessageType)
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up device %d: %w", m.DeviceID, err)
	}

	payload, err := m.Encode()
	if err != nil {
		return err
	}
	address := dev.PushAddress()
	priority := ClassifyMessage(m)

	if !s.queued() {
		s.publishDirect(ctx, address, payload, priority)
		return nil
	}

	env := NewEnvelope(address, payload, QoSExactlyOnce, WithPriority(priority))
	if err := s.throttle.Send(ctx, env); err != nil {
		return fmt.Errorf("queueing push for device %d: %w", m.DeviceID, err)
	}
	return nil
}

func (s *MQTTSender) queued() bool {
	return s.throttle.Config().BaseDelay > 0
}

// publishDirect publishes once and reconnects on failure.
func (s *MQTTSender) publishDirect(ctx context.Context, address string, payload []byte, p Priority) {
	start := time.Now()

	err := ErrNoClient
	if c, ok := s.conn.Client(); ok {
		s.publishMu.Lock()
		err = c.Publish(address, payload, QoSExactlyOnce, false)
		s.publishMu.Unlock()
	}

	s.monitor.RecordMessageProcessed(time.Since(start), p)
	if err == nil {
		s.logger.Debug("push message published", "address", address, "priority", p.String())
		return
	}

	s.monitor.RecordError()
	s.logger.Warn("direct push failed, reconnecting", "address", address, "error", err)
	if _, rerr := s.conn.Reconnect(ctx); rerr != nil {
		s.logger.Error("mqtt reconnect failed", "error", rerr)
	}
}
