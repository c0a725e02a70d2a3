package push

import (
	"context"
	"errors"
	"fmt"

	"github.com/h-mdm/hmdm-server-sub001/internal/device"
)

// Sender delivers a message over one transport.
type Sender interface {
	Send(ctx context.Context, m *Message) error
}

// Directory resolves configurations to the devices that use them.
// *device.Registry implements it.
type Directory interface {
	GetConfiguration(ctx context.Context, id int64) (*device.Configuration, error)
	DeviceIDsByConfiguration(ctx context.Context, configurationID int64) ([]int64, error)
}

// Service fans notifications out to every configured transport.
type Service struct {
	directory Directory
	senders   []Sender
	logger    Logger
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a service delivering through senders in order.
func NewService(directory Directory, senders []Sender, opts ...ServiceOption) *Service {
	s := &Service{
		directory: directory,
		senders:   senders,
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send hands m to every sender. A failing sender does not stop the others;
// all failures are returned joined.
func (s *Service) Send(ctx context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	var errs []error
	for _, sender := range s.senders {
		if err := sender.Send(ctx, m); err != nil {
			s.logger.Warn("push sender failed", "device_id", m.DeviceID, "type", m.MessageType, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyDevice sends one command to one device.
func (s *Service) NotifyDevice(ctx context.Context, deviceID int64, messageType, payload string) error {
	return s.Send(ctx, &Message{DeviceID: deviceID, MessageType: messageType, Payload: payload})
}

// NotifyConfigurationUpdated tells every device using the configuration to
// reload it. It returns the number of devices notified.
func (s *Service) NotifyConfigurationUpdated(ctx context.Context, configurationID int64) (int, error) {
	if _, err := s.directory.GetConfiguration(ctx, configurationID); err != nil {
		return 0, fmt.Errorf("configuration %d: %w", configurationID, err)
	}

	ids, err := s.directory.DeviceIDsByConfiguration(ctx, configurationID)
	if err != nil {
		return 0, fmt.Errorf("listing devices of configuration %d: %w", configurationID, err)
	}

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.NotifyDevice(ctx, id, TypeConfigUpdated, ""); err != nil {
			errs = append(errs, fmt.Errorf("device %d: %w", id, err))
		}
	}

	s.logger.Info("configuration update pushed",
		"configuration_id", configurationID, "devices", len(ids), "failures", len(errs))
	return len(ids), errors.Join(errs...)
}

// NotifySettingsChanged tells a device its application settings changed.
// Settings travel with the configuration, so the device reloads it.
func (s *Service) NotifySettingsChanged(ctx context.Context, deviceID int64) error {
	return s.NotifyDevice(ctx, deviceID, TypeConfigUpdated, "")
}
