package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // nothing to deliver to
//	}
var (
	// ErrDeviceNotFound is returned when a device ID or number does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when a device number is already taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrConfigurationNotFound is returned when a configuration ID does not exist.
	ErrConfigurationNotFound = errors.New("device: configuration not found")

	// ErrInvalidNumber is returned when a device number cannot be used as an MQTT topic.
	ErrInvalidNumber = errors.New("device: invalid number")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")
)
