package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when the health export is switched off.
	// Callers treat it as "skip the exporter", not as a startup failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps a failed ping at startup.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck on a closed or zero client.
	ErrNotConnected = errors.New("influxdb: not connected")
)
