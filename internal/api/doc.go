// Package api implements the HTTP surface of the push delivery server.
//
// This package provides:
//   - The long-poll endpoint devices use when MQTT is unavailable
//   - Administrative endpoints that push commands and configuration updates
//   - Health and Prometheus metrics endpoints
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Long polling
//
// GET /rest/notifications/polling/{number} parks the request until a
// message for the device arrives or the polling timeout elapses. The
// response body is always a JSON envelope holding a (possibly empty)
// list of messages in the same wire format published over MQTT.
//
// # Graceful Degradation
//
// The server runs without a broker connection: health reports the MQTT
// state and push endpoints still reach devices through long polling.
package api
