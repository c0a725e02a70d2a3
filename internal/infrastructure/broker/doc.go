// Package broker runs the in-process MQTT broker devices connect to when
// no external broker is configured.
//
// The broker listens on all interfaces at the port from the public broker
// URI, with TLS from the same per-domain keystore the push client uses.
// Device authentication is not enforced at the broker; devices only learn
// their own number as a topic.
package broker
