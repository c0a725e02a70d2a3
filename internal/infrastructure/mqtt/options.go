package mqtt

import (
	"crypto/tls"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 500 // milliseconds

	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2
)

// Options describe a single client connection.
type Options struct {
	// Target is the endpoint actually dialled.
	Target Endpoint

	ClientID string
	Username string
	Password string

	// TLSConfig is required when Target.Secure is set.
	TLSConfig *tls.Config

	// ConnectTimeout defaults to 10s.
	ConnectTimeout time.Duration
}

// buildClientOptions creates paho options for a connection.
//
// Paho's own reconnect logic is disabled. Reconnection is driven by the
// ConnectionManager when a publish fails, and two reconnect loops sharing one
// client ID would keep kicking each other off the broker.
func buildClientOptions(o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.Target.URL())
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(timeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWriteTimeout(defaultPublishTimeout)

	if o.Target.Secure && o.TLSConfig != nil {
		opts.SetTLSConfig(o.TLSConfig)
	}

	return opts
}
