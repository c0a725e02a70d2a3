package mqtt

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultPlainPort  = 1883
	defaultSecurePort = 8883
	localHost         = "localhost"
)

// Schemes accepted in the broker URI. The value reports whether the
// transport is TLS.
var brokerSchemes = map[string]bool{
	"tcp":   false,
	"mqtt":  false,
	"ssl":   true,
	"mqtts": true,
	"tls":   true,
}

// Endpoint is a parsed broker address.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
	Secure bool
}

// ParseBrokerURI parses the configured broker URI.
//
// Accepted forms are tcp://, mqtt://, ssl://, mqtts:// and tls:// URIs and a
// bare host:port, which is treated as tcp. A missing host means localhost and
// a missing port selects 1883 or 8883 depending on the scheme.
//
// Errors wrap ErrInvalidBrokerURI.
func ParseBrokerURI(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("%w: empty", ErrInvalidBrokerURI)
	}
	if !strings.Contains(raw, "://") {
		raw = "tcp://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %w", ErrInvalidBrokerURI, err)
	}

	scheme := strings.ToLower(u.Scheme)
	secure, ok := brokerSchemes[scheme]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q (use tcp, mqtt, ssl, mqtts or tls)",
			ErrInvalidBrokerURI, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		host = localHost
	}

	port := defaultPlainPort
	if secure {
		port = defaultSecurePort
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: port %q is not a number", ErrInvalidBrokerURI, p)
		}
	}
	if port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: port %d out of range 1-65535", ErrInvalidBrokerURI, port)
	}

	return Endpoint{
		Scheme: scheme,
		Host:   host,
		Port:   port,
		Secure: secure,
	}, nil
}

// ConnectTarget returns the endpoint the server's own client dials.
// With an embedded broker that is always localhost on the configured port;
// the public host is only what devices use.
func (e Endpoint) ConnectTarget(external bool) Endpoint {
	if external {
		return e
	}
	e.Host = localHost
	return e
}

// BindAddress returns the listen address of an embedded broker.
func (e Endpoint) BindAddress() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(e.Port))
}

// URL returns the broker URL in the form paho expects.
func (e Endpoint) URL() string {
	scheme := "tcp"
	if e.Secure {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Scheme + "://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
