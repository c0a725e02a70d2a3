package mqtt

import (
	"errors"
	"testing"
)

func TestParseBrokerURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantScheme string
		wantHost   string
		wantPort   int
		wantSecure bool
	}{
		{"tcp", "tcp://mdm.example.com:1883", "tcp", "mdm.example.com", 1883, false},
		{"mqtt", "mqtt://mdm.example.com:1883", "mqtt", "mdm.example.com", 1883, false},
		{"ssl", "ssl://mdm.example.com:8883", "ssl", "mdm.example.com", 8883, true},
		{"mqtts", "mqtts://mdm.example.com:8883", "mqtts", "mdm.example.com", 8883, true},
		{"tls upper case", "TLS://mdm.example.com:8883", "tls", "mdm.example.com", 8883, true},
		{"bare host port", "mdm.example.com:31000", "tcp", "mdm.example.com", 31000, false},
		{"missing host", "tcp://:1883", "tcp", "localhost", 1883, false},
		{"bare port only", ":31000", "tcp", "localhost", 31000, false},
		{"default plain port", "tcp://broker", "tcp", "broker", 1883, false},
		{"default secure port", "ssl://broker", "ssl", "broker", 8883, true},
		{"ipv6", "tcp://[::1]:1883", "tcp", "::1", 1883, false},
		{"surrounding space", "  ssl://h:9000 ", "ssl", "h", 9000, true},
		{"max port", "tcp://h:65535", "tcp", "h", 65535, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := ParseBrokerURI(tt.uri)
			if err != nil {
				t.Fatalf("ParseBrokerURI(%q) error = %v", tt.uri, err)
			}
			if ep.Scheme != tt.wantScheme {
				t.Errorf("Scheme = %q, want %q", ep.Scheme, tt.wantScheme)
			}
			if ep.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", ep.Host, tt.wantHost)
			}
			if ep.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", ep.Port, tt.wantPort)
			}
			if ep.Secure != tt.wantSecure {
				t.Errorf("Secure = %v, want %v", ep.Secure, tt.wantSecure)
			}
		})
	}
}

func TestParseBrokerURI_Invalid(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"unknown scheme", "ws://mdm.example.com:80"},
		{"http scheme", "http://mdm.example.com:1883"},
		{"port zero", "tcp://h:0"},
		{"port too high", "tcp://h:65536"},
		{"port not numeric", "tcp://h:abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBrokerURI(tt.uri)
			if err == nil {
				t.Fatalf("ParseBrokerURI(%q) expected error, got nil", tt.uri)
			}
			if !errors.Is(err, ErrInvalidBrokerURI) {
				t.Errorf("error = %v, want ErrInvalidBrokerURI", err)
			}
		})
	}
}

func TestEndpoint_ConnectTarget(t *testing.T) {
	ep, err := ParseBrokerURI("ssl://mdm.example.com:8883")
	if err != nil {
		t.Fatalf("ParseBrokerURI() error = %v", err)
	}

	embedded := ep.ConnectTarget(false)
	if embedded.Host != "localhost" || embedded.Port != 8883 || !embedded.Secure {
		t.Errorf("embedded target = %+v, want localhost:8883 secure", embedded)
	}

	external := ep.ConnectTarget(true)
	if external != ep {
		t.Errorf("external target = %+v, want %+v", external, ep)
	}

	// The public endpoint itself is unchanged.
	if ep.Host != "mdm.example.com" {
		t.Errorf("ConnectTarget mutated receiver: host = %q", ep.Host)
	}
}

func TestEndpoint_Addresses(t *testing.T) {
	ep := Endpoint{Scheme: "mqtts", Host: "mdm.example.com", Port: 8883, Secure: true}

	if got := ep.BindAddress(); got != "0.0.0.0:8883" {
		t.Errorf("BindAddress() = %q, want 0.0.0.0:8883", got)
	}
	if got := ep.URL(); got != "ssl://mdm.example.com:8883" {
		t.Errorf("URL() = %q, want ssl://mdm.example.com:8883", got)
	}
	if got := ep.String(); got != "mqtts://mdm.example.com:8883" {
		t.Errorf("String() = %q, want mqtts://mdm.example.com:8883", got)
	}

	plain := Endpoint{Scheme: "mqtt", Host: "::1", Port: 1883}
	if got := plain.URL(); got != "tcp://[::1]:1883" {
		t.Errorf("URL() = %q, want tcp://[::1]:1883", got)
	}
}
