package mqtt

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

// closedPort returns a localhost port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func TestConnect_BrokerRefused(t *testing.T) {
	opts := Options{
		Target:         Endpoint{Scheme: "tcp", Host: "127.0.0.1", Port: closedPort(t)},
		ClientID:       "hmdm-test",
		ConnectTimeout: 2 * time.Second,
	}

	_, err := Connect(context.Background(), opts)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_ContextCancelled(t *testing.T) {
	// A listener that accepts but never speaks MQTT keeps paho waiting.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = Connect(ctx, Options{
		Target:   Endpoint{Scheme: "tcp", Host: "127.0.0.1", Port: l.Addr().(*net.TCPAddr).Port},
		ClientID: "hmdm-test",
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestClient_ZeroValue(t *testing.T) {
	c := &Client{}

	if c.IsConnected() {
		t.Error("IsConnected() = true for zero client")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.Publish("dev1", []byte(`{}`), 2, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestClient_HealthCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := (&Client{}).HealthCheck(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestValidatePublish(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"valid", "h0001", []byte(`{"messageType":"configUpdated"}`), 2, nil},
		{"nil payload", "h0001", nil, 0, nil},
		{"empty topic", "", nil, 2, ErrInvalidTopic},
		{"plus wildcard", "dev/+", nil, 2, ErrInvalidTopic},
		{"hash wildcard", "#", nil, 2, ErrInvalidTopic},
		{"qos 3", "h0001", nil, 3, ErrInvalidQoS},
		{"oversized", "h0001", []byte(strings.Repeat("x", maxPayloadSize+1)), 2, ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePublish(tt.topic, tt.payload, tt.qos)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validatePublish() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validatePublish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	ks, err := LoadKeystore(KeystorePath(testKeystoreDir, testKeystoreHost), testKeystorePassword)
	if err != nil {
		t.Fatalf("LoadKeystore() error = %v", err)
	}

	opts := buildClientOptions(Options{
		Target:    Endpoint{Scheme: "mqtts", Host: "localhost", Port: 8883, Secure: true},
		ClientID:  "hmdm-server-1",
		Username:  "user",
		Password:  "pass",
		TLSConfig: ks.ClientTLSConfig(testKeystoreHost, true),
	})

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://localhost:8883" {
		t.Errorf("Servers = %v, want [ssl://localhost:8883]", opts.Servers)
	}
	if opts.ClientID != "hmdm-server-1" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Errorf("credentials = %q/%q, want user/pass", opts.Username, opts.Password)
	}
	if opts.AutoReconnect {
		t.Error("AutoReconnect = true, want false")
	}
	if opts.TLSConfig == nil || !opts.TLSConfig.InsecureSkipVerify {
		t.Error("TLSConfig not applied")
	}
	if opts.ConnectTimeout != defaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", opts.ConnectTimeout, defaultConnectTimeout)
	}
}
