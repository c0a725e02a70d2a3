package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/h-mdm/hmdm-server-sub001/internal/push"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("HMDM_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_MissingDatabasePath(t *testing.T) {
	t.Setenv("HMDM_CONFIG", writeConfig(t, `
database:
  path: ""
mqtt:
  uri: "tcp://127.0.0.1:1883"
  client_id: "test-client"
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "database.path") {
		t.Fatalf("run() error = %v, want database.path validation failure", err)
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("HMDM_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("HMDM_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestClientID_Unique(t *testing.T) {
	a, b := clientID("hmdm-server"), clientID("hmdm-server")
	if a == b {
		t.Errorf("clientID() returned %q twice", a)
	}
	if !strings.HasPrefix(a, "hmdm-server-") || len(a) != len("hmdm-server-")+8 {
		t.Errorf("clientID() = %q, want hmdm-server-<8 chars>", a)
	}
}

func TestHealthPoint(t *testing.T) {
	p := healthPoint("mdm-1", push.HealthStatus{
		Healthy:               false,
		MessagesProcessed:     40,
		UrgentProcessed:       3,
		Errors:                5,
		QueueOverflows:        1,
		MaxQueueSize:          120,
		MessagesPerSecond:     2.5,
		AverageProcessingTime: 1500 * time.Microsecond,
	})

	if p.ServerID != "mdm-1" || p.Processed != 40 || p.Urgent != 3 {
		t.Errorf("identity/counters = %+v", p)
	}
	if p.Errors != 5 || p.Overflow != 1 || p.MaxQueueSize != 120 {
		t.Errorf("failure counters = %+v", p)
	}
	if p.AvgProcessingMs != 1.5 {
		t.Errorf("AvgProcessingMs = %v, want 1.5", p.AvgProcessingMs)
	}
	if p.Healthy {
		t.Error("Healthy = true, want false")
	}
}

// TestRun_EmbeddedBrokerStartupAndShutdown starts the whole server with an
// embedded broker and waits for the health endpoint to report ready.
func TestRun_EmbeddedBrokerStartupAndShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("starts the full server")
	}

	mqttPort, apiPort := freePort(t), freePort(t)
	t.Setenv("HMDM_CONFIG", writeConfig(t, fmt.Sprintf(`
server:
  id: "test"
database:
  path: %q
mqtt:
  uri: "tcp://127.0.0.1:%d"
  client_id: "hmdm-test"
push:
  message_delay: 10
polling:
  enabled: true
  timeout: 5
api:
  host: "127.0.0.1"
  port: %d
  timeouts:
    read: 5
    write: 10
    idle: 10
logging:
  level: error
  format: text
  output: stdout
`, filepath.Join(t.TempDir(), "hmdm.db"), mqttPort, apiPort)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", apiPort)
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		select {
		case err := <-done:
			t.Fatalf("run() exited early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not report healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v, want nil on shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}
