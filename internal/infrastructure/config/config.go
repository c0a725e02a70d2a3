package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the push delivery server.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Push     PushConfig     `yaml:"push"`
	Polling  PollingConfig  `yaml:"polling"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig identifies this server instance.
type ServerConfig struct {
	ID      string `yaml:"id"`
	BaseURL string `yaml:"base_url"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	// URI is the broker address advertised to devices, e.g. "ssl://mdm.example.com:8883".
	// A bare "host:port" defaults to the tcp scheme.
	URI string `yaml:"uri"`

	// ExternalBroker is true when the broker is managed outside this process.
	// When false an embedded broker is started and the server's own client
	// always connects to localhost.
	ExternalBroker bool `yaml:"external_broker"`

	ClientID string         `yaml:"client_id"`
	Auth     MQTTAuthConfig `yaml:"auth"`
	TLS      MQTTTLSConfig  `yaml:"tls"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTLSConfig locates the per-domain PKCS#12 keystore.
// The keystore file is <keystore_dir>/<host>.p12 where host is the public broker host.
type MQTTTLSConfig struct {
	KeystoreDir      string `yaml:"keystore_dir"`
	KeystorePassword string `yaml:"keystore_password"`
}

// PushConfig contains throttling settings for the MQTT push queue.
type PushConfig struct {
	// MessageDelay is the base delay between queued publishes in milliseconds.
	// Zero disables the queue: every push is published synchronously.
	MessageDelay int `yaml:"message_delay"`

	// Adaptive enables backlog-dependent delays. When false MessageDelay is always used.
	Adaptive bool `yaml:"adaptive"`

	LightThreshold  int `yaml:"light_threshold"`
	MediumThreshold int `yaml:"medium_threshold"`
	HeavyThreshold  int `yaml:"heavy_threshold"`

	// MaxQueueSize bounds the queue. Zero means unbounded.
	MaxQueueSize int `yaml:"max_queue_size"`
}

// PollingConfig contains settings for the long-poll fallback transport.
type PollingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Timeout is how long a device's long-poll request stays parked (seconds).
	Timeout int `yaml:"timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains settings for exporting push health snapshots.
type InfluxDBConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	Org            string `yaml:"org"`
	Bucket         string `yaml:"bucket"`
	BatchSize      int    `yaml:"batch_size"`
	FlushInterval  int    `yaml:"flush_interval"`
	ExportInterval int    `yaml:"export_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HMDM_SECTION_KEY
// For example: HMDM_MQTT_URI, HMDM_PUSH_MESSAGE_DELAY
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ID:      "hmdm",
			BaseURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Path:        "./data/hmdm.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			URI:      "tcp://localhost:31000",
			ClientID: "hmdm-server",
			TLS: MQTTTLSConfig{
				KeystoreDir: "/var/lib/hmdm/keystore",
			},
		},
		Push: PushConfig{
			MessageDelay:    1000,
			Adaptive:        true,
			LightThreshold:  3,
			MediumThreshold: 15,
			HeavyThreshold:  50,
		},
		Polling: PollingConfig{
			Enabled: true,
			Timeout: 60,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 90,
				Idle:  120,
			},
		},
		InfluxDB: InfluxDBConfig{
			ExportInterval: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/hmdm-push.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     30,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HMDM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HMDM_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("HMDM_MQTT_URI"); v != "" {
		cfg.MQTT.URI = v
	}
	if v := os.Getenv("HMDM_MQTT_EXTERNAL_BROKER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.ExternalBroker = b
		}
	}
	if v := os.Getenv("HMDM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HMDM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("HMDM_MQTT_KEYSTORE_PASSWORD"); v != "" {
		cfg.MQTT.TLS.KeystorePassword = v
	}

	// Push
	if v := os.Getenv("HMDM_PUSH_MESSAGE_DELAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Push.MessageDelay = n
		}
	}

	// API
	if v := os.Getenv("HMDM_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("HMDM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Broker URI syntax is checked by the mqtt package when the connection
// manager is built, so only presence is verified here.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if strings.TrimSpace(c.MQTT.URI) == "" {
		errs = append(errs, "mqtt.uri is required")
	}
	if c.MQTT.ClientID == "" {
		errs = append(errs, "mqtt.client_id is required")
	}

	if c.Push.MessageDelay < 0 {
		errs = append(errs, "push.message_delay must not be negative")
	}
	if c.Push.LightThreshold < 0 ||
		c.Push.MediumThreshold < c.Push.LightThreshold ||
		c.Push.HeavyThreshold < c.Push.MediumThreshold {
		errs = append(errs, "push thresholds must satisfy 0 <= light <= medium <= heavy")
	}
	if c.Push.MaxQueueSize < 0 {
		errs = append(errs, "push.max_queue_size must not be negative")
	}

	if c.Polling.Enabled && c.Polling.Timeout < 1 {
		errs = append(errs, "polling.timeout must be at least 1 second")
	}

	if c.Polling.Enabled && c.API.Timeouts.Write > 0 && c.Polling.Timeout >= c.API.Timeouts.Write {
		errs = append(errs, "polling.timeout must be shorter than api.timeouts.write")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.ExportInterval < 1 {
			errs = append(errs, "influxdb.export_interval must be at least 1 second")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetMessageDelay returns the push base delay as a Duration.
func (c *Config) GetMessageDelay() time.Duration {
	return time.Duration(c.Push.MessageDelay) * time.Millisecond
}

// GetPollingTimeout returns the long-poll park timeout as a Duration.
func (c *Config) GetPollingTimeout() time.Duration {
	return time.Duration(c.Polling.Timeout) * time.Second
}

// GetExportInterval returns the InfluxDB health export interval as a Duration.
func (c *Config) GetExportInterval() time.Duration {
	return time.Duration(c.InfluxDB.ExportInterval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
