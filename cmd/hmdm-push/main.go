// hmdm-push delivers MDM commands to enrolled Android devices.
//
// Commands travel over MQTT (an embedded broker or an external one) through
// an adaptive, priority-aware throttle. Devices that cannot hold an MQTT
// session long-poll the HTTP API instead; messages for offline devices are
// kept in SQLite until the next poll.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	_ "github.com/h-mdm/hmdm-server-sub001/migrations"

	"github.com/h-mdm/hmdm-server-sub001/internal/api"
	"github.com/h-mdm/hmdm-server-sub001/internal/audit"
	"github.com/h-mdm/hmdm-server-sub001/internal/device"
	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/broker"
	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/config"
	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/database"
	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/influxdb"
	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/logging"
	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/mqtt"
	"github.com/h-mdm/hmdm-server-sub001/internal/push"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the server together and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting hmdm push server",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer func() { _ = log.Close() }()
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)

	conn, err := mqtt.NewConnectionManager(mqtt.ManagerConfig{
		URI:              cfg.MQTT.URI,
		External:         cfg.MQTT.ExternalBroker,
		ClientID:         clientID(cfg.MQTT.ClientID),
		Username:         cfg.MQTT.Auth.Username,
		Password:         cfg.MQTT.Auth.Password,
		KeystoreDir:      cfg.MQTT.TLS.KeystoreDir,
		KeystorePassword: cfg.MQTT.TLS.KeystorePassword,
	}, mqtt.WithLogger(log))
	if err != nil {
		return fmt.Errorf("configuring MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := conn.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	if !cfg.MQTT.ExternalBroker {
		b, brokerErr := startBroker(conn, log)
		if brokerErr != nil {
			return brokerErr
		}
		defer func() {
			log.Info("stopping embedded broker")
			if closeErr := b.Close(); closeErr != nil {
				log.Error("error stopping broker", "error", closeErr)
			}
		}()
	}

	monitor := push.NewMonitor()
	throttle := push.NewThrottledSender(push.ThrottleConfig{
		BaseDelay:       cfg.GetMessageDelay(),
		Adaptive:        cfg.Push.Adaptive,
		LightThreshold:  cfg.Push.LightThreshold,
		MediumThreshold: cfg.Push.MediumThreshold,
		HeavyThreshold:  cfg.Push.HeavyThreshold,
		MaxQueueSize:    cfg.Push.MaxQueueSize,
	}, conn, monitor, push.WithThrottleLogger(log))

	mqttSender := push.NewMQTTSender(registry, conn, throttle, push.WithSenderLogger(log))
	if startErr := mqttSender.Start(ctx); startErr != nil {
		return startErr
	}
	defer mqttSender.Stop()
	log.Info("MQTT connected",
		"endpoint", conn.Endpoint().String(),
		"target", conn.Target().String(),
		"external", cfg.MQTT.ExternalBroker,
		"queued", cfg.Push.MessageDelay > 0,
	)

	senders := []push.Sender{mqttSender}
	var polling *push.PollingSender
	if cfg.Polling.Enabled {
		polling = push.NewPollingSender(push.NewSQLPendingStore(db.DB), push.WithPollingLogger(log))
		senders = append(senders, polling)
	}
	service := push.NewService(registry, senders, push.WithServiceLogger(log))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		push.NewCollector(monitor, throttle.Len),
	)

	deps := api.Deps{
		Config:      cfg.API,
		Logger:      log,
		Devices:     registry,
		Push:        service,
		Monitor:     monitor,
		PollTimeout: cfg.GetPollingTimeout(),
		Broker:      conn,
		Database:    db,
		Gatherer:    reg,
		QueueLength: throttle.Len,
		Audit:       audit.NewSQLiteRepository(db.DB),
		Version:     version,
	}
	if polling != nil {
		deps.Polling = polling
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	influxClient, err := influxdb.Connect(gctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		exporter := influxdb.NewExporter(influxClient, func() influxdb.HealthPoint {
			return healthPoint(cfg.Server.ID, monitor.HealthStatus())
		}, cfg.GetExportInterval())
		g.Go(func() error { return exporter.Run(gctx) })
		log.Info("InfluxDB health export enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	h := monitor.HealthStatus()
	log.Info("shutdown signal received, cleaning up",
		"processed", h.MessagesProcessed,
		"errors", h.Errors,
		"pending_in_queue", throttle.Len(),
	)
	return nil
}

// getConfigPath returns HMDM_CONFIG when set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("HMDM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// clientID makes the configured client ID unique per process so two
// server instances never evict each other from the broker.
func clientID(base string) string {
	return base + "-" + uuid.NewString()[:8]
}

// startBroker runs the embedded broker on the public endpoint's port,
// serving TLS when the endpoint is secure.
func startBroker(conn *mqtt.ConnectionManager, log *logging.Logger) (*broker.Broker, error) {
	var tlsCfg *tls.Config
	if ks := conn.Keystore(); ks != nil {
		tlsCfg = ks.ServerTLSConfig()
	}

	b, err := broker.New(broker.Config{
		Address: conn.Endpoint().BindAddress(),
		TLS:     tlsCfg,
		Logger:  log.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedded broker: %w", err)
	}
	if err := b.Start(); err != nil {
		return nil, fmt.Errorf("starting embedded broker: %w", err)
	}
	log.Info("embedded broker started",
		"address", conn.Endpoint().BindAddress(),
		"tls", tlsCfg != nil,
	)
	return b, nil
}

// healthPoint maps a monitor snapshot onto the exported measurement.
func healthPoint(serverID string, h push.HealthStatus) influxdb.HealthPoint {
	return influxdb.HealthPoint{
		ServerID:          serverID,
		Processed:         h.MessagesProcessed,
		MessagesPerSecond: h.MessagesPerSecond,
		AvgProcessingMs:   float64(h.AverageProcessingTime.Microseconds()) / 1000,
		Urgent:            h.UrgentProcessed,
		Errors:            h.Errors,
		Overflow:          h.QueueOverflows,
		MaxQueueSize:      h.MaxQueueSize,
		Healthy:           h.Healthy,
	}
}
