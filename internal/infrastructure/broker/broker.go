package broker

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

const listenerID = "hmdm-push"

// ErrAlreadyStarted is returned by Start on a running broker.
var ErrAlreadyStarted = errors.New("broker: already started")

// Config configures the embedded broker.
type Config struct {
	// Address is the listen address, normally Endpoint.BindAddress().
	Address string

	// TLS enables a TLS listener when set.
	TLS *tls.Config

	Logger *slog.Logger
}

// Broker wraps a mochi-mqtt server with a single TCP listener.
type Broker struct {
	server *mochi.Server
	cfg    Config
	log    *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
}

// New prepares a broker. Nothing listens until Start.
func New(cfg Config) (*Broker, error) {
	if cfg.Address == "" {
		return nil, errors.New("broker: listen address is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       log.With("component", "broker"),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("broker: adding auth hook: %w", err)
	}

	return &Broker{
		server: server,
		cfg:    cfg,
		log:    log,
	}, nil
}

// Start binds the listener and begins accepting clients. It returns once
// the listener is bound.
func (b *Broker) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return ErrAlreadyStarted
	}

	tcp := listeners.NewTCP(listeners.Config{
		Type:      listeners.TypeTCP,
		ID:        listenerID,
		Address:   b.cfg.Address,
		TLSConfig: b.cfg.TLS,
	})
	if err := b.server.AddListener(tcp); err != nil {
		return fmt.Errorf("broker: listening on %s: %w", b.cfg.Address, err)
	}
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("broker: serving: %w", err)
	}

	b.started = true
	b.log.Info("embedded mqtt broker started",
		"address", b.cfg.Address,
		"tls", b.cfg.TLS != nil,
	)
	return nil
}

// Subscribe registers an in-process subscriber. The handler runs on the
// broker's goroutines and must not block.
func (b *Broker) Subscribe(filter string, id int, fn func(topic string, payload []byte)) error {
	return b.server.Subscribe(filter, id, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		fn(pk.TopicName, pk.Payload)
	})
}

// ClientsConnected returns the number of connected MQTT clients.
func (b *Broker) ClientsConnected() int64 {
	return atomic.LoadInt64(&b.server.Info.ClientsConnected)
}

// Close stops the listener and disconnects every client.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || !b.started {
		b.closed = true
		return nil
	}
	b.closed = true

	if err := b.server.Close(); err != nil {
		return fmt.Errorf("broker: closing: %w", err)
	}
	b.log.Info("embedded mqtt broker stopped")
	return nil
}
