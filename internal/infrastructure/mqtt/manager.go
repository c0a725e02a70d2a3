package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Connect retry policy.
const (
	embeddedConnectAttempts = 5
	externalConnectAttempts = 3
	defaultConnectRetry     = time.Second
)

// Publisher is the part of a broker client the push path needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
	Close() error
}

// ConnectFunc dials the broker once.
type ConnectFunc func(ctx context.Context) (Publisher, error)

// State is the lifecycle state of a ConnectionManager.
type State int32

const (
	StateUninitialized State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
	StateClosed
	// StateDisconnected means the broker dropped an established session and
	// no reconnect has been attempted yet.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ManagerConfig configures a ConnectionManager.
type ManagerConfig struct {
	// URI is the public broker URI devices use.
	URI string

	// External is true when the broker runs outside this process.
	External bool

	ClientID string
	Username string
	Password string

	// KeystoreDir holds <host>.p12 files for secure URIs.
	KeystoreDir      string
	KeystorePassword string

	// ConnectAttempts overrides the startup attempt count
	// (5 for an embedded broker, 3 for an external one).
	ConnectAttempts int

	// RetryDelay is the pause between startup attempts, 1s by default.
	RetryDelay time.Duration
}

// ManagerOption customises a ConnectionManager.
type ManagerOption func(*ConnectionManager)

// WithConnectFunc replaces the paho dialer. Used by tests.
func WithConnectFunc(f ConnectFunc) ManagerOption {
	return func(m *ConnectionManager) {
		m.connect = f
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l Logger) ManagerOption {
	return func(m *ConnectionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// clientRef lets an interface value live behind an atomic.Pointer.
type clientRef struct {
	p Publisher
}

// ConnectionManager owns the broker client for the push path.
//
// The current client is held in an atomic pointer. Readers take a single
// snapshot per operation via Client; only Connect and Reconnect replace it.
// Reconnects are serialised so concurrent publish failures produce one
// new connection, not many.
type ConnectionManager struct {
	cfg      ManagerConfig
	endpoint Endpoint
	target   Endpoint
	keystore *Keystore
	connect  ConnectFunc
	logger   Logger

	client atomic.Pointer[clientRef]
	state  atomic.Int32

	reconnectMu sync.Mutex

	hooksMu sync.Mutex
	hooks   []func()
	fired   bool

	closed atomic.Bool
}

// NewConnectionManager validates the configuration and prepares TLS.
//
// A bad URI or an unusable keystore is returned here, before any connection
// is attempted.
func NewConnectionManager(cfg ManagerConfig, opts ...ManagerOption) (*ConnectionManager, error) {
	endpoint, err := ParseBrokerURI(cfg.URI)
	if err != nil {
		return nil, err
	}

	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = externalConnectAttempts
		if !cfg.External {
			cfg.ConnectAttempts = embeddedConnectAttempts
		}
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultConnectRetry
	}

	m := &ConnectionManager{
		cfg:      cfg,
		endpoint: endpoint,
		target:   endpoint.ConnectTarget(cfg.External),
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.connect == nil {
		if endpoint.Secure {
			ks, err := LoadKeystore(KeystorePath(cfg.KeystoreDir, endpoint.Host), cfg.KeystorePassword)
			if err != nil {
				return nil, err
			}
			m.keystore = ks
		}
		m.connect = m.dial
	}

	return m, nil
}

// dial is the default ConnectFunc.
func (m *ConnectionManager) dial(ctx context.Context) (Publisher, error) {
	o := Options{
		Target:   m.target,
		ClientID: m.cfg.ClientID,
		Username: m.cfg.Username,
		Password: m.cfg.Password,
	}
	if m.keystore != nil {
		o.TLSConfig = m.keystore.ClientTLSConfig(m.endpoint.Host, !m.cfg.External)
	}

	c, err := Connect(ctx, o)
	if err != nil {
		return nil, err
	}
	c.SetOnDisconnect(func(err error) {
		m.logger.Warn("mqtt connection lost", "broker", m.target.String(), "error", err)
		if ref := m.client.Load(); ref != nil && ref.p == Publisher(c) {
			m.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected))
		}
	})
	return c, nil
}

// Connect performs the startup connection with bounded retries.
// The final error is returned if every attempt fails.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.state.Store(int32(StateConnecting))

	var lastErr error
	for attempt := 1; attempt <= m.cfg.ConnectAttempts; attempt++ {
		p, err := m.dialSafe(ctx)
		if err == nil {
			m.install(p)
			m.logger.Info("mqtt connected",
				"broker", m.target.String(),
				"external", m.cfg.External,
				"attempt", attempt,
			)
			m.fireHooks()
			return nil
		}
		lastErr = err
		m.logger.Warn("mqtt connect attempt failed",
			"broker", m.target.String(),
			"attempt", attempt,
			"max_attempts", m.cfg.ConnectAttempts,
			"error", err,
		)

		if attempt == m.cfg.ConnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			m.state.Store(int32(StateFailed))
			return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
		case <-time.After(m.cfg.RetryDelay):
		}
	}

	m.state.Store(int32(StateFailed))
	return fmt.Errorf("%w after %d attempts: %w", ErrConnectionFailed, m.cfg.ConnectAttempts, lastErr)
}

// Client returns the current client, if any.
func (m *ConnectionManager) Client() (Publisher, bool) {
	ref := m.client.Load()
	if ref == nil || ref.p == nil {
		return nil, false
	}
	return ref.p, true
}

// Reconnect replaces the current client with a fresh connection.
//
// Only one reconnect runs at a time. A caller that waited for another
// reconnect gets that result if the new client is connected. Failures are
// logged and returned; the next publish failure triggers another attempt.
func (m *ConnectionManager) Reconnect(ctx context.Context) (Publisher, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()

	if p, ok := m.Client(); ok && p.IsConnected() {
		return p, nil
	}

	m.state.Store(int32(StateReconnecting))
	p, err := m.dialSafe(ctx)
	if err != nil {
		m.state.Store(int32(StateFailed))
		m.logger.Error("mqtt reconnect failed", "broker", m.target.String(), "error", err)
		return nil, err
	}

	if m.closed.Load() {
		_ = p.Close() //nolint:errcheck // Manager closed while dialling
		return nil, ErrClosed
	}

	m.install(p)
	m.logger.Info("mqtt reconnected", "broker", m.target.String())
	m.fireHooks()
	return p, nil
}

// OnFirstConnect registers fn to run once after the first successful
// connection. Later reconnects do not run it again. If the first connection
// already happened fn runs immediately.
func (m *ConnectionManager) OnFirstConnect(fn func()) {
	m.hooksMu.Lock()
	if !m.fired {
		m.hooks = append(m.hooks, fn)
		m.hooksMu.Unlock()
		return
	}
	m.hooksMu.Unlock()
	fn()
}

// State returns the current lifecycle state. A connected manager whose
// client has lost its session reports StateDisconnected.
func (m *ConnectionManager) State() State {
	st := State(m.state.Load())
	if st != StateConnected {
		return st
	}
	if p, ok := m.Client(); !ok || !p.IsConnected() {
		return StateDisconnected
	}
	return st
}

// Endpoint returns the public broker endpoint.
func (m *ConnectionManager) Endpoint() Endpoint {
	return m.endpoint
}

// Target returns the endpoint the client dials.
func (m *ConnectionManager) Target() Endpoint {
	return m.target
}

// Keystore returns the loaded keystore, nil for plain transports.
func (m *ConnectionManager) Keystore() *Keystore {
	return m.keystore
}

// Close disconnects the current client. The manager cannot be reused.
func (m *ConnectionManager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.state.Store(int32(StateClosed))

	ref := m.client.Swap(nil)
	if ref == nil || ref.p == nil {
		return nil
	}
	return ref.p.Close()
}

// install swaps in a new client and closes the previous one.
func (m *ConnectionManager) install(p Publisher) {
	old := m.client.Swap(&clientRef{p: p})
	m.state.Store(int32(StateConnected))
	if old != nil && old.p != nil {
		if err := old.p.Close(); err != nil {
			m.logger.Debug("closing previous mqtt client", "error", err)
		}
	}
}

func (m *ConnectionManager) fireHooks() {
	m.hooksMu.Lock()
	if m.fired {
		m.hooksMu.Unlock()
		return
	}
	m.fired = true
	hooks := m.hooks
	m.hooks = nil
	m.hooksMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// dialSafe runs the connect function, turning a panic into an error.
func (m *ConnectionManager) dialSafe(ctx context.Context) (p Publisher, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = fmt.Errorf("%w: connect panicked: %v", ErrConnectionFailed, r)
		}
	}()

	p, err = m.connect(ctx)
	if err == nil && p == nil {
		err = fmt.Errorf("%w: connect returned no client", ErrConnectionFailed)
	}
	return p, err
}
