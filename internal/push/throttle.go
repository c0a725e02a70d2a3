package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/mqtt"
)

// Retry and adaptive delay policy.
const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 2 * time.Second

	moderateLoadDelay = 100 * time.Millisecond
	heavyLoadDelay    = 300 * time.Millisecond
	maxOverloadDelay  = 500 * time.Millisecond
)

// ClientSource hands out the current broker client and replaces it on demand.
// *mqtt.ConnectionManager implements it.
type ClientSource interface {
	Client() (mqtt.Publisher, bool)
	Reconnect(ctx context.Context) (mqtt.Publisher, error)
}

// ThrottleConfig controls queue pacing and publish retries.
type ThrottleConfig struct {
	// BaseDelay is the configured delay between publishes.
	BaseDelay time.Duration

	// Adaptive derives the delay from the backlog. When false BaseDelay is
	// used after every publish.
	Adaptive bool

	LightThreshold  int
	MediumThreshold int
	HeavyThreshold  int

	// MaxQueueSize bounds the queue. Zero means unbounded.
	MaxQueueSize int

	// RetryAttempts and RetryBackoff default to 3 and 2s.
	RetryAttempts int
	RetryBackoff  time.Duration
}

func (c ThrottleConfig) withDefaults() ThrottleConfig {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	return c
}

// AdaptiveDelay returns how long the worker waits after publishing a message
// of priority p when queueSize messages remain behind it.
func AdaptiveDelay(cfg ThrottleConfig, p Priority, queueSize int) time.Duration {
	if !cfg.Adaptive {
		return cfg.BaseDelay
	}
	if p == PriorityUrgent {
		return 0
	}

	switch {
	case queueSize <= cfg.LightThreshold:
		return 0
	case queueSize <= cfg.MediumThreshold:
		return moderateLoadDelay
	case queueSize <= cfg.HeavyThreshold:
		return heavyLoadDelay
	default:
		return min(cfg.BaseDelay/2, maxOverloadDelay)
	}
}

// ThrottledSender is a FIFO queue drained by a single worker goroutine that
// publishes each envelope with bounded retries and then waits an adaptive
// delay. Envelopes are held in memory only.
type ThrottledSender struct {
	cfg     ThrottleConfig
	source  ClientSource
	monitor *Monitor
	logger  Logger

	mu    sync.Mutex
	queue *queue.Queue
	wake  chan struct{}

	// sleep waits d or until ctx ends. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	startOnce sync.Once
	lifeMu    sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	stopped   atomic.Bool
}

// ThrottleOption customises a ThrottledSender.
type ThrottleOption func(*ThrottledSender)

// WithThrottleLogger sets the logger.
func WithThrottleLogger(l Logger) ThrottleOption {
	return func(t *ThrottledSender) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewThrottledSender creates a sender publishing through source. A nil
// monitor gets a private one.
func NewThrottledSender(cfg ThrottleConfig, source ClientSource, monitor *Monitor, opts ...ThrottleOption) *ThrottledSender {
	if monitor == nil {
		monitor = NewMonitor()
	}
	t := &ThrottledSender{
		cfg:     cfg.withDefaults(),
		source:  source,
		monitor: monitor,
		logger:  noopLogger{},
		queue:   queue.New(),
		wake:    make(chan struct{}, 1),
		sleep:   sleepContext,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send enqueues env. It never waits for delivery.
func (t *ThrottledSender) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.stopped.Load() {
		return ErrSenderStopped
	}

	t.mu.Lock()
	if t.cfg.MaxQueueSize > 0 && t.queue.Length() >= t.cfg.MaxQueueSize {
		t.mu.Unlock()
		t.monitor.RecordQueueOverflow()
		t.logger.Warn("push queue full, dropping message",
			"address", env.Address(), "max_queue_size", t.cfg.MaxQueueSize)
		return ErrQueueFull
	}
	t.queue.Add(env)
	size := t.queue.Length()
	t.mu.Unlock()

	t.monitor.RecordQueueSize(size)

	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the current backlog.
func (t *ThrottledSender) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.Length()
}

// Config returns the effective configuration.
func (t *ThrottledSender) Config() ThrottleConfig {
	return t.cfg
}

// Start launches the worker goroutine. Only the first call has an effect.
func (t *ThrottledSender) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})

		t.lifeMu.Lock()
		t.cancel = cancel
		t.done = done
		t.lifeMu.Unlock()

		go func() {
			defer close(done)
			_ = t.Run(runCtx) //nolint:errcheck // Run only returns nil
		}()
		t.logger.Info("push sender started", "base_delay", t.cfg.BaseDelay, "adaptive", t.cfg.Adaptive)
	})
}

// Stop cancels the worker and waits for it to exit. Envelopes still queued
// are discarded. Later Sends return ErrSenderStopped.
func (t *ThrottledSender) Stop() {
	t.stopped.Store(true)

	t.lifeMu.Lock()
	cancel, done := t.cancel, t.done
	t.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	if n := t.Len(); n > 0 {
		t.logger.Warn("push sender stopped with queued messages", "discarded", n)
	}
}

// Run is the worker loop. It returns nil once ctx is cancelled, whether the
// worker was waiting for work, sleeping or backing off between retries.
func (t *ThrottledSender) Run(ctx context.Context) error {
	for {
		env, remaining, err := t.next(ctx)
		if err != nil {
			return nil
		}

		t.process(ctx, env)
		if ctx.Err() != nil {
			return nil
		}

		if err := t.sleep(ctx, AdaptiveDelay(t.cfg, env.Priority(), remaining)); err != nil {
			return nil
		}
	}
}

// next blocks until an envelope is available and returns it with the number
// of envelopes still queued behind it.
func (t *ThrottledSender) next(ctx context.Context) (Envelope, int, error) {
	for {
		t.mu.Lock()
		if t.queue.Length() > 0 {
			env, _ := t.queue.Remove().(Envelope)
			remaining := t.queue.Length()
			t.mu.Unlock()
			return env, remaining, nil
		}
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return Envelope{}, 0, ctx.Err()
		case <-t.wake:
		}
	}
}

// process delivers one envelope and records the outcome.
func (t *ThrottledSender) process(ctx context.Context, env Envelope) {
	start := t.now()

	if _, ok := t.client(ctx); !ok {
		if ctx.Err() != nil {
			return
		}
		t.monitor.RecordError()
		t.monitor.RecordMessageProcessed(t.now().Sub(start), env.Priority())
		t.logger.Error("no mqtt client, dropping message", "address", env.Address())
		return
	}

	err := t.publishWithRetry(ctx, env)
	if err != nil && ctx.Err() != nil {
		t.logger.Debug("push sender cancelled during retry", "address", env.Address())
		return
	}

	t.monitor.RecordMessageProcessed(t.now().Sub(start), env.Priority())
	if err != nil {
		t.monitor.RecordError()
		t.logger.Error("push message dropped", "address", env.Address(),
			"priority", env.Priority().String(), "error", err)
		return
	}
	t.logger.Debug("push message published", "address", env.Address(), "priority", env.Priority().String())
}

// client returns a connected client snapshot, reconnecting once if the
// current one is absent or disconnected.
func (t *ThrottledSender) client(ctx context.Context) (mqtt.Publisher, bool) {
	if c, ok := t.source.Client(); ok && c.IsConnected() {
		return c, true
	}
	c, err := t.source.Reconnect(ctx)
	if err != nil || c == nil {
		return nil, false
	}
	return c, true
}

// publishWithRetry publishes env up to RetryAttempts times, sleeping
// RetryBackoff between failures. Each attempt takes a fresh client snapshot.
func (t *ThrottledSender) publishWithRetry(ctx context.Context, env Envelope) error {
	var lastErr error
	for attempt := 1; attempt <= t.cfg.RetryAttempts; attempt++ {
		c, ok := t.source.Client()
		if ok {
			lastErr = c.Publish(env.Address(), env.Payload(), env.QoS(), false)
			if lastErr == nil {
				return nil
			}
		} else {
			lastErr = ErrNoClient
		}

		t.logger.Warn("push publish attempt failed", "address", env.Address(),
			"attempt", attempt, "max_attempts", t.cfg.RetryAttempts, "error", lastErr)

		if !ok || !c.IsConnected() {
			if _, err := t.source.Reconnect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Warn("mqtt reconnect after publish failure failed", "error", err)
			}
		}

		if attempt < t.cfg.RetryAttempts {
			if err := t.sleep(ctx, t.cfg.RetryBackoff); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, t.cfg.RetryAttempts, lastErr)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
