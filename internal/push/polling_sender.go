package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/h-mdm/hmdm-server-sub001/internal/device"
)

// PendingStore holds messages for devices that are not currently polling.
type PendingStore interface {
	// Enqueue returns device.ErrDeviceNotFound for an unknown device.
	Enqueue(ctx context.Context, m *Message) error
	// PendingForDelivery returns and removes the device's stored messages,
	// oldest first.
	PendingForDelivery(ctx context.Context, deviceID int64) ([]Message, error)
}

// PollContext is one parked long-poll request.
type PollContext struct {
	deviceID int64
	entry    *pollEntry
	done     chan struct{}
	once     sync.Once
}

// DeviceID is the device the request belongs to.
func (pc *PollContext) DeviceID() int64 { return pc.deviceID }

// Done is closed when messages are available or the request was superseded.
func (pc *PollContext) Done() <-chan struct{} { return pc.done }

func (pc *PollContext) complete() {
	pc.once.Do(func() { close(pc.done) })
}

// Wait blocks until the request is completed, ctx ends or timeout elapses.
// It reports whether the request was completed.
func (pc *PollContext) Wait(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-pc.done:
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}

// Drain takes the messages delivered to this request so far.
func (pc *PollContext) Drain() []Message {
	return pc.entry.take(false)
}

// pollEntry is the mailbox of one parked request. Its mutex guards only
// this device's mailbox.
type pollEntry struct {
	pc *PollContext

	mu      sync.Mutex
	mailbox []Message
	closed  bool
}

// deliver appends msgs unless the entry has been closed.
func (e *pollEntry) deliver(msgs []Message) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.mailbox = append(e.mailbox, msgs...)
	return true
}

func (e *pollEntry) take(closeEntry bool) []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	msgs := e.mailbox
	e.mailbox = nil
	if closeEntry {
		e.closed = true
	}
	return msgs
}

// PollingSender delivers push messages to devices that use long polling
// instead of MQTT.
type PollingSender struct {
	store  PendingStore
	logger Logger

	mu        sync.RWMutex
	byDevice  map[int64]*pollEntry
	byContext map[*PollContext]*pollEntry
}

// PollingOption customises a PollingSender.
type PollingOption func(*PollingSender)

// WithPollingLogger sets the logger.
func WithPollingLogger(l Logger) PollingOption {
	return func(s *PollingSender) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewPollingSender creates a polling sender backed by store.
func NewPollingSender(store PendingStore, opts ...PollingOption) *PollingSender {
	s := &PollingSender{
		store:     store,
		logger:    noopLogger{},
		byDevice:  make(map[int64]*pollEntry),
		byContext: make(map[*PollContext]*pollEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register parks a long-poll request for deviceID. A request already parked
// for the device is completed so its handler returns.
func (s *PollingSender) Register(deviceID int64) *PollContext {
	pc := &PollContext{deviceID: deviceID, done: make(chan struct{})}
	entry := &pollEntry{pc: pc}
	pc.entry = entry

	s.mu.Lock()
	prev := s.byDevice[deviceID]
	s.byDevice[deviceID] = entry
	s.byContext[pc] = entry
	s.mu.Unlock()

	if prev != nil {
		prev.pc.complete()
	}
	return pc
}

// Unregister removes pc from both indexes and returns any messages delivered
// to it that were not drained yet. Nothing can be delivered to pc afterwards.
func (s *PollingSender) Unregister(pc *PollContext) []Message {
	s.mu.Lock()
	entry, ok := s.byContext[pc]
	if ok {
		delete(s.byContext, pc)
		if s.byDevice[pc.deviceID] == entry {
			delete(s.byDevice, pc.deviceID)
		}
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return entry.take(true)
}

// Parked reports whether deviceID has a request waiting.
func (s *PollingSender) Parked(deviceID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byDevice[deviceID]
	return ok
}

// Send stores m for later pickup if the device is not polling. Otherwise the
// device's stored messages and m are handed to the parked request, which is
// completed.
func (s *PollingSender) Send(ctx context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.RLock()
	entry := s.byDevice[m.DeviceID]
	s.mu.RUnlock()

	if entry == nil {
		err := s.enqueue(ctx, []Message{*m})
		if errors.Is(err, device.ErrDeviceNotFound) {
			s.logger.Debug("dropping message for unknown device", "device_id", m.DeviceID, "type", m.MessageType)
			return nil
		}
		return err
	}

	pending, err := s.store.PendingForDelivery(ctx, m.DeviceID)
	if err != nil {
		s.logger.Warn("loading pending messages failed", "device_id", m.DeviceID, "error", err)
	}
	msgs := append(pending, *m)

	if !entry.deliver(msgs) {
		// The request returned between lookup and delivery.
		return s.enqueue(ctx, msgs)
	}
	entry.pc.complete()
	s.logger.Debug("long-poll request completed", "device_id", m.DeviceID, "messages", len(msgs))
	return nil
}

// Poll serves one long-poll request: stored messages are returned at once,
// otherwise the request parks until a message arrives, ctx ends or timeout
// elapses.
func (s *PollingSender) Poll(ctx context.Context, deviceID int64, timeout time.Duration) ([]Message, error) {
	pc := s.Register(deviceID)

	pending, err := s.store.PendingForDelivery(ctx, deviceID)
	if err != nil {
		if left := s.Unregister(pc); len(left) > 0 {
			s.requeue(left)
		}
		return nil, fmt.Errorf("loading pending messages for device %d: %w", deviceID, err)
	}

	if len(pending) == 0 {
		pc.Wait(ctx, timeout)
	}

	msgs := append(pending, s.Unregister(pc)...)
	if ctx.Err() != nil && len(msgs) > 0 {
		// The client is gone; keep the messages for its next poll.
		s.requeue(msgs)
		return nil, ctx.Err()
	}
	return msgs, nil
}

func (s *PollingSender) enqueue(ctx context.Context, msgs []Message) error {
	for i := range msgs {
		if err := s.store.Enqueue(ctx, &msgs[i]); err != nil {
			return fmt.Errorf("storing message for device %d: %w", msgs[i].DeviceID, err)
		}
	}
	return nil
}

// requeue stores msgs again after the request that held them went away.
func (s *PollingSender) requeue(msgs []Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.enqueue(ctx, msgs); err != nil {
		s.logger.Error("requeueing undelivered messages failed", "messages", len(msgs), "error", err)
	}
}
