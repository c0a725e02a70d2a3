package push

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/h-mdm/hmdm-server-sub001/internal/device"
	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/mqtt"
)

var errBrokerDown = errors.New("broker unavailable")

type publishCall struct {
	topic   string
	payload string
	qos     byte
}

// recordingPublisher captures publishes in call order. The first failures
// calls fail, or every call when failAlways is set.
type recordingPublisher struct {
	mu         sync.Mutex
	calls      []publishCall
	attempts   int
	failures   int
	failAlways bool
	connected  atomic.Bool
}

func newRecordingPublisher() *recordingPublisher {
	p := &recordingPublisher{}
	p.connected.Store(true)
	return p
}

func (p *recordingPublisher) Publish(topic string, payload []byte, qos byte, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.failAlways || p.attempts <= p.failures {
		return errBrokerDown
	}
	p.calls = append(p.calls, publishCall{topic: topic, payload: string(payload), qos: qos})
	return nil
}

func (p *recordingPublisher) IsConnected() bool { return p.connected.Load() }

func (p *recordingPublisher) Close() error {
	p.connected.Store(false)
	return nil
}

func (p *recordingPublisher) published() []publishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishCall(nil), p.calls...)
}

func (p *recordingPublisher) attemptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// fakeConnection is an in-memory ConnectionSource.
type fakeConnection struct {
	mu         sync.Mutex
	client     mqtt.Publisher
	next       mqtt.Publisher // installed by Reconnect when set
	reconnects int
	connectErr error
	connects   int
	fired      bool
	hooks      []func()
}

func (f *fakeConnection) Client() (mqtt.Publisher, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.client, f.client != nil
}

func (f *fakeConnection) Reconnect(ctx context.Context) (mqtt.Publisher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	if f.next != nil {
		f.client, f.next = f.next, nil
		return f.client, nil
	}
	return nil, mqtt.ErrConnectionFailed
}

func (f *fakeConnection) Connect(context.Context) error {
	f.mu.Lock()
	f.connects++
	if f.connectErr != nil {
		f.mu.Unlock()
		return f.connectErr
	}
	hooks := f.hooks
	f.hooks = nil
	f.fired = true
	f.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return nil
}

func (f *fakeConnection) OnFirstConnect(fn func()) {
	f.mu.Lock()
	if !f.fired {
		f.hooks = append(f.hooks, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn()
}

func (f *fakeConnection) reconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnects
}

// fakeDevices is an in-memory device directory.
type fakeDevices struct {
	devices        map[int64]*device.Device
	configurations map[int64][]int64
	err            error
}

func (f *fakeDevices) GetDevice(_ context.Context, id int64) (*device.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d, nil
}

func (f *fakeDevices) GetConfiguration(_ context.Context, id int64) (*device.Configuration, error) {
	if _, ok := f.configurations[id]; !ok {
		return nil, device.ErrConfigurationNotFound
	}
	return &device.Configuration{ID: id, Name: "default"}, nil
}

func (f *fakeDevices) DeviceIDsByConfiguration(_ context.Context, id int64) ([]int64, error) {
	return f.configurations[id], nil
}

// memoryStore is an in-memory PendingStore.
type memoryStore struct {
	mu      sync.Mutex
	pending map[int64][]Message
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{pending: make(map[int64][]Message)}
}

func (s *memoryStore) Enqueue(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.pending[m.DeviceID] = append(s.pending[m.DeviceID], *m)
	return nil
}

func (s *memoryStore) PendingForDelivery(_ context.Context, deviceID int64) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	msgs := s.pending[deviceID]
	delete(s.pending, deviceID)
	return msgs, nil
}

func (s *memoryStore) count(deviceID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[deviceID])
}
