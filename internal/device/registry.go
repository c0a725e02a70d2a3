package device

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the push subsystem's view of the device directory.
// It wraps a Repository with an in-memory cache of devices by ID; every
// push resolves its recipient here, so the hot path avoids the database.
//
// Renames go through the Registry so the cached address is never stale.
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[int64]Device
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new device registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[int64]Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a copy; callers may modify it.
func (r *Registry) GetDevice(ctx context.Context, id int64) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return &cached, nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(d)
	return d, nil
}

// GetDeviceByNumber retrieves a device by its current number.
// The lookup always reaches the repository; the result is cached by ID.
func (r *Registry) GetDeviceByNumber(ctx context.Context, number string) (*Device, error) {
	d, err := r.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	r.store(d)
	return d, nil
}

// GetConfiguration retrieves a configuration by ID.
func (r *Registry) GetConfiguration(ctx context.Context, id int64) (*Configuration, error) {
	return r.repo.GetConfigurationByID(ctx, id)
}

// DeviceIDsByConfiguration returns the devices a configuration change must reach.
func (r *Registry) DeviceIDsByConfiguration(ctx context.Context, configurationID int64) ([]int64, error) {
	return r.repo.ListIDsByConfiguration(ctx, configurationID)
}

// CreateDevice persists a new device and caches it.
func (r *Registry) CreateDevice(ctx context.Context, d *Device) error {
	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}
	r.store(d)
	r.logger.Info("device created", "device_id", d.ID, "number", d.Number)
	return nil
}

// CreateConfiguration persists a new configuration.
func (r *Registry) CreateConfiguration(ctx context.Context, c *Configuration) error {
	return r.repo.CreateConfiguration(ctx, c)
}

// RenameDevice starts a rename. Pushes keep going to the previous number
// until CompleteRename is called.
func (r *Registry) RenameDevice(ctx context.Context, id int64, newNumber string) error {
	if err := r.repo.Rename(ctx, id, newNumber); err != nil {
		return fmt.Errorf("renaming device %d: %w", id, err)
	}
	r.Invalidate(id)
	r.logger.Info("device rename started", "device_id", id, "number", newNumber)
	return nil
}

// CompleteRename clears the previous number once the device uses the new one.
func (r *Registry) CompleteRename(ctx context.Context, id int64) error {
	if err := r.repo.ClearOldNumber(ctx, id); err != nil {
		return fmt.Errorf("completing rename of device %d: %w", id, err)
	}
	r.Invalidate(id)
	r.logger.Debug("device rename completed", "device_id", id)
	return nil
}

// Invalidate drops a device from the cache.
func (r *Registry) Invalidate(id int64) {
	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()
}

// CachedCount returns the number of cached devices.
func (r *Registry) CachedCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

func (r *Registry) store(d *Device) {
	r.cacheMu.Lock()
	r.cache[d.ID] = *d
	r.cacheMu.Unlock()
}
