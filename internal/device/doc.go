// Package device provides the device directory the push server uses to
// resolve notification recipients.
//
// A device is addressed on the MQTT transport by its number. While a device
// is being renamed the previous number is kept in OldNumber so messages that
// are already in flight still reach it under the identity it is subscribed to.
//
// # Key Types
//
//   - Device: an enrolled device with its number and configuration
//   - Configuration: a policy bundle shared by many devices
//   - Repository: persistence contract, implemented by SQLiteRepository
//   - Registry: cached, thread-safe front for the repository
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	dev, err := registry.GetDevice(ctx, 42)
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    return nil // nothing to deliver to
//	}
//	topic := dev.PushAddress()
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Its cache is protected by a
// read-write mutex and hands out copies.
package device
