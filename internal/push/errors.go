package push

import "errors"

// Sentinel errors for push delivery.
var (
	// ErrQueueFull is returned by ThrottledSender.Send when a bounded queue
	// is at capacity. The envelope is dropped.
	ErrQueueFull = errors.New("push: queue full")

	// ErrSenderStopped is returned when enqueueing on a stopped sender.
	ErrSenderStopped = errors.New("push: sender stopped")

	// ErrNoClient means no broker client was available to publish with.
	ErrNoClient = errors.New("push: no mqtt client")

	// ErrDeliveryFailed wraps the last publish error once retries are exhausted.
	ErrDeliveryFailed = errors.New("push: delivery failed")

	// ErrInvalidMessage indicates a message without a type.
	ErrInvalidMessage = errors.New("push: invalid message")

	// ErrUnknownPriority is returned by ParsePriority.
	ErrUnknownPriority = errors.New("push: unknown priority")
)
