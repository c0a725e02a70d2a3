// Package push delivers device-directed notifications for the MDM server.
//
// A logical notification enters through Service, which fans it out to every
// configured Sender:
//
//   - MQTTSender resolves the device address and publishes over MQTT, either
//     directly (base delay zero) or through the ThrottledSender queue.
//   - PollingSender completes a parked long-poll request, or stores the
//     message in a PendingStore until the device polls again.
//
// # Delivery Contract
//
// The MQTT path is at-most-once. Queued envelopes live only in memory and
// are lost on restart. A publish is retried a bounded number of times with a
// fixed backoff, then dropped and counted as an error. Producers never see
// delivery failures.
//
// # Ordering
//
// ThrottledSender has a single consumer goroutine draining a FIFO queue, so
// envelopes from one producer are published in enqueue order. Priority only
// shortens the delay after a message is sent; it never reorders the queue.
//
// # Adaptive Throttling
//
// After each publish the worker sleeps for a delay chosen from the backlog
// that remains:
//
//	urgent message          0
//	backlog <= light        0
//	backlog <= medium       100ms
//	backlog <= heavy        300ms
//	beyond heavy            min(base/2, 500ms)
//
// With adaptive throttling disabled the base delay is always used.
//
// # Health
//
// Monitor keeps lock-free counters and derives a HealthStatus snapshot on
// demand. Collector exposes the same snapshot to Prometheus.
package push
