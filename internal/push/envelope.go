package push

import "bytes"

// Envelope is an immutable unit of work for the MQTT path: where to
// publish, what to publish and how urgently.
type Envelope struct {
	address  string
	payload  []byte
	qos      byte
	priority Priority
}

// EnvelopeOption customises an Envelope at construction.
type EnvelopeOption func(*Envelope)

// WithPriority sets the envelope priority. Without it the envelope is normal.
func WithPriority(p Priority) EnvelopeOption {
	return func(e *Envelope) {
		e.priority = p
	}
}

// NewEnvelope builds an envelope. The payload is copied.
func NewEnvelope(address string, payload []byte, qos byte, opts ...EnvelopeOption) Envelope {
	e := Envelope{
		address: address,
		payload: bytes.Clone(payload),
		qos:     qos,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Address is the MQTT topic, the device number.
func (e Envelope) Address() string { return e.address }

// Payload returns a copy of the message bytes.
func (e Envelope) Payload() []byte { return bytes.Clone(e.payload) }

// QoS is the MQTT quality of service level.
func (e Envelope) QoS() byte { return e.qos }

// Priority is the urgency class used for the post-publish delay.
func (e Envelope) Priority() Priority { return e.priority }
