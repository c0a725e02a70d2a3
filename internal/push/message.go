package push

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message types understood by the device agent.
const (
	TypeConfigUpdated        = "configUpdated"
	TypeRunApp               = "runApp"
	TypeUninstallApp         = "uninstallApp"
	TypeDeleteFile           = "deleteFile"
	TypeDeleteDir            = "deleteDir"
	TypePurgeDir             = "purgeDir"
	TypePermissiveMode       = "permissiveMode"
	TypeRunCommand           = "runCommand"
	TypeReboot               = "reboot"
	TypeExitKiosk            = "exitKiosk"
	TypeClearDownloadHistory = "clearDownloadHistory"
	TypeIntent               = "intent"
	TypeGrantPermissions     = "grantPermissions"
	TypeAdminPanel           = "adminPanel"
	TypeLockDevice           = "lockDevice"
	TypeWipeDevice           = "wipeDevice"
)

// QoSExactlyOnce is the MQTT quality of service used for every push.
const QoSExactlyOnce byte = 2

// Message is a notification addressed to one device.
type Message struct {
	DeviceID    int64
	MessageType string

	// Payload is optional pre-serialized JSON.
	Payload string
}

// wireMessage is the document published to devices.
type wireMessage struct {
	MessageType string          `json:"messageType"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Validate checks that the message can be delivered.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.MessageType) == "" {
		return fmt.Errorf("%w: message type is required", ErrInvalidMessage)
	}
	return nil
}

// Encode renders the wire format {"messageType":"<type>"[,"payload":<json>]}.
// A payload that is not valid JSON is embedded as a JSON string.
func (m *Message) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	w := wireMessage{MessageType: m.MessageType}
	if p := strings.TrimSpace(m.Payload); p != "" {
		if json.Valid([]byte(p)) {
			w.Payload = json.RawMessage(p)
		} else {
			quoted, err := json.Marshal(m.Payload)
			if err != nil {
				return nil, fmt.Errorf("encoding payload: %w", err)
			}
			w.Payload = quoted
		}
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return data, nil
}
