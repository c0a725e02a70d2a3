package push

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Encode(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "type only",
			msg:  Message{MessageType: TypeConfigUpdated},
			want: `{"messageType":"configUpdated"}`,
		},
		{
			name: "json object payload",
			msg:  Message{MessageType: TypeRunApp, Payload: `{ "pkg": "com.example.app" }`},
			want: `{"messageType":"runApp","payload":{"pkg":"com.example.app"}}`,
		},
		{
			name: "json string payload",
			msg:  Message{MessageType: TypeDeleteFile, Payload: `"/sdcard/tmp.log"`},
			want: `{"messageType":"deleteFile","payload":"/sdcard/tmp.log"}`,
		},
		{
			name: "plain text payload",
			msg:  Message{MessageType: TypeRunCommand, Payload: `reboot now`},
			want: `{"messageType":"runCommand","payload":"reboot now"}`,
		},
		{
			name: "blank payload omitted",
			msg:  Message{MessageType: TypeReboot, Payload: "  "},
			want: `{"messageType":"reboot"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.msg.Encode()
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMessage_Validate(t *testing.T) {
	var nilMsg *Message
	assert.ErrorIs(t, nilMsg.Validate(), ErrInvalidMessage)
	assert.ErrorIs(t, (&Message{DeviceID: 1}).Validate(), ErrInvalidMessage)
	assert.NoError(t, (&Message{DeviceID: 1, MessageType: TypeReboot}).Validate())

	_, err := (&Message{}).Encode()
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestEnvelope(t *testing.T) {
	payload := []byte(`{"messageType":"reboot"}`)
	e := NewEnvelope("h0001", payload, QoSExactlyOnce)

	assert.Equal(t, "h0001", e.Address())
	assert.Equal(t, QoSExactlyOnce, e.QoS())
	assert.Equal(t, PriorityNormal, e.Priority(), "unset priority defaults to normal")

	// The envelope owns its bytes.
	payload[0] = 'X'
	assert.Equal(t, `{"messageType":"reboot"}`, string(e.Payload()))
	e.Payload()[0] = 'Y'
	assert.Equal(t, `{"messageType":"reboot"}`, string(e.Payload()))

	urgent := NewEnvelope("h0001", nil, 1, WithPriority(PriorityUrgent))
	assert.Equal(t, PriorityUrgent, urgent.Priority())
	assert.Nil(t, urgent.Payload())
}
