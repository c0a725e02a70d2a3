package device

import "time"

// Device is an enrolled device as seen by the push subsystem.
type Device struct {
	ID int64 `json:"id"`

	// Number is the device's identifier. It is also the MQTT topic the
	// device subscribes to.
	Number string `json:"number"`

	// OldNumber holds the previous number during a rename, empty otherwise.
	OldNumber string `json:"old_number,omitempty"`

	CustomerID int64 `json:"customer_id"`

	// ConfigurationID is zero when no configuration is assigned.
	ConfigurationID int64 `json:"configuration_id,omitempty"`

	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PushAddress returns the topic a push for this device is published to.
// A device mid-rename is still subscribed under its previous number.
func (d *Device) PushAddress() string {
	if d.OldNumber != "" {
		return d.OldNumber
	}
	return d.Number
}

// Renaming reports whether the device is switching numbers.
func (d *Device) Renaming() bool {
	return d.OldNumber != ""
}

// Configuration is a policy bundle assigned to a set of devices.
type Configuration struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}
