package device

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxNumberLength = 128

// ValidateNumber checks that a device number is usable as an MQTT publish topic.
// Wildcards and level separators are rejected so one device can never
// receive another's messages.
func ValidateNumber(number string) error {
	if number == "" {
		return fmt.Errorf("%w: number is required", ErrInvalidNumber)
	}
	if !utf8.ValidString(number) {
		return fmt.Errorf("%w: number is not valid UTF-8", ErrInvalidNumber)
	}
	if utf8.RuneCountInString(number) > maxNumberLength {
		return fmt.Errorf("%w: number exceeds %d characters", ErrInvalidNumber, maxNumberLength)
	}
	if strings.ContainsAny(number, "+#/\x00") {
		return fmt.Errorf("%w: %q contains a reserved topic character", ErrInvalidNumber, number)
	}
	if strings.TrimSpace(number) != number {
		return fmt.Errorf("%w: %q has leading or trailing whitespace", ErrInvalidNumber, number)
	}
	return nil
}

// ValidateDevice checks a device before it is persisted.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidDevice)
	}
	if err := ValidateNumber(d.Number); err != nil {
		return err
	}
	if d.OldNumber != "" {
		if err := ValidateNumber(d.OldNumber); err != nil {
			return fmt.Errorf("old number: %w", err)
		}
	}
	if d.CustomerID <= 0 {
		return fmt.Errorf("%w: customer id must be positive", ErrInvalidDevice)
	}
	if d.ConfigurationID < 0 {
		return fmt.Errorf("%w: configuration id must not be negative", ErrInvalidDevice)
	}
	return nil
}
