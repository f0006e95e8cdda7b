package model

import (
	"errors"
	"fmt"
)

// ConfigError marks owner-fixable schedule configuration faults (inverted
// hours, a break outside the working window, overlapping temporary breaks).
// The engine never works around these silently; it surfaces them so shop
// owner tooling can show what to fix.
type ConfigError struct {
	StaffID string
	Date    string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.StaffID == "" {
		return fmt.Sprintf("schedule config error on %s: %s", e.Date, e.Reason)
	}
	return fmt.Sprintf("schedule config error for staff %s on %s: %s", e.StaffID, e.Date, e.Reason)
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
