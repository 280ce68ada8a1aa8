package domain

import (
	"fmt"
	"strings"
)

// RedemptionRequest carries the caller supplied PIN and player details.
// Values are opaque to the service and forwarded to the site as-is.
type RedemptionRequest struct {
	PinKey    string `json:"pin_key"`
	FullName  string `json:"full_name"`
	BirthDate string `json:"birth_date"`
	PlayerID  string `json:"player_id"`
	Country   string `json:"country"`
}

// Validate reports the first missing or blank field.
func (r RedemptionRequest) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"pin_key", r.PinKey},
		{"full_name", r.FullName},
		{"birth_date", r.BirthDate},
		{"player_id", r.PlayerID},
		{"country", r.Country},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("missing required field: %s", f.name)
		}
	}
	return nil
}

// RedemptionResult is the outcome reported back to the caller.
type RedemptionResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	PlayerName string `json:"player_name,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(message, details string) RedemptionResult {
	return RedemptionResult{Success: true, Message: message, Details: details}
}

// Failed builds a failed result.
func Failed(message, details string) RedemptionResult {
	return RedemptionResult{Success: false, Message: message, Details: details}
}
