package model

import "fmt"

// Bounds for user-configurable settings.
const (
	MinExpirationMinutes = 1
	MaxExpirationMinutes = 10

	MinPollingIntervalSeconds = 5
	MaxPollingIntervalSeconds = 30

	DefaultExpirationMinutes      = 5
	DefaultPollingIntervalSeconds = 10
)

// Settings are the process-wide user preferences.
type Settings struct {
	ExpirationMinutes      int `json:"expirationMinutes" mapstructure:"expiration_minutes"`
	PollingIntervalSeconds int `json:"pollingIntervalSeconds" mapstructure:"polling_interval_seconds"`
}

// DefaultSettings returns the canonical defaults.
func DefaultSettings() Settings {
	return Settings{
		ExpirationMinutes:      DefaultExpirationMinutes,
		PollingIntervalSeconds: DefaultPollingIntervalSeconds,
	}
}

// Validate reports the first field outside its bounds.
func (s Settings) Validate() error {
	if s.ExpirationMinutes < MinExpirationMinutes || s.ExpirationMinutes > MaxExpirationMinutes {
		return fmt.Errorf(
			"expiration must be between %d and %d minutes, got %d",
			MinExpirationMinutes, MaxExpirationMinutes, s.ExpirationMinutes,
		)
	}
	if s.PollingIntervalSeconds < MinPollingIntervalSeconds || s.PollingIntervalSeconds > MaxPollingIntervalSeconds {
		return fmt.Errorf(
			"polling interval must be between %d and %d seconds, got %d",
			MinPollingIntervalSeconds, MaxPollingIntervalSeconds, s.PollingIntervalSeconds,
		)
	}
	return nil
}

// Normalize replaces any out-of-range field with the matching field of
// defaults.
func (s Settings) Normalize(defaults Settings) Settings {
	if s.ExpirationMinutes < MinExpirationMinutes || s.ExpirationMinutes > MaxExpirationMinutes {
		s.ExpirationMinutes = defaults.ExpirationMinutes
	}
	if s.PollingIntervalSeconds < MinPollingIntervalSeconds || s.PollingIntervalSeconds > MaxPollingIntervalSeconds {
		s.PollingIntervalSeconds = defaults.PollingIntervalSeconds
	}
	return s
}
