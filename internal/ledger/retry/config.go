package retry

import "time"

// Config holds retry configuration
type Config struct {
	Enabled     bool          `env:"RETRY_ENABLED"`      // Enable/disable retry mechanism
	MaxAttempts int           `env:"RETRY_MAX_ATTEMPTS"` // Total attempts, including the first
	BaseDelay   time.Duration `env:"RETRY_BASE_DELAY"`   // Delay before the first retry
	MaxDelay    time.Duration `env:"RETRY_MAX_DELAY"`    // Upper bound between retries
}

// DefaultConfig returns the read retry policy: 3 attempts, 1s doubling.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
	}
}
