package retry

import (
	"context"
	"log/slog"
)

// Strategy defines the interface for retry strategies
type Strategy interface {
	// Execute runs the operation with the configured retry logic
	Execute(ctx context.Context, operation Operation) error

	// Name returns the name of the strategy for logging
	Name() string
}

// Operation is a function that can be retried
type Operation func() error

// NewStrategy creates a retry strategy based on configuration
func NewStrategy(config Config) Strategy {
	if !config.Enabled || config.MaxAttempts <= 1 {
		slog.Info("Retry disabled, using NoRetryStrategy")
		return NewNoRetryStrategy()
	}

	slog.Debug("Retry enabled, using ExponentialBackoffStrategy",
		"max_attempts", config.MaxAttempts,
		"base_delay", config.BaseDelay,
		"max_delay", config.MaxDelay,
	)

	return NewExponentialBackoffStrategy(
		config.MaxAttempts,
		config.BaseDelay,
		config.MaxDelay,
	)
}
