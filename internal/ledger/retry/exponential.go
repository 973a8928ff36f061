package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// ExponentialBackoffStrategy implements retry with exponential backoff
type ExponentialBackoffStrategy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialBackoffStrategy creates a new ExponentialBackoffStrategy.
// maxAttempts counts the first try.
func NewExponentialBackoffStrategy(maxAttempts int, baseDelay, maxDelay time.Duration) *ExponentialBackoffStrategy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &ExponentialBackoffStrategy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// Execute runs the operation with exponential backoff retry logic.
// After the last attempt the last error is returned wrapped.
func (s *ExponentialBackoffStrategy) Execute(ctx context.Context, operation Operation) error {
	var lastErr error
	delay := s.baseDelay

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := operation()

		if err == nil {
			if attempt > 1 {
				slog.Info("Operation succeeded after retry",
					"attempt", attempt,
					"max_attempts", s.maxAttempts)
			}
			return nil
		}

		lastErr = err

		if !IsRecoverable(err) {
			slog.Debug("Non-recoverable error, failing immediately",
				"error", err,
				"attempt", attempt)
			return err
		}

		if attempt == s.maxAttempts {
			break
		}

		slog.Warn("Operation failed, retrying with exponential backoff",
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"retry_in", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay *= 2
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", s.maxAttempts, lastErr)
}

// Name returns the strategy name
func (s *ExponentialBackoffStrategy) Name() string {
	return "ExponentialBackoff"
}

// IsRecoverable determines if an error is a connectivity fault worth retrying.
// Contract reverts and malformed responses are not.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "execution reverted") {
		return false
	}

	recoverablePatterns := []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"broken pipe",
		"i/o timeout",
		"eof",
		"tls handshake timeout",
		"no such host",
		"connection timed out",
		"dial tcp",
		"too many requests",
		"429",
		"502 bad gateway",
		"503 service unavailable",
		"504 gateway timeout",
	}

	for _, pattern := range recoverablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
