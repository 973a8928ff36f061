package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestExponentialBackoffStrategy_Success(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(3, 10*time.Millisecond, 100*time.Millisecond)

	err := strategy.Execute(context.Background(), func() error {
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestExponentialBackoffStrategy_SuccessAfterRetries(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(3, time.Millisecond, 10*time.Millisecond)

	attempts := 0
	err := strategy.Execute(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error after retries, got: %v", err)
	}

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestExponentialBackoffStrategy_NonRecoverableError(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(3, time.Millisecond, 10*time.Millisecond)

	attempts := 0
	err := strategy.Execute(context.Background(), func() error {
		attempts++
		return errors.New("execution reverted: meeting not found")
	})

	if err == nil {
		t.Error("Expected error for non-recoverable failure")
	}

	if attempts != 1 {
		t.Errorf("Expected only 1 attempt for non-recoverable error, got: %d", attempts)
	}
}

func TestExponentialBackoffStrategy_ReraisesLastError(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(3, time.Millisecond, 10*time.Millisecond)

	attempts := 0
	var last error
	err := strategy.Execute(context.Background(), func() error {
		attempts++
		last = fmt.Errorf("dial tcp: connection refused (attempt %d)", attempts)
		return last
	})

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
	if !errors.Is(err, last) {
		t.Errorf("Expected last error to be wrapped, got: %v", err)
	}
}

func TestExponentialBackoffStrategy_DelayDoubles(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(3, 20*time.Millisecond, time.Second)

	var stamps []time.Time
	_ = strategy.Execute(context.Background(), func() error {
		stamps = append(stamps, time.Now())
		return errors.New("i/o timeout")
	})

	if len(stamps) != 3 {
		t.Fatalf("Expected 3 attempts, got: %d", len(stamps))
	}
	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	if first < 20*time.Millisecond {
		t.Errorf("First delay too short: %v", first)
	}
	if second < 40*time.Millisecond {
		t.Errorf("Second delay should double, got: %v", second)
	}
}

func TestExponentialBackoffStrategy_ContextCancellation(t *testing.T) {
	strategy := NewExponentialBackoffStrategy(10, 100*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := strategy.Execute(ctx, func() error {
		attempts++
		return errors.New("timeout")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context cancellation, got: %v", err)
	}

	if attempts < 1 {
		t.Errorf("Expected at least 1 attempt, got: %d", attempts)
	}
}

func TestNewStrategy(t *testing.T) {
	if got := NewStrategy(Config{Enabled: false}).Name(); got != "NoRetry" {
		t.Errorf("disabled config: got %s", got)
	}
	if got := NewStrategy(DefaultConfig()).Name(); got != "ExponentialBackoff" {
		t.Errorf("default config: got %s", got)
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"timeout", errors.New("i/o timeout"), true},
		{"rate limited", errors.New("429 Too Many Requests"), true},
		{"bad gateway", errors.New("502 Bad Gateway"), true},
		{"revert", errors.New("execution reverted: timeout reached"), false},
		{"cancelled", context.Canceled, false},
		{"invalid data", errors.New("invalid data format"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRecoverable(tt.err)
			if result != tt.expected {
				t.Errorf("IsRecoverable(%v) = %v, expected %v", tt.err, result, tt.expected)
			}
		})
	}
}
