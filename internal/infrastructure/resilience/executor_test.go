package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
		BreakerEnabled:      false,
	}
}

func retryableClassifier(error) ErrorClassification {
	return ErrorClassification{Retryable: true, RecordFailure: true}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	exec := NewExecutor(testConfig())

	calls := 0
	err := exec.Execute(context.Background(), "link_document", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	}, retryableClassifier)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestExecuteStopsOnNonRetryable(t *testing.T) {
	exec := NewExecutor(testConfig())

	permanent := errors.New("constraint violation")
	calls := 0
	err := exec.Execute(context.Background(), "create_shipment", func(context.Context) error {
		calls++
		return permanent
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Execute() error = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Fatalf("non-retryable error was retried %d times", calls)
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	exec := NewExecutor(testConfig())

	transient := errors.New("timeout")
	calls := 0
	err := exec.Execute(context.Background(), "list_unlinked", func(context.Context) error {
		calls++
		return transient
	}, retryableClassifier)
	if !errors.Is(err, transient) {
		t.Fatalf("Execute() error = %v, want %v", err, transient)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestExecuteHonorsCancelledContext(t *testing.T) {
	exec := NewExecutor(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Execute(ctx, "verify_shipment", func(context.Context) error {
		t.Fatal("callback ran with cancelled context")
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestBreakerOpensAfterFailureRatio(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 3
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	cfg.RetryMaxAttempts = 1
	exec := NewExecutor(cfg)

	boom := errors.New("db down")
	for i := 0; i < 3; i++ {
		_ = exec.Execute(context.Background(), "flaky_op", func(context.Context) error {
			return boom
		}, retryableClassifier)
	}

	err := exec.Execute(context.Background(), "flaky_op", func(context.Context) error {
		t.Fatal("callback ran with open breaker")
		return nil
	}, retryableClassifier)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}

func TestBreakerIsPerOperation(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	cfg.RetryMaxAttempts = 1
	exec := NewExecutor(cfg)

	boom := errors.New("db down")
	for i := 0; i < 2; i++ {
		_ = exec.Execute(context.Background(), "failing_op", func(context.Context) error {
			return boom
		}, retryableClassifier)
	}

	if err := exec.Execute(context.Background(), "healthy_op", func(context.Context) error {
		return nil
	}, retryableClassifier); err != nil {
		t.Fatalf("healthy operation tripped by unrelated breaker: %v", err)
	}
}
