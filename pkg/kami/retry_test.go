package kami

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryPolicyWaitSchedule(t *testing.T) {
	p := DefaultRetryPolicy()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 1500 * time.Millisecond},
		{3, 2250 * time.Millisecond},
		{4, 3375 * time.Millisecond},
		{7, 10 * time.Second},
		{9, 10 * time.Second},
		{0, 1 * time.Second},
	}
	for _, tc := range cases {
		if got := p.Wait(tc.attempt); got != tc.want {
			t.Fatalf("Wait(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRetryPolicyWaitClampsToMin(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, WaitMin: time.Second, WaitMax: 10 * time.Second, Multiplier: 0.5}
	if got := p.Wait(4); got != time.Second {
		t.Fatalf("Wait(4) = %v, want %v", got, time.Second)
	}
}

func TestWithRetryEventualSuccess(t *testing.T) {
	p := fastRetry(10)
	calls := 0
	result, err := withRetry(context.Background(), p, "/x", func() (int, error) {
		calls++
		if calls <= 3 {
			return 0, &APIError{Message: "transient"}
		}
		return 99, nil
	})
	if err != nil {
		t.Fatalf("withRetry error: %v", err)
	}
	if result != 99 || calls != 4 {
		t.Fatalf("result=%d calls=%d", result, calls)
	}
}

func TestWithRetryNonRetryableFailsImmediately(t *testing.T) {
	p := fastRetry(10)
	calls := 0
	_, err := withRetry(context.Background(), p, "/x", func() (int, error) {
		calls++
		return 0, &ValidationError{Message: "bad input"}
	})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestWithRetryExhaustionSurfacesLastError(t *testing.T) {
	p := fastRetry(3)
	calls := 0
	_, err := withRetry(context.Background(), p, "/x", func() (int, error) {
		calls++
		return 0, &APIError{Message: fmt.Sprintf("fail %d", calls)}
	})
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "fail 3" {
		t.Fatalf("expected last error surfaced, got %q", apiErr.Message)
	}
}

func TestWithRetryHonorsContextDuringBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, WaitMin: time.Minute, WaitMax: time.Minute, Multiplier: 1.5}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := withRetry(ctx, p, "/x", func() (int, error) {
		return 0, &APIError{Message: "transient"}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("backoff ignored cancellation, took %v", elapsed)
	}
}

func TestRetryableClassification(t *testing.T) {
	if !Retryable(&TransportError{Path: "/x", Err: errors.New("refused")}) {
		t.Fatalf("transport errors are retryable")
	}
	if !Retryable(&APIError{Message: "boom"}) {
		t.Fatalf("api errors are retryable")
	}
	if Retryable(&ProtocolError{Path: "/x", Err: errors.New("bad json")}) {
		t.Fatalf("protocol errors are not retryable")
	}
	if Retryable(&ConfigError{Message: "missing"}) {
		t.Fatalf("config errors are not retryable")
	}
	if Retryable(&ValidationError{Message: "bad"}) {
		t.Fatalf("validation errors are not retryable")
	}
	if Retryable(fmt.Errorf("wrapped: %w", &TransportError{Path: "/x", Err: errors.New("x")})) != true {
		t.Fatalf("wrapped transport errors are retryable")
	}
}
