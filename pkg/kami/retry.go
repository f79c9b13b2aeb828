package kami

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds how many times a failed request is reissued and how
// long to back off in between. Only transport and API errors are
// retried; protocol, validation, and configuration errors fail on the
// first attempt.
type RetryPolicy struct {
	MaxAttempts int
	WaitMin     time.Duration
	WaitMax     time.Duration
	Multiplier  float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 10,
		WaitMin:     1 * time.Second,
		WaitMax:     10 * time.Second,
		Multiplier:  1.5,
	}
}

// Wait returns the backoff after the given failed attempt, counted from
// 1: waitMin * multiplier^(attempt-1), clamped to [waitMin, waitMax].
func (p RetryPolicy) Wait(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := float64(p.WaitMin) * math.Pow(p.Multiplier, float64(attempt-1))
	if wait > float64(p.WaitMax) {
		return p.WaitMax
	}
	if wait < float64(p.WaitMin) {
		return p.WaitMin
	}
	return time.Duration(wait)
}

// withRetry runs fn up to p.MaxAttempts times, sleeping the backoff
// schedule between retryable failures. The last error is returned
// unchanged once attempts run out. Context cancellation during a backoff
// sleep returns ctx.Err.
func withRetry[T any](ctx context.Context, p RetryPolicy, path string, fn func() (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !Retryable(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Wait(attempt)
		log.Warn().
			Err(err).
			Str("path", path).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Str("wait", wait.String()).
			Msg("kami request failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	log.Error().
		Err(lastErr).
		Str("path", path).
		Int("attempts", p.MaxAttempts).
		Msg("kami request failed after all retries")

	return zero, lastErr
}
