package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pennyflow/pennyflow/internal/service"
)

var (
	// ErrRateLimit indicates the remote API rejected the call for rate limiting.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates all retry attempts were exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError marks an error as worth (or not worth) retrying.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

func fillRetryDefaults(opts service.RetryOptions) service.RetryOptions {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}
	return opts
}

// WithRetry runs operation until it succeeds, returns a non-retryable
// error, the context is cancelled, or the attempt budget runs out.
// Delays grow geometrically up to MaxDelay; a rate-limited call waits
// the full MaxDelay before the next attempt.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	opts = fillRetryDefaults(opts)
	delay := opts.InitialDelay

	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		var re *RetryableError
		if errors.As(err, &re) && !re.Retryable {
			return err
		}
		if errors.Is(err, ErrRateLimit) {
			delay = opts.MaxDelay
		}
		if attempt >= opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrMaxRetries, opts.MaxAttempts, err)
		}

		slog.Warn("operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * opts.Multiplier)
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
}
