// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package batch

import (
	"context"
	"time"

	"github.com/mobiletoly/syncmw/model"
)

// RetryOptions configures RetryWithBackoff.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// RetryWithBackoff wraps op with §4.7's retry rule: attempt n's delay is
// min(initial_delay * factor^(n-1), max_delay), retried only while the
// error reports itself retryable (network-retryable, or
// auth-requires-refresh), giving up at max_attempts and surfacing the last
// error. sleepWithContext mirrors oversync.retry's context-aware sleep so
// a caller cancellation is not swallowed by a backoff wait.
func RetryWithBackoff(ctx context.Context, opts RetryOptions, op func(ctx context.Context, attempt int) error) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Factor <= 0 {
		opts.Factor = 1
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == opts.MaxAttempts {
			return lastErr
		}

		delay := backoffDelay(opts, attempt)
		if err := sleepWithContext(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func backoffDelay(opts RetryOptions, attempt int) time.Duration {
	d := float64(opts.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= opts.Factor
	}
	delay := time.Duration(d)
	if opts.MaxDelay > 0 && delay > opts.MaxDelay {
		delay = opts.MaxDelay
	}
	return delay
}

func isRetryable(err error) bool {
	syncErr, ok := err.(*model.Error)
	if !ok {
		return false
	}
	return syncErr.IsRetryable()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
