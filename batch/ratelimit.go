// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package batch

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// ProcessWithRateLimit runs proc over items strictly sequentially, spacing
// invocations by ceil(1000/itemsPerSecond) milliseconds via
// golang.org/x/time/rate (§4.7's rate limiting rule).
func ProcessWithRateLimit[T any, R any](ctx context.Context, items []T, itemsPerSecond float64, proc Processor[T, R]) ([]R, error) {
	if itemsPerSecond <= 0 {
		itemsPerSecond = 1
	}
	limiter := rate.NewLimiter(rate.Every(IntervalMS(itemsPerSecond)), 1)

	results := make([]R, len(items))
	for i, item := range items {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		r, err := proc(ctx, item)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	return results, nil
}

// IntervalMS returns the ceil(1000/rate) millisecond spacing §4.7 documents,
// exposed so callers can log or assert on the effective interval without
// constructing a limiter.
func IntervalMS(itemsPerSecond float64) time.Duration {
	if itemsPerSecond <= 0 {
		return time.Second
	}
	return time.Duration(math.Ceil(1000.0/itemsPerSecond)) * time.Millisecond
}
