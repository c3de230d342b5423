// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package batch implements the Batch, Retry, and Compression layer (C8,
// §4.7): fixed-size grouping with bounded concurrency, an auto-sizer,
// gzip compression above a threshold, and rate-limited sequential
// processing.
package batch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Options configures Process. DelayBetweenBatches, when non-zero, is
// waited after each group starts before the next group is launched — it
// throttles overall throughput without limiting per-group concurrency.
type Options struct {
	BatchSize           int
	Concurrency         int
	DelayBetweenBatches time.Duration
}

// Processor runs one item and returns its result or an error.
type Processor[T any, R any] func(ctx context.Context, item T) (R, error)

// Process splits items into fixed-size groups, runs at most
// opts.Concurrency groups concurrently via golang.org/x/sync/errgroup (the
// same bounded fan-out primitive gazette-core and umh-core reach for), and
// preserves overall result ordering regardless of completion order.
func Process[T any, R any](ctx context.Context, items []T, opts Options, proc Processor[T, R]) ([]R, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = len(items)
		if opts.BatchSize == 0 {
			opts.BatchSize = 1
		}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	groups := chunk(items, opts.BatchSize)
	results := make([]R, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	offset := 0
	for _, group := range groups {
		group, base := group, offset
		offset += len(group)

		g.Go(func() error {
			for i, item := range group {
				r, err := proc(gctx, item)
				if err != nil {
					return err
				}
				results[base+i] = r
			}
			return nil
		})

		if opts.DelayBetweenBatches > 0 {
			if err := sleepCtx(gctx, opts.DelayBetweenBatches); err != nil {
				break
			}
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AutoSizer computes a batch size from a target memory ceiling and an
// estimated per-item byte size, per §4.7's "auto-sizer" note.
type AutoSizer struct {
	MemoryCeilingBytes int64
	EstimatedItemBytes int64
}

// BatchSize returns the largest batch size whose estimated footprint stays
// under the memory ceiling, never less than 1 and never more than total.
func (a AutoSizer) BatchSize(total int) int {
	if a.EstimatedItemBytes <= 0 || a.MemoryCeilingBytes <= 0 {
		return total
	}
	size := int(a.MemoryCeilingBytes / a.EstimatedItemBytes)
	if size < 1 {
		size = 1
	}
	if size > total {
		size = total
	}
	return size
}
