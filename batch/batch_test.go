// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mobiletoly/syncmw/model"
)

func TestProcessPreservesOrdering(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	results, err := Process(context.Background(), items, Options{BatchSize: 3, Concurrency: 4}, func(ctx context.Context, item int) (int, error) {
		return item * 2, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range results {
		if v != items[i]*2 {
			t.Errorf("index %d: expected %d, got %d", i, items[i]*2, v)
		}
	}
}

func TestProcessPropagatesError(t *testing.T) {
	items := []int{1, 2, 3}
	boom := errors.New("boom")
	_, err := Process(context.Background(), items, Options{BatchSize: 1, Concurrency: 2}, func(ctx context.Context, item int) (int, error) {
		if item == 2 {
			return 0, boom
		}
		return item, nil
	})
	if err != boom {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestAutoSizerRespectsCeiling(t *testing.T) {
	a := AutoSizer{MemoryCeilingBytes: 1000, EstimatedItemBytes: 100}
	if got := a.BatchSize(50); got != 10 {
		t.Errorf("expected 10, got %d", got)
	}
	if got := a.BatchSize(5); got != 5 {
		t.Errorf("expected clamp to total 5, got %d", got)
	}
}

func TestCompressorRoundTrip(t *testing.T) {
	c := NewCompressor(10)
	small := []byte("hi")
	out, compressed, err := c.Encode(small)
	if err != nil {
		t.Fatal(err)
	}
	if compressed {
		t.Error("small payload should not compress")
	}
	if string(out) != "hi" {
		t.Errorf("expected passthrough, got %s", out)
	}

	big := bytesRepeat("x", 100)
	out, compressed, err = c.Encode(big)
	if err != nil {
		t.Fatal(err)
	}
	if !compressed {
		t.Error("large payload should compress")
	}
	decoded, err := Decode(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(big) {
		t.Error("round trip mismatch")
	}
}

func TestDecodePassesThroughNonGzip(t *testing.T) {
	raw := []byte("plain text")
	out, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(raw) {
		t.Error("expected passthrough for non-gzip data")
	}
}

func bytesRepeat(s string, n int) []byte {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s[0])
	}
	return out
}

func TestRetryWithBackoffGivesUpAtMaxAttempts(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, Factor: 1}, func(ctx context.Context, attempt int) error {
		attempts++
		return model.NetworkError(true, 0, errors.New("down"))
	})
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if err == nil {
		t.Error("expected error after exhausting retries")
	}
}

func TestRetryWithBackoffStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), RetryOptions{MaxAttempts: 5, InitialDelay: time.Millisecond, Factor: 1}, func(ctx context.Context, attempt int) error {
		attempts++
		return model.ValidationError("field", nil)
	})
	if attempts != 1 {
		t.Errorf("expected 1 attempt for non-retryable error, got %d", attempts)
	}
	if err == nil {
		t.Error("expected error surfaced")
	}
}

func TestRetryWithBackoffSucceeds(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, Factor: 2}, func(ctx context.Context, attempt int) error {
		attempts++
		if attempt < 2 {
			return model.NetworkError(true, 0, errors.New("transient"))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}
