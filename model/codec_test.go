// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"testing"
	"time"
)

func TestRowJSONRoundTrip(t *testing.T) {
	row := NewRow().
		Set("id", Text("1")).
		Set("age", Int(42)).
		Set("score", Float(3.5)).
		Set("active", Bool(true)).
		Set("created_at", Instant(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))).
		Set("blob", Bytes([]byte{0xde, 0xad, 0xbe, 0xef})).
		Set("nothing", Null())

	data, err := MarshalRowJSON(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := UnmarshalRowJSON(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Len() != row.Len() {
		t.Fatalf("column count mismatch: got %d want %d", got.Len(), row.Len())
	}
	if !got.Equal(row, "") {
		t.Fatalf("round-tripped row differs: %v vs %v", got, row)
	}

	gotCols := got.Columns()
	wantCols := row.Columns()
	for i := range wantCols {
		if gotCols[i] != wantCols[i] {
			t.Fatalf("column order mismatch at %d: got %s want %s", i, gotCols[i], wantCols[i])
		}
	}
}

func TestRowEqualExcludesMetaPrefix(t *testing.T) {
	a := NewRow().Set("id", Text("1")).Set("_sync_timestamp", Int(1000))
	b := NewRow().Set("id", Text("1")).Set("_sync_timestamp", Int(2000))
	if !a.Equal(b, "_sync_") {
		t.Fatalf("rows should be equal excluding _sync_ prefixed columns")
	}
	if a.Equal(b, "") {
		t.Fatalf("rows should differ when metadata columns are compared")
	}
}

func TestValueEqualByContent(t *testing.T) {
	b1 := Bytes([]byte{1, 2, 3})
	b2 := Bytes([]byte{1, 2, 3})
	if !b1.Equal(b2) {
		t.Fatalf("byte values with equal content should be equal")
	}
	t1 := Instant(time.Unix(100, 0))
	t2 := Instant(time.Unix(100, 0).In(time.FixedZone("x", 3600)))
	if !t1.Equal(t2) {
		t.Fatalf("instants should compare by absolute time, not location")
	}
}

func TestErrorIsRetryable(t *testing.T) {
	cases := []struct {
		err  *Error
		want bool
	}{
		{NetworkError(true, 503, nil), true},
		{NetworkError(false, 404, nil), false},
		{AuthError(true, "expired"), true},
		{AuthError(false, "bad credential"), false},
		{ValidationError("sql", nil), false},
	}
	for _, c := range cases {
		if got := c.err.IsRetryable(); got != c.want {
			t.Errorf("%v: IsRetryable() = %v, want %v", c.err.Kind, got, c.want)
		}
	}
}

func TestErrorWithContextPreservesKind(t *testing.T) {
	e := NetworkError(true, 500, nil)
	wrapped := e.WithContext("users", 2, 1)
	if wrapped.Kind != ErrNetwork {
		t.Fatalf("wrapping must preserve Kind, got %v", wrapped.Kind)
	}
	if wrapped.Table != "users" || wrapped.Batch != 2 || wrapped.Attempt != 1 {
		t.Fatalf("context fields not applied: %+v", wrapped)
	}
}
