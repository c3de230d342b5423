// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package model defines the wire-stable data types shared by every
// synchronization component: the typed Value union, Row, Change, Conflict,
// SyncState, NetworkState, SyncConfig and the error taxonomy of §7.
package model

import (
	"bytes"
	"fmt"
	"time"
)

// Kind identifies which arm of the Value union is populated.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindInt
	KindFloat
	KindBool
	KindTime
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Value is the typed union described in §3: text, integer, floating-point,
// boolean, absent (null), instant-in-time, or opaque byte array. Only the
// field matching Kind is meaningful; the zero Value is Null.
type Value struct {
	Kind  Kind
	Text  string
	Int   int64
	Float float64
	Bool  bool
	Time  time.Time
	Bytes []byte
}

func Null() Value                 { return Value{Kind: KindNull} }
func Text(s string) Value         { return Value{Kind: KindText, Text: s} }
func Int(i int64) Value           { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value       { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func Instant(t time.Time) Value   { return Value{Kind: KindTime, Time: t.UTC()} }
func Bytes(b []byte) Value        { return Value{Kind: KindBytes, Bytes: append([]byte(nil), b...)} }
func (v Value) IsNull() bool      { return v.Kind == KindNull }

// Equal reports structural equality per §4.4's equality semantics: instants
// and byte arrays compare by content, everything else by canonical form.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		// A null compared against an absent value of any other kind is not
		// equal; kinds must match exactly.
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindText:
		return v.Text == other.Text
	case KindInt:
		return v.Int == other.Int
	case KindFloat:
		return v.Float == other.Float
	case KindBool:
		return v.Bool == other.Bool
	case KindTime:
		return v.Time.Equal(other.Time)
	case KindBytes:
		return bytes.Equal(v.Bytes, other.Bytes)
	default:
		return false
	}
}

// String renders a canonical, human-inspectable form. It is not the wire
// encoding (see codec.go for that).
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "<null>"
	case KindText:
		return v.Text
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindTime:
		return v.Time.Format(time.RFC3339Nano)
	case KindBytes:
		return fmt.Sprintf("\\x%x", v.Bytes)
	default:
		return "<unknown>"
	}
}
