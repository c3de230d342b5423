// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// wireValue is the JSON-visible shape of a single column value. Only one of
// the typed fields is set alongside Kind, mirroring the discriminated-union
// encoding oversqlite uses for hex-aware BLOB columns (triggers.go's
// buildJsonObjectExprHexAware), generalized to every Value kind so the
// encoding round-trips exactly, except that instants keep only millisecond
// precision.
type wireValue struct {
	Kind  string `json:"$k"`
	Text  string `json:"$t,omitempty"`
	Int   *int64 `json:"$i,omitempty"`
	Float *float64 `json:"$f,omitempty"`
	Bool  *bool  `json:"$b,omitempty"`
	Time  string `json:"$ts,omitempty"`
	Hex   string `json:"$x,omitempty"`
}

func toWire(v Value) wireValue {
	switch v.Kind {
	case KindNull:
		return wireValue{Kind: "null"}
	case KindText:
		return wireValue{Kind: "text", Text: v.Text}
	case KindInt:
		i := v.Int
		return wireValue{Kind: "int", Int: &i}
	case KindFloat:
		f := v.Float
		return wireValue{Kind: "float", Float: &f}
	case KindBool:
		b := v.Bool
		return wireValue{Kind: "bool", Bool: &b}
	case KindTime:
		return wireValue{Kind: "time", Time: v.Time.UTC().Format("2006-01-02T15:04:05.000Z")}
	case KindBytes:
		return wireValue{Kind: "bytes", Hex: "\\x" + hex.EncodeToString(v.Bytes)}
	default:
		return wireValue{Kind: "null"}
	}
}

func fromWire(w wireValue) (Value, error) {
	switch w.Kind {
	case "null", "":
		return Null(), nil
	case "text":
		return Text(w.Text), nil
	case "int":
		if w.Int == nil {
			return Value{}, fmt.Errorf("wire value kind=int missing $i")
		}
		return Int(*w.Int), nil
	case "float":
		if w.Float == nil {
			return Value{}, fmt.Errorf("wire value kind=float missing $f")
		}
		return Float(*w.Float), nil
	case "bool":
		if w.Bool == nil {
			return Value{}, fmt.Errorf("wire value kind=bool missing $b")
		}
		return Bool(*w.Bool), nil
	case "time":
		t, err := time.Parse("2006-01-02T15:04:05.000Z", w.Time)
		if err != nil {
			t, err = time.Parse(time.RFC3339Nano, w.Time)
			if err != nil {
				return Value{}, fmt.Errorf("decode instant %q: %w", w.Time, err)
			}
		}
		return Instant(t), nil
	case "bytes":
		s := w.Hex
		if len(s) >= 2 && s[:2] == `\x` {
			s = s[2:]
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return Value{}, fmt.Errorf("decode blob hex %q: %w", w.Hex, err)
		}
		return Bytes(b), nil
	default:
		return Value{}, fmt.Errorf("unknown wire value kind %q", w.Kind)
	}
}

// MarshalRowJSON encodes a Row as a JSON object with stable key ordering
// (§6), suitable for the change log's data/old_data columns.
func MarshalRowJSON(r *Row) ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		v, _ := r.Get(col)
		val, err := json.Marshal(toWire(v))
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalRowJSON decodes a Row previously produced by MarshalRowJSON.
// Column order is recovered from the raw JSON token stream so it matches
// what was written, not map iteration order.
func UnmarshalRowJSON(data []byte) (*Row, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object for row, got %v", tok)
	}
	row := NewRow()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %v", keyTok)
		}
		var w wireValue
		if err := dec.Decode(&w); err != nil {
			return nil, fmt.Errorf("decode value for column %q: %w", key, err)
		}
		v, err := fromWire(w)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", key, err)
		}
		row.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return row, nil
}
