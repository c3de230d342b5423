// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mobiletoly/syncmw/model"
)

// Substitute renders sql with its positional $N markers replaced by the
// literal form of params[N-1], using exactly the escaping rules of §4.2:
// strings double their single quotes, timestamps render as ISO-8601,
// byte arrays hex-encode as \xHH…, booleans render as true/false, and null
// values render as the NULL literal.
//
// This exists so callers never hand-rewrite SQL with embedded literals the
// way the teacher's Storage-backed change log does for a subset of its
// DDL/DML (oversqlite's deprecated string-interpolated path, flagged as a
// bug to close in §9) — every call site goes through this one function.
func Substitute(sql string, params []model.Value) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(sql) {
		c := sql[i]
		if c != '$' {
			out.WriteByte(c)
			i++
			continue
		}
		j := i + 1
		for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
			j++
		}
		if j == i+1 {
			// Bare '$' with no digits: not a marker, keep literal.
			out.WriteByte(c)
			i++
			continue
		}
		n, err := strconv.Atoi(sql[i+1 : j])
		if err != nil {
			return "", model.ValidationError("sql", []model.ValidationDetail{{Path: "sql", Message: fmt.Sprintf("invalid parameter marker at offset %d", i)}})
		}
		if n < 1 || n > len(params) {
			return "", model.ValidationError("sql", []model.ValidationDetail{{Path: "sql", Message: fmt.Sprintf("parameter $%d out of range (have %d)", n, len(params))}})
		}
		lit, err := Literal(params[n-1])
		if err != nil {
			return "", err
		}
		out.WriteString(lit)
		i = j
	}
	return out.String(), nil
}

// Literal renders one Value as the SQL literal §4.2 specifies.
func Literal(v model.Value) (string, error) {
	switch v.Kind {
	case model.KindNull:
		return "NULL", nil
	case model.KindText:
		return "'" + strings.ReplaceAll(v.Text, "'", "''") + "'", nil
	case model.KindInt:
		return strconv.FormatInt(v.Int, 10), nil
	case model.KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64), nil
	case model.KindBool:
		if v.Bool {
			return "true", nil
		}
		return "false", nil
	case model.KindTime:
		return "'" + v.Time.UTC().Format(time.RFC3339Nano) + "'", nil
	case model.KindBytes:
		return "'\\x" + hexEncode(v.Bytes) + "'", nil
	default:
		return "", model.ValidationError("params", []model.ValidationDetail{{Path: "params", Message: "unsupported value kind"}})
	}
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
