// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package model

import "time"

// Operation is one of Insert, Update, Delete (§3).
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Change records one mutation against a tracked table (§3). ID is assigned
// at record time and is unique across the log for the process lifetime.
// Timestamp is milliseconds since the Unix epoch, non-decreasing per
// producer with insertion-order tie-breaks.
type Change struct {
	ID        string
	Table     string
	Op        Operation
	Timestamp int64
	Data      *Row
	OldData   *Row
	Synced    bool

	// SourceID and SourceChangeID identify the producing device/session and
	// its local monotonic counter, carried from the teacher lineage
	// (oversqlite's _sync_pending.change_id) to make re-upload of a batch
	// after a crash idempotent at the remote store.
	SourceID       string
	SourceChangeID int64
}

// NowMillis returns the current time as milliseconds since epoch, the unit
// Change.Timestamp is expressed in.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// KeyColumns are, in preference order, the columns a Conflict Detector uses
// to project a primary key from a Row when none is declared explicitly
// (§4.4 "Key projection").
var KeyColumns = []string{"id", "_id", "uuid", "key"}

// ProjectKey extracts the primary-key projection of a row using the first
// available column from KeyColumns; if none are present the full row's
// canonical form is used, so any Change is still comparable to its peers.
func ProjectKey(r *Row) string {
	for _, col := range KeyColumns {
		if v, ok := r.Get(col); ok && !v.IsNull() {
			return v.String()
		}
	}
	return canonicalRow(r)
}

func canonicalRow(r *Row) string {
	if r == nil {
		return ""
	}
	s := ""
	for _, c := range r.Columns() {
		v, _ := r.Get(c)
		s += c + "=" + v.String() + ";"
	}
	return s
}

// Conflict is a pair of diverging values for the same key on both sides
// (§3).
type Conflict struct {
	Table       string
	Key         string
	LocalValue  *Row
	RemoteValue *Row
	LocalTS     int64
	RemoteTS    int64

	// Kind distinguishes an ordinary value divergence from the
	// update-vs-delete asymmetry of §4.4 step 3.
	Kind ConflictKind
}

// ConflictKind classifies why a Conflict was raised.
type ConflictKind string

const (
	ConflictValueDivergence ConflictKind = "value_divergence"
	ConflictUpdateVsDelete  ConflictKind = "update_vs_delete"
)
