// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package changelog implements the Change Log (C2, §4.1): a durable,
// append-mostly record of every mutation against tracked tables,
// independent of the business tables themselves.
package changelog

import (
	"context"

	"github.com/mobiletoly/syncmw/model"
)

// Descriptor is the caller-supplied shape of a mutation to record. ID and
// Timestamp are assigned by Record, never by the caller.
type Descriptor struct {
	Table          string
	Op             model.Operation
	Data           *model.Row
	OldData        *model.Row
	SourceID       string
	SourceChangeID int64
}

// ChangeLog is the contract of §4.1. Implementations must serialize
// concurrent Record calls and must never overwrite an existing row.
type ChangeLog interface {
	// Record assigns id and timestamp, persists durably, and returns the
	// materialized Change.
	Record(ctx context.Context, d Descriptor) (*model.Change, error)

	// Unsynced returns changes with synced=false and timestamp > sinceTS,
	// ordered ascending by timestamp then insertion order. A row that fails
	// to decode is skipped rather than aborting the read; when that
	// happens the skipped-over result is still returned alongside a
	// Validation error surfaced once per call, per §4.1.
	Unsynced(ctx context.Context, sinceTS int64) ([]model.Change, error)

	// MarkSynced sets synced=true for matching ids. Unknown ids are
	// silently ignored; an empty slice is a no-op success.
	MarkSynced(ctx context.Context, ids []string) error

	// ClearBefore removes rows with synced=true and timestamp < ts. Rows
	// with synced=false are never removed regardless of age.
	ClearBefore(ctx context.Context, ts int64) error
}
