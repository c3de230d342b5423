// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package remotestore implements the Remote Store Client contract (C4,
// §4.3): authenticate, execute_sql, upload, download, with the exact
// HTTP-status-to-error-kind mapping the sync engine depends on for retry
// decisions.
package remotestore

import (
	"context"

	"github.com/mobiletoly/syncmw/model"
)

// ExecuteResult is the outcome of an ExecuteSQL call.
type ExecuteResult struct {
	Rows     []*model.Row
	Count    *int
	HasMore  bool
	Cursor   string
}

// Client is the contract the sync engine drives; wire format and transport
// are opaque to it (§4.3).
type Client interface {
	// Authenticate validates and binds token to the client. A prior token
	// is replaced atomically on success.
	Authenticate(ctx context.Context, token string) error

	// ExecuteSQL runs an opaque, backend-specific query string.
	ExecuteSQL(ctx context.Context, sql string) (*ExecuteResult, error)

	// Upload performs an at-least-once upsert of rows against table's
	// primary key.
	Upload(ctx context.Context, table string, rows []*model.Row) error

	// Download returns rows whose last-update timestamp exceeds sinceTS,
	// or all rows if sinceTS is nil.
	Download(ctx context.Context, table string, sinceTS *int64) ([]*model.Row, error)
}
