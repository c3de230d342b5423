// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package localstore implements the Local Store Gateway contract (C3, §4.2):
// parameterized query/execute with scoped transaction acquisition, plus the
// exact parameter-substitution rules mutation call sites must not
// reimplement themselves.
package localstore

import (
	"context"

	"github.com/mobiletoly/syncmw/model"
)

// Gateway is the contract consumed by the Sync Engine's pull flow (§4.8) to
// apply downloaded rows transactionally. The underlying connection and its
// lifecycle are the embedder's responsibility (§1 Non-goals: the local
// store itself is out of scope).
type Gateway interface {
	// Query executes a read with positional $N parameters, returning rows.
	Query(ctx context.Context, sql string, params []model.Value) ([]*model.Row, error)

	// Execute performs a parameterized write.
	Execute(ctx context.Context, sql string, params []model.Value) error

	// Transaction runs body inside a BEGIN/COMMIT/ROLLBACK scope. Nested
	// calls on the same Gateway are rejected (non-reentrant, §4.2).
	Transaction(ctx context.Context, body func(ctx context.Context, tx Tx) error) error
}

// Tx is the scoped handle passed to a Transaction body; it exposes the same
// Query/Execute surface as Gateway but runs inside the open transaction.
type Tx interface {
	Query(ctx context.Context, sql string, params []model.Value) ([]*model.Row, error)
	Execute(ctx context.Context, sql string, params []model.Value) error
}
