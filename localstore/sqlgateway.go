// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/mobiletoly/syncmw/model"
)

// SQLGateway is a reference Gateway implementation over database/sql,
// generalizing oversqlite.Client's writeMu-guarded, non-reentrant write
// path to arbitrary SQL rather than a fixed trigger-maintained schema.
type SQLGateway struct {
	db *sql.DB

	mu   sync.Mutex
	inTx bool // guards against reentrant Transaction calls

	tableInfo *TableInfoCache
}

func NewSQLGateway(db *sql.DB) *SQLGateway {
	return &SQLGateway{db: db, tableInfo: NewTableInfoCache()}
}

func (g *SQLGateway) Query(ctx context.Context, query string, params []model.Value) ([]*model.Row, error) {
	stmt, err := Substitute(query, params)
	if err != nil {
		return nil, err
	}
	rows, err := g.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, model.StorageError(fmt.Errorf("query: %w", err))
	}
	defer rows.Close()
	return scanRows(rows)
}

func (g *SQLGateway) Execute(ctx context.Context, query string, params []model.Value) error {
	stmt, err := Substitute(query, params)
	if err != nil {
		return err
	}
	if _, err := g.db.ExecContext(ctx, stmt); err != nil {
		return model.StorageError(fmt.Errorf("execute: %w", err))
	}
	return nil
}

// Transaction acquires a scoped *sql.Tx, running BEGIN on entry and
// COMMIT/ROLLBACK depending on body's outcome (§4.2). A panic inside body
// still triggers ROLLBACK before repropagating, matching "any failure
// including panic-equivalent unwinds".
func (g *SQLGateway) Transaction(ctx context.Context, body func(ctx context.Context, tx Tx) error) error {
	g.mu.Lock()
	if g.inTx {
		g.mu.Unlock()
		return model.ValidationError("transaction", []model.ValidationDetail{{Path: "transaction", Message: "nested transactions are not supported"}})
	}
	g.inTx = true
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.inTx = false
		g.mu.Unlock()
	}()

	sqlTx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return model.StorageError(fmt.Errorf("begin: %w", err))
	}

	tx := &sqlTxHandle{tx: sqlTx}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	if err := body(ctx, tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return model.StorageError(fmt.Errorf("commit: %w", err))
	}
	committed = true
	return nil
}

type sqlTxHandle struct {
	tx *sql.Tx
}

func (t *sqlTxHandle) Query(ctx context.Context, query string, params []model.Value) ([]*model.Row, error) {
	stmt, err := Substitute(query, params)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, stmt)
	if err != nil {
		return nil, model.StorageError(fmt.Errorf("query: %w", err))
	}
	defer rows.Close()
	return scanRows(rows)
}

func (t *sqlTxHandle) Execute(ctx context.Context, query string, params []model.Value) error {
	stmt, err := Substitute(query, params)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return model.StorageError(fmt.Errorf("execute: %w", err))
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]*model.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, model.StorageError(err)
	}
	var out []*model.Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, model.StorageError(fmt.Errorf("scan: %w", err))
		}
		row := model.NewRow()
		for i, col := range cols {
			row.Set(col, driverValueToModel(raw[i]))
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError(err)
	}
	return out, nil
}

func driverValueToModel(v any) model.Value {
	switch t := v.(type) {
	case nil:
		return model.Null()
	case int64:
		return model.Int(t)
	case float64:
		return model.Float(t)
	case bool:
		return model.Bool(t)
	case []byte:
		return model.Bytes(t)
	case string:
		return model.Text(t)
	case time.Time:
		return model.Instant(t)
	default:
		return model.Text(fmt.Sprintf("%v", t))
	}
}

var _ Gateway = (*SQLGateway)(nil)
