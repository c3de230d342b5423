// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package changelog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mobiletoly/syncmw/model"
)

// SQLite is a durable ChangeLog backed by the `_sync_changes` table:
// id TEXT PK, "table" TEXT, op TEXT, timestamp INTEGER, data TEXT (JSON),
// old_data TEXT (JSON, NULL allowed), synced INTEGER 0|1, plus two more
// columns, source_id TEXT and source_change_id INTEGER, so the table has
// nine columns rather than seven; secondary indexes on (timestamp) and
// (synced). It never falls back to the teacher's
// string-interpolated DDL/DML path (§9 Open Question); every statement
// below is parameterized.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.Mutex // serializes writers, mirroring oversqlite.Client.writeMu
	lastTS map[string]int64
}

// OpenSQLite opens (or creates) the change-log schema on db. The caller
// owns db's lifecycle; OpenSQLite does not close it.
func OpenSQLite(db *sql.DB, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, model.StorageError(fmt.Errorf("enable WAL: %w", err))
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _sync_changes (
			id        TEXT PRIMARY KEY,
			"table"   TEXT NOT NULL,
			op        TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			data      TEXT,
			old_data  TEXT,
			synced    INTEGER NOT NULL DEFAULT 0,
			source_id TEXT NOT NULL DEFAULT '',
			source_change_id INTEGER NOT NULL DEFAULT 0
		)`); err != nil {
		return nil, model.StorageError(fmt.Errorf("create _sync_changes: %w", err))
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_sync_changes_timestamp ON _sync_changes(timestamp)`); err != nil {
		return nil, model.StorageError(fmt.Errorf("create timestamp index: %w", err))
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_sync_changes_synced ON _sync_changes(synced)`); err != nil {
		return nil, model.StorageError(fmt.Errorf("create synced index: %w", err))
	}
	return &SQLite{db: db, logger: logger, lastTS: make(map[string]int64)}, nil
}

func (s *SQLite) Record(ctx context.Context, d Descriptor) (*model.Change, error) {
	if d.Table == "" {
		return nil, model.ValidationError("table", []model.ValidationDetail{{Path: "table", Message: "table must not be empty"}})
	}

	dataJSON, err := model.MarshalRowJSON(d.Data)
	if err != nil {
		return nil, model.ValidationError("data", []model.ValidationDetail{{Path: "data", Message: err.Error()}})
	}
	oldJSON, err := model.MarshalRowJSON(d.OldData)
	if err != nil {
		return nil, model.ValidationError("old_data", []model.ValidationDetail{{Path: "old_data", Message: err.Error()}})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := model.NowMillis()
	if last, ok := s.lastTS[d.SourceID]; ok && ts < last {
		ts = last
	}
	s.lastTS[d.SourceID] = ts

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO _sync_changes (id, "table", op, timestamp, data, old_data, synced, source_id, source_change_id)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, id, d.Table, string(d.Op), ts, string(dataJSON), string(oldJSON), d.SourceID, d.SourceChangeID)
	if err != nil {
		return nil, model.StorageError(fmt.Errorf("insert change: %w", err))
	}

	return &model.Change{
		ID: id, Table: d.Table, Op: d.Op, Timestamp: ts,
		Data: d.Data, OldData: d.OldData, Synced: false,
		SourceID: d.SourceID, SourceChangeID: d.SourceChangeID,
	}, nil
}

func (s *SQLite) Unsynced(ctx context.Context, sinceTS int64) ([]model.Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, "table", op, timestamp, data, old_data, synced, source_id, source_change_id
		FROM _sync_changes
		WHERE synced = 0 AND timestamp > ?
		ORDER BY timestamp ASC, rowid ASC
	`, sinceTS)
	if err != nil {
		return nil, model.StorageError(fmt.Errorf("query unsynced: %w", err))
	}
	defer rows.Close()

	var out []model.Change
	decodeFailed := false
	for rows.Next() {
		var (
			id, table, op, sourceID string
			ts, sourceChangeID      int64
			data, oldData           sql.NullString
			syncedInt               int
		)
		if err := rows.Scan(&id, &table, &op, &ts, &data, &oldData, &syncedInt, &sourceID, &sourceChangeID); err != nil {
			return nil, model.StorageError(fmt.Errorf("scan change: %w", err))
		}
		dataRow, derr := model.UnmarshalRowJSON([]byte(data.String))
		oldRow, oerr := model.UnmarshalRowJSON([]byte(oldData.String))
		if derr != nil || oerr != nil {
			// Decode failures skip the offending row; surface a Decode
			// (Validation) error once per scan, per §4.1's failure semantics.
			decodeFailed = true
			continue
		}
		out = append(out, model.Change{
			ID: id, Table: table, Op: model.Operation(op), Timestamp: ts,
			Data: dataRow, OldData: oldRow, Synced: syncedInt != 0,
			SourceID: sourceID, SourceChangeID: sourceChangeID,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError(err)
	}
	if decodeFailed {
		s.logger.Warn("skipped rows in _sync_changes that failed to decode")
		return out, model.ValidationError("data", []model.ValidationDetail{{Path: "data", Message: "one or more _sync_changes rows failed to decode and were skipped"}})
	}
	return out, nil
}

func (s *SQLite) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.StorageError(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE _sync_changes SET synced = 1 WHERE id = ?`)
	if err != nil {
		return model.StorageError(err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return model.StorageError(fmt.Errorf("mark synced %s: %w", id, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return model.StorageError(err)
	}
	return nil
}

func (s *SQLite) ClearBefore(ctx context.Context, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM _sync_changes WHERE synced = 1 AND timestamp < ?`, ts); err != nil {
		return model.StorageError(fmt.Errorf("clear before %d: %w", ts, err))
	}
	return nil
}

var _ ChangeLog = (*SQLite)(nil)
