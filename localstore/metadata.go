// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mobiletoly/syncmw/model"
)

// MetadataProvider is implemented by Gateways that can report a table's
// row count, approximate byte size, and recency for the Table Filter's
// metadata-based predicates (§4.6). It's optional: a Gateway that doesn't
// implement it simply never gets asked, and metadata predicates configured
// against it are treated as unevaluable rather than rejecting every table.
type MetadataProvider interface {
	TableMetadata(ctx context.Context, table string) (model.TableMetadata, error)
}

// TableMetadata satisfies MetadataProvider using the same PRAGMA-discovered
// column list Triggers uses to build its capture SQL: row count comes from
// COUNT(*), byte size from summing LENGTH() across every column (SQLite's
// LENGTH is defined over TEXT, BLOB, and numeric operands alike), and
// recency from the MAX of the first of "_sync_timestamp", "updated_at" or
// "modified_at" the table has, falling back to a zero time when it has none.
func (g *SQLGateway) TableMetadata(ctx context.Context, table string) (model.TableMetadata, error) {
	info, err := g.tableInfo.Get(ctx, g.db, table)
	if err != nil {
		return model.TableMetadata{}, model.StorageError(fmt.Errorf("table metadata for %s: %w", table, err))
	}

	byteSizeExpr := "0"
	if len(info.Columns) > 0 {
		terms := make([]string, len(info.Columns))
		for i, col := range info.Columns {
			terms[i] = fmt.Sprintf("LENGTH(%s)", col.Name)
		}
		byteSizeExpr = "COALESCE(SUM(" + strings.Join(terms, " + ") + "), 0)"
	}

	recencyCol := recencyColumn(info)
	recencyExpr := "NULL"
	if recencyCol != "" {
		recencyExpr = fmt.Sprintf("MAX(%s)", recencyCol)
	}

	query := fmt.Sprintf("SELECT COUNT(*), %s, %s FROM %s", byteSizeExpr, recencyExpr, table)
	row := g.db.QueryRowContext(ctx, query)

	var rowCount, byteSize int64
	var recency sql.NullString
	if err := row.Scan(&rowCount, &byteSize, &recency); err != nil {
		return model.TableMetadata{}, model.StorageError(fmt.Errorf("scan table metadata for %s: %w", table, err))
	}

	meta := model.TableMetadata{RowCount: rowCount, ByteSize: byteSize}
	if recency.Valid {
		if ts, perr := parseSQLiteTime(recency.String); perr == nil {
			meta.LastModified = ts
		}
	}
	return meta, nil
}

func recencyColumn(info *TableInfo) string {
	for _, candidate := range []string{"_sync_timestamp", "updated_at", "modified_at"} {
		for _, col := range info.Columns {
			if strings.EqualFold(col.Name, candidate) {
				return col.Name
			}
		}
	}
	return ""
}

// parseSQLiteTime accepts both the epoch-millisecond integers this module
// stores in "_sync_timestamp" and the RFC3339 strings mattn/go-sqlite3
// returns for DATETIME/TIMESTAMP columns.
func parseSQLiteTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339, raw)
}

var _ MetadataProvider = (*SQLGateway)(nil)
