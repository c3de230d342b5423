// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package changelog

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"text/template"

	"github.com/mobiletoly/syncmw/localstore"
)

// Triggers installs SQLite AFTER triggers that populate the _sync_changes
// table (§6) directly from raw INSERT/UPDATE/DELETE statements against a
// business table, generalizing oversqlite/triggers.go's
// _sync_pending/_sync_row_meta pair into a single append-only log. Record
// remains the primary, explicit API; Triggers is an optional convenience
// layer for embedders that would rather not call Record at every write
// site.
type Triggers struct {
	db    *sql.DB
	cache *localstore.TableInfoCache
}

// NewTriggers returns a trigger installer over db, using cache to discover
// each table's column shape (blob columns get hex-encoded in the JSON
// payload, matching buildJsonObjectExprHexAware's approach).
func NewTriggers(db *sql.DB, cache *localstore.TableInfoCache) *Triggers {
	if cache == nil {
		cache = localstore.NewTableInfoCache()
	}
	return &Triggers{db: db, cache: cache}
}

// triggerData is the per-table rendering context shared by all three
// templates below.
type triggerData struct {
	TableName  string
	NewRowJSON string
	OldRowJSON string
}

const insertTriggerTemplate = `CREATE TRIGGER IF NOT EXISTS trg_{{.TableName}}_sync_ai
AFTER INSERT ON {{.TableName}}
BEGIN
	INSERT INTO _sync_changes (id, "table", op, timestamp, data, old_data, synced, source_id, source_change_id)
	VALUES (
		lower(hex(randomblob(16))),
		'{{.TableName}}',
		'INSERT',
		CAST((julianday('now') - 2440587.5) * 86400000 AS INTEGER),
		{{.NewRowJSON}},
		NULL,
		0, '', 0
	);
END`

const updateTriggerTemplate = `CREATE TRIGGER IF NOT EXISTS trg_{{.TableName}}_sync_au
AFTER UPDATE ON {{.TableName}}
BEGIN
	INSERT INTO _sync_changes (id, "table", op, timestamp, data, old_data, synced, source_id, source_change_id)
	VALUES (
		lower(hex(randomblob(16))),
		'{{.TableName}}',
		'UPDATE',
		CAST((julianday('now') - 2440587.5) * 86400000 AS INTEGER),
		{{.NewRowJSON}},
		{{.OldRowJSON}},
		0, '', 0
	);
END`

const deleteTriggerTemplate = `CREATE TRIGGER IF NOT EXISTS trg_{{.TableName}}_sync_ad
AFTER DELETE ON {{.TableName}}
BEGIN
	INSERT INTO _sync_changes (id, "table", op, timestamp, data, old_data, synced, source_id, source_change_id)
	VALUES (
		lower(hex(randomblob(16))),
		'{{.TableName}}',
		'DELETE',
		CAST((julianday('now') - 2440587.5) * 86400000 AS INTEGER),
		NULL,
		{{.OldRowJSON}},
		0, '', 0
	);
END`

// jsonObjectExpr builds a SQLite json_object(...) call over every column of
// info, hex-encoding blob columns so binary data survives the TEXT column
// _sync_changes.data is stored in.
func jsonObjectExpr(info *localstore.TableInfo, prefix string) string {
	pairs := make([]string, 0, len(info.Columns))
	for _, col := range info.Columns {
		name := strings.ToLower(col.Name)
		expr := prefix + "." + col.Name
		if col.IsBlob() {
			expr = fmt.Sprintf("lower(hex(%s))", expr)
		}
		pairs = append(pairs, fmt.Sprintf("'%s', %s", name, expr))
	}
	return fmt.Sprintf("json_object(%s)", strings.Join(pairs, ", "))
}

// Install creates the three AFTER triggers for table if they do not exist
// yet (an existing trigger of the same name is left unchanged), discovering
// its column shape via the TableInfoCache. Call this once per
// tracked table after the table itself has been created.
func (tr *Triggers) Install(ctx context.Context, table string) error {
	info, err := tr.cache.Get(ctx, tr.db, table)
	if err != nil {
		return fmt.Errorf("discover table info for %s: %w", table, err)
	}

	data := triggerData{
		TableName:  strings.ToLower(table),
		NewRowJSON: jsonObjectExpr(info, "NEW"),
		OldRowJSON: jsonObjectExpr(info, "OLD"),
	}

	for _, tmplSrc := range []string{insertTriggerTemplate, updateTriggerTemplate, deleteTriggerTemplate} {
		t, err := template.New("trigger").Parse(tmplSrc)
		if err != nil {
			return fmt.Errorf("parse trigger template for %s: %w", table, err)
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return fmt.Errorf("render trigger template for %s: %w", table, err)
		}
		if _, err := tr.db.ExecContext(ctx, buf.String()); err != nil {
			return fmt.Errorf("install trigger for %s: %w", table, err)
		}
	}
	return nil
}

// Drop removes the three AFTER triggers for table, if present.
func (tr *Triggers) Drop(ctx context.Context, table string) error {
	table = strings.ToLower(table)
	for _, suffix := range []string{"ai", "au", "ad"} {
		stmt := fmt.Sprintf("DROP TRIGGER IF EXISTS trg_%s_sync_%s", table, suffix)
		if _, err := tr.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("drop trigger for %s: %w", table, err)
		}
	}
	return nil
}
