// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package changelog

import (
	"context"
	"database/sql"
	"testing"

	"github.com/mobiletoly/syncmw/model"
)

func newRow(id string) *model.Row {
	return model.NewRow().Set("id", model.Text(id)).Set("name", model.Text("alice"))
}

func TestMemoryRecordAssignsIDAndTimestamp(t *testing.T) {
	m := NewMemory()
	ch, err := m.Record(context.Background(), Descriptor{Table: "users", Op: model.OpInsert, Data: newRow("1"), SourceID: "dev-a"})
	if err != nil {
		t.Fatal(err)
	}
	if ch.ID == "" {
		t.Error("expected a non-empty id")
	}
	if ch.Timestamp == 0 {
		t.Error("expected a non-zero timestamp")
	}
	if ch.Synced {
		t.Error("newly recorded changes must start unsynced")
	}
}

func TestMemoryRecordRejectsEmptyTable(t *testing.T) {
	m := NewMemory()
	if _, err := m.Record(context.Background(), Descriptor{Table: "", Op: model.OpInsert, Data: newRow("1")}); err == nil {
		t.Error("expected an error for an empty table name")
	}
}

func TestMemoryUnsyncedOrderingAndFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	first, err := m.Record(ctx, Descriptor{Table: "users", Op: model.OpInsert, Data: newRow("1"), SourceID: "dev-a"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Record(ctx, Descriptor{Table: "users", Op: model.OpInsert, Data: newRow("2"), SourceID: "dev-a"})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.MarkSynced(ctx, []string{first.ID}); err != nil {
		t.Fatal(err)
	}

	out, err := m.Unsynced(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != second.ID {
		t.Errorf("expected only the unsynced second change, got %+v", out)
	}
}

func TestMemoryMarkSyncedIgnoresUnknownIDs(t *testing.T) {
	m := NewMemory()
	if err := m.MarkSynced(context.Background(), []string{"does-not-exist"}); err != nil {
		t.Errorf("unknown ids must be silently ignored, got %v", err)
	}
}

func TestMemoryClearBeforeKeepsUnsynced(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ch, err := m.Record(ctx, Descriptor{Table: "users", Op: model.OpInsert, Data: newRow("1"), SourceID: "dev-a"})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.ClearBefore(ctx, ch.Timestamp+1); err != nil {
		t.Fatal(err)
	}
	out, err := m.Unsynced(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatal("unsynced rows must never be removed by ClearBefore")
	}

	if err := m.MarkSynced(ctx, []string{ch.ID}); err != nil {
		t.Fatal(err)
	}
	if err := m.ClearBefore(ctx, ch.Timestamp+1); err != nil {
		t.Fatal(err)
	}
	out, err = m.Unsynced(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Error("expected the synced, aged-out row to be cleared")
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteRecordAndUnsynced(t *testing.T) {
	db := openTestDB(t)
	cl, err := OpenSQLite(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	ch, err := cl.Record(ctx, Descriptor{Table: "users", Op: model.OpInsert, Data: newRow("1"), SourceID: "dev-a"})
	if err != nil {
		t.Fatal(err)
	}

	out, err := cl.Unsynced(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != ch.ID {
		t.Fatalf("expected the recorded change to be unsynced, got %+v", out)
	}
	if out[0].Data.Columns() == nil {
		t.Error("expected the row data to round-trip through JSON")
	}
}

func TestSQLiteMarkSyncedAndClearBefore(t *testing.T) {
	db := openTestDB(t)
	cl, err := OpenSQLite(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	ch, err := cl.Record(ctx, Descriptor{Table: "users", Op: model.OpInsert, Data: newRow("1"), SourceID: "dev-a"})
	if err != nil {
		t.Fatal(err)
	}
	if err := cl.MarkSynced(ctx, []string{ch.ID}); err != nil {
		t.Fatal(err)
	}
	out, err := cl.Unsynced(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatal("expected no unsynced rows after MarkSynced")
	}

	if err := cl.ClearBefore(ctx, ch.Timestamp+1); err != nil {
		t.Fatal(err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM _sync_changes`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected ClearBefore to remove the synced row, got %d rows remaining", count)
	}
}

func TestSQLiteRecordRejectsEmptyTable(t *testing.T) {
	db := openTestDB(t)
	cl, err := OpenSQLite(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cl.Record(context.Background(), Descriptor{Table: "", Op: model.OpInsert, Data: newRow("1")}); err == nil {
		t.Error("expected an error for an empty table name")
	}
}
