// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"testing"

	"github.com/mobiletoly/syncmw/model"
)

func TestTableMetadataCountsRowsAndBytes(t *testing.T) {
	db := openGatewayDB(t)
	gw := NewSQLGateway(db)
	ctx := context.Background()

	if err := gw.Execute(ctx, "INSERT INTO users (id, name) VALUES ($1, $2)", []model.Value{model.Text("1"), model.Text("alice")}); err != nil {
		t.Fatal(err)
	}
	if err := gw.Execute(ctx, "INSERT INTO users (id, name) VALUES ($1, $2)", []model.Value{model.Text("2"), model.Text("bob")}); err != nil {
		t.Fatal(err)
	}

	meta, err := gw.TableMetadata(ctx, "users")
	if err != nil {
		t.Fatal(err)
	}
	if meta.RowCount != 2 {
		t.Errorf("expected row count 2, got %d", meta.RowCount)
	}
	if meta.ByteSize <= 0 {
		t.Errorf("expected a positive byte size estimate, got %d", meta.ByteSize)
	}
}

func TestTableMetadataEmptyTable(t *testing.T) {
	db := openGatewayDB(t)
	gw := NewSQLGateway(db)
	ctx := context.Background()

	meta, err := gw.TableMetadata(ctx, "users")
	if err != nil {
		t.Fatal(err)
	}
	if meta.RowCount != 0 || meta.ByteSize != 0 {
		t.Errorf("expected a zeroed snapshot for an empty table, got %+v", meta)
	}
	if !meta.LastModified.IsZero() {
		t.Errorf("expected no recency without a recency column, got %v", meta.LastModified)
	}
}

func TestTableMetadataUsesSyncTimestampForRecency(t *testing.T) {
	db := openGatewayDB(t)
	if _, err := db.Exec(`CREATE TABLE events (id TEXT PRIMARY KEY, _sync_timestamp INTEGER)`); err != nil {
		t.Fatal(err)
	}
	gw := NewSQLGateway(db)
	ctx := context.Background()

	if err := gw.Execute(ctx, "INSERT INTO events (id, _sync_timestamp) VALUES ($1, $2)", []model.Value{model.Text("1"), model.Int(1_700_000_000_000)}); err != nil {
		t.Fatal(err)
	}

	meta, err := gw.TableMetadata(ctx, "events")
	if err != nil {
		t.Fatal(err)
	}
	if meta.LastModified.IsZero() {
		t.Error("expected LastModified to be populated from _sync_timestamp")
	}
}
