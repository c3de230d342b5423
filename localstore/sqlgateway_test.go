// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mobiletoly/syncmw/model"
)

func openGatewayDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`CREATE TABLE users (id TEXT PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestGatewayExecuteAndQuery(t *testing.T) {
	db := openGatewayDB(t)
	gw := NewSQLGateway(db)
	ctx := context.Background()

	if err := gw.Execute(ctx, "INSERT INTO users (id, name) VALUES ($1, $2)", []model.Value{model.Text("1"), model.Text("alice")}); err != nil {
		t.Fatal(err)
	}

	rows, err := gw.Query(ctx, "SELECT id, name FROM users WHERE id = $1", []model.Value{model.Text("1")})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	v, ok := rows[0].Get("name")
	if !ok || v.Text != "alice" {
		t.Errorf("expected name=alice, got %+v", v)
	}
}

func TestGatewayTransactionCommits(t *testing.T) {
	db := openGatewayDB(t)
	gw := NewSQLGateway(db)
	ctx := context.Background()

	err := gw.Transaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Execute(ctx, "INSERT INTO users (id, name) VALUES ($1, $2)", []model.Value{model.Text("1"), model.Text("bob")})
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, err := gw.Query(ctx, "SELECT id FROM users", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("expected the committed row to be visible, got %d rows", len(rows))
	}
}

func TestGatewayTransactionRollsBackOnError(t *testing.T) {
	db := openGatewayDB(t)
	gw := NewSQLGateway(db)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := gw.Transaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Execute(ctx, "INSERT INTO users (id, name) VALUES ($1, $2)", []model.Value{model.Text("1"), model.Text("carol")}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the sentinel error to propagate, got %v", err)
	}

	rows, err := gw.Query(ctx, "SELECT id FROM users", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("expected the rolled-back insert to be invisible, got %d rows", len(rows))
	}
}

func TestGatewayTransactionRejectsReentrance(t *testing.T) {
	db := openGatewayDB(t)
	gw := NewSQLGateway(db)
	ctx := context.Background()

	outerErr := gw.Transaction(ctx, func(ctx context.Context, tx Tx) error {
		return gw.Transaction(ctx, func(ctx context.Context, tx Tx) error {
			return nil
		})
	})
	if outerErr == nil {
		t.Error("expected a nested Transaction call to fail")
	}
}

func TestGatewayTransactionUnlocksAfterFailure(t *testing.T) {
	db := openGatewayDB(t)
	gw := NewSQLGateway(db)
	ctx := context.Background()

	_ = gw.Transaction(ctx, func(ctx context.Context, tx Tx) error {
		return errors.New("fail")
	})

	// A second, independent Transaction call must still be accepted.
	err := gw.Transaction(ctx, func(ctx context.Context, tx Tx) error {
		return nil
	})
	if err != nil {
		t.Errorf("expected the gateway to accept a fresh transaction after a failed one, got %v", err)
	}
}
