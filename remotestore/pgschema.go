// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package remotestore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgColumn is one discovered column of a Postgres table, the pgserver
// analogue of oversync.SchemaDiscovery's column-type map.
type pgColumn struct {
	Name       string
	DataType   string
	IsPrimary  bool
}

// pgTable is the discovered shape of one "schema.table".
type pgTable struct {
	Schema  string
	Table   string
	Columns []pgColumn
	PKCols  []string
}

func (t *pgTable) qualified() string {
	return fmt.Sprintf("%q.%q", t.Schema, t.Table)
}

// pgForeignKey mirrors oversync.ForeignKeyConstraint: child table/column
// referencing a parent table/column.
type pgForeignKey struct {
	ChildSchema, ChildTable, ChildColumn   string
	ParentSchema, ParentTable, ParentColumn string
	ConstraintName                          string
	Deferrable, InitiallyDeferred           bool
}

// pgSchemaCache discovers and caches table shapes and their FK dependency
// order, grounded on oversync.SchemaDiscovery but instance-owned per
// PGServer rather than shared process-wide state (same avoidance the
// localstore.TableInfoCache applies).
type pgSchemaCache struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu     sync.RWMutex
	tables map[string]*pgTable
	order  map[string]int // "schema.table" -> topological rank, lower applies first
}

func newPGSchemaCache(pool *pgxpool.Pool, logger *slog.Logger) *pgSchemaCache {
	return &pgSchemaCache{pool: pool, logger: logger, tables: make(map[string]*pgTable)}
}

func pgKey(schema, table string) string { return schema + "." + table }

func (c *pgSchemaCache) get(ctx context.Context, schema, table string) (*pgTable, error) {
	key := pgKey(schema, table)

	c.mu.RLock()
	if t, ok := c.tables[key]; ok {
		c.mu.RUnlock()
		return t, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tables[key]; ok {
		return t, nil
	}

	rows, err := c.pool.Query(ctx, `
		SELECT c.column_name, c.data_type,
		       COALESCE(pk.is_pk, false) AS is_pk
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.column_name, true AS is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = $1 AND tc.table_name = $2
		) pk ON pk.column_name = c.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("discover columns for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []pgColumn
	var pkCols []string
	for rows.Next() {
		var col pgColumn
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan column info for %s.%s: %w", schema, table, err)
		}
		cols = append(cols, col)
		if col.IsPrimary {
			pkCols = append(pkCols, col.Name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s.%s not found", schema, table)
	}

	t := &pgTable{Schema: schema, Table: table, Columns: cols, PKCols: pkCols}
	c.tables[key] = t
	return t, nil
}

func (c *pgSchemaCache) invalidate(schema, table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if schema == "" && table == "" {
		c.tables = make(map[string]*pgTable)
		c.order = nil
		return
	}
	delete(c.tables, pgKey(schema, table))
	c.order = nil
}

// foreignKeys discovers FK constraints among the given "schema.table" keys,
// the same information oversync.SchemaDiscovery.getForeignKeyConstraints
// pulls from information_schema.
func (c *pgSchemaCache) foreignKeys(ctx context.Context, keys map[string]bool) ([]pgForeignKey, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT
			tc.constraint_name,
			tc.table_schema, tc.table_name, kcu.column_name,
			ccu.table_schema, ccu.table_name, ccu.column_name,
			rc.is_deferrable = 'YES', rc.initially_deferred = 'YES'
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		JOIN information_schema.referential_constraints rc
		  ON tc.constraint_name = rc.constraint_name AND tc.table_schema = rc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
	`)
	if err != nil {
		return nil, fmt.Errorf("discover foreign keys: %w", err)
	}
	defer rows.Close()

	var out []pgForeignKey
	for rows.Next() {
		var fk pgForeignKey
		if err := rows.Scan(&fk.ConstraintName, &fk.ChildSchema, &fk.ChildTable, &fk.ChildColumn,
			&fk.ParentSchema, &fk.ParentTable, &fk.ParentColumn, &fk.Deferrable, &fk.InitiallyDeferred); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		childKey := pgKey(fk.ChildSchema, fk.ChildTable)
		parentKey := pgKey(fk.ParentSchema, fk.ParentTable)
		if keys[childKey] && keys[parentKey] {
			out = append(out, fk)
		}
	}
	return out, rows.Err()
}

// topologicalOrder ranks tables so parents apply before children, the
// pgserver analogue of oversync.SchemaDiscovery.topologicalSort. Tables are
// visited in name-sorted order; on a cycle the back edge is skipped, so the
// tables in the cycle keep that visiting order rather than failing the
// whole batch.
func (c *pgSchemaCache) topologicalOrder(ctx context.Context, keys []string) ([]string, error) {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	fks, err := c.foreignKeys(ctx, keySet)
	if err != nil {
		return nil, err
	}

	deps := make(map[string]map[string]bool, len(keys)) // child -> set of parents
	for _, k := range keys {
		deps[k] = map[string]bool{}
	}
	for _, fk := range fks {
		childKey := pgKey(fk.ChildSchema, fk.ChildTable)
		parentKey := pgKey(fk.ParentSchema, fk.ParentTable)
		if childKey == parentKey {
			continue
		}
		deps[childKey][parentKey] = true
	}

	var order []string
	visited := map[string]bool{}
	visiting := map[string]bool{}
	var visit func(k string) error
	visit = func(k string) error {
		if visited[k] {
			return nil
		}
		if visiting[k] {
			return nil // cycle: leave remaining order as-is
		}
		visiting[k] = true
		parents := make([]string, 0, len(deps[k]))
		for p := range deps[k] {
			parents = append(parents, p)
		}
		sort.Strings(parents)
		for _, p := range parents {
			if err := visit(p); err != nil {
				return err
			}
		}
		visiting[k] = false
		visited[k] = true
		order = append(order, k)
		return nil
	}

	sortedKeys := append([]string{}, keys...)
	sort.Strings(sortedKeys)
	for _, k := range sortedKeys {
		if err := visit(k); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// migrateDeferrable ensures every FK among the touched tables is
// DEFERRABLE INITIALLY DEFERRED, adapted from
// oversync.DeferrableFKManager.MigrateToDeferredInTx so a batch touching
// both a child row and its not-yet-committed parent can apply in one
// transaction (§ SUPPLEMENT 2).
func (c *pgSchemaCache) migrateDeferrable(ctx context.Context, tx pgx.Tx, keys []string) error {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	fks, err := c.foreignKeys(ctx, keySet)
	if err != nil {
		return err
	}
	for _, fk := range fks {
		if fk.Deferrable && fk.InitiallyDeferred {
			continue
		}
		stmt := fmt.Sprintf(
			`ALTER TABLE %q.%q ALTER CONSTRAINT %q DEFERRABLE INITIALLY DEFERRED`,
			fk.ChildSchema, fk.ChildTable, fk.ConstraintName,
		)
		if _, err := tx.Exec(ctx, stmt); err != nil {
			c.logger.Warn("could not make foreign key deferrable", "constraint", fk.ConstraintName, "error", err)
		}
	}
	if _, err := tx.Exec(ctx, "SET CONSTRAINTS ALL DEFERRED"); err != nil {
		return fmt.Errorf("defer constraints: %w", err)
	}
	return nil
}

func splitSchemaTable(table string) (schema, name string) {
	if i := strings.IndexByte(table, '.'); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "public", table
}
