// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// ColumnInfo describes one column of a tracked table, discovered via
// PRAGMA table_info(...).
type ColumnInfo struct {
	Name         string
	DeclaredType string
	IsPrimaryKey bool
	NotNull      bool
}

// IsBlob reports whether the column's declared type names a BLOB, the same
// heuristic oversqlite.ColumnInfo.IsBlob uses.
func (c ColumnInfo) IsBlob() bool {
	return strings.Contains(strings.ToLower(c.DeclaredType), "blob")
}

// TableInfo is the cached shape of one table.
type TableInfo struct {
	Table      string
	Columns    []ColumnInfo
	PrimaryKey *ColumnInfo
}

// TableInfoCache discovers and caches table shapes for a single database
// handle. Unlike the teacher's globalTableInfoProvider (a package-level
// singleton shared across every *sql.DB in the process, a state-avoidance
// violation per §9's design notes), this cache is owned by whichever
// Gateway or trigger generator constructs it, so multiple local stores in
// the same process never share stale entries.
type TableInfoCache struct {
	mu    sync.RWMutex
	cache map[string]*TableInfo
}

func NewTableInfoCache() *TableInfoCache {
	return &TableInfoCache{cache: make(map[string]*TableInfo)}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Get returns the cached TableInfo for table, discovering it via
// PRAGMA table_info on first use.
func (c *TableInfoCache) Get(ctx context.Context, q queryer, table string) (*TableInfo, error) {
	key := strings.ToLower(table)

	c.mu.RLock()
	if info, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return info, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if info, ok := c.cache[key]; ok {
		return info, nil
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", key))
	if err != nil {
		return nil, fmt.Errorf("table info for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	var pk *ColumnInfo
	for rows.Next() {
		var cid, notNull, isPK int
		var name, declaredType string
		var defaultValue sql.NullString
		if err := rows.Scan(&cid, &name, &declaredType, &notNull, &defaultValue, &isPK); err != nil {
			return nil, fmt.Errorf("scan column info for %s: %w", table, err)
		}
		col := ColumnInfo{Name: name, DeclaredType: declaredType, NotNull: notNull == 1, IsPrimaryKey: isPK == 1}
		columns = append(columns, col)
		if col.IsPrimaryKey {
			pkCopy := col
			pk = &pkCopy
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	info := &TableInfo{Table: key, Columns: columns, PrimaryKey: pk}
	c.cache[key] = info
	return info, nil
}

// Invalidate drops one table's cached shape, or the whole cache when table
// is empty. Call this after DDL that changes a tracked table.
func (c *TableInfoCache) Invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if table == "" {
		c.cache = make(map[string]*TableInfo)
		return
	}
	delete(c.cache, strings.ToLower(table))
}
