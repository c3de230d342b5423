// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/mobiletoly/syncmw/localstore"
	"github.com/mobiletoly/syncmw/model"
)

// Pull implements §4.8's pull flow.
func (e *Engine) Pull(ctx context.Context) (model.PullResult, error) {
	if err := e.requireIdle(); err != nil {
		return model.PullResult{}, err
	}
	cfg := e.config()
	if len(cfg.Tables) == 0 {
		return model.PullResult{}, model.ValidationError("tables", []model.ValidationDetail{{Path: "tables", Message: "pull requires a non-empty tables list"}})
	}
	return e.pull(ctx, e.effectiveTables(ctx, cfg.Tables))
}

type downloadOutcome struct {
	table string
	rows  []*model.Row
	err   error
}

func (e *Engine) pull(ctx context.Context, tables []string) (model.PullResult, error) {
	// Step 2: download each table in parallel.
	outcomes := make([]downloadOutcome, len(tables))
	var wg sync.WaitGroup
	for i, table := range tables {
		wg.Add(1)
		go func(i int, table string) {
			defer wg.Done()
			rows, err := e.deps.Remote.Download(ctx, table, nil)
			outcomes[i] = downloadOutcome{table: table, rows: rows, err: err}
		}(i, table)
	}
	wg.Wait()

	var result model.PullResult
	// Step 3: sequentially per table, inside a scoped transaction, replace
	// contents. A transaction failure rolls back that table only.
	for _, o := range outcomes {
		if o.err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("download %s: %w", o.table, o.err))
			continue
		}
		result.Downloaded += len(o.rows)

		applied, err := e.applyDownloaded(ctx, o.table, o.rows)
		result.Applied += applied
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("apply %s: %w", o.table, err))
		}
	}
	if e.deps.Metrics != nil {
		if result.Downloaded > 0 {
			e.deps.Metrics.Downloaded.Add(float64(result.Downloaded))
		}
		if result.Applied > 0 {
			e.deps.Metrics.Applied.Add(float64(result.Applied))
		}
	}
	return result, nil
}

func (e *Engine) applyDownloaded(ctx context.Context, table string, rows []*model.Row) (int, error) {
	var applied int
	err := e.deps.Local.Transaction(ctx, func(ctx context.Context, tx localstore.Tx) error {
		applied = 0 // rolled back below on error, so only commit-time count matters
		if err := tx.Execute(ctx, fmt.Sprintf("DELETE FROM %s", table), nil); err != nil {
			return err
		}
		for _, row := range rows {
			cols := row.Columns()
			if len(cols) == 0 {
				continue
			}
			placeholders := make([]string, len(cols))
			params := make([]model.Value, len(cols))
			for i, col := range cols {
				placeholders[i] = fmt.Sprintf("$%d", i+1)
				v, _ := row.Get(col)
				params[i] = v
			}
			stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, joinCols(cols), joinCols(placeholders))
			if err := tx.Execute(ctx, stmt, params); err != nil {
				return err
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
