// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"time"

	"github.com/mobiletoly/syncmw/model"
)

// Sync implements §4.8's full-sync flow.
func (e *Engine) Sync(ctx context.Context) (model.SyncResult, error) {
	if err := e.requireIdle(); err != nil {
		return model.SyncResult{}, err
	}
	e.setPhase(PhaseSyncing)
	start := nowMillis()
	e.emit(model.Syncing(10))

	result, err := e.sync(ctx, start)
	if err != nil {
		e.setPhase(PhaseError)
		syncErr, _ := err.(*model.Error)
		kind := model.ErrUnknown
		msg := err.Error()
		if syncErr != nil {
			kind = syncErr.Kind
		}
		e.emit(model.ErrorState(kind, msg))
		return result, err
	}

	if len(result.Conflicts) > 0 {
		e.setPhase(PhaseConflict)
		e.emit(model.ConflictState(result.Conflicts))
	} else {
		e.setPhase(PhaseIdle)
		e.emit(model.Idle(e.autoIsOn()))
	}
	return result, nil
}

func (e *Engine) sync(ctx context.Context, start int64) (model.SyncResult, error) {
	cfg := e.config()
	var result model.SyncResult

	// Step 2: gather local unsynced.
	unsynced, err := e.unsyncedChanges(ctx)
	if err != nil {
		return result, err
	}
	e.emit(model.Syncing(30))

	// Step 3: download each configured table in parallel, flat-mapped, to
	// feed detection. The real apply-to-local-store pull happens again at
	// step 6 so the just-pushed rows are reflected too. Tables are narrowed
	// through the Table Filter's name and metadata predicates once here so
	// a table excluded on row count/byte size/recency grounds is skipped
	// for both detection and the pull below.
	tables := e.effectiveTables(ctx, cfg.Tables)
	remoteChanges := e.downloadForDetection(ctx, tables)
	e.emit(model.Syncing(40))

	// Step 4: detect conflicts. The detector always receives the true
	// downloaded remote change set, never an empty slice, resolving the
	// engine's Open Question about starving detection on an empty pull.
	conflicts := e.deps.Detector.Detect(e.filterFor().FilterChanges(unsynced), remoteChanges)
	result.Conflicts = conflicts
	e.emit(model.Syncing(60))

	// Step 5: skip push if conflicts exist and policy is manual; otherwise push.
	if !(len(conflicts) > 0 && cfg.ConflictPolicy == model.PolicyManual) {
		pushResult, err := e.push(ctx)
		result.Pushed = pushResult
		if err != nil {
			result.Errors = append(result.Errors, err)
		}
	}
	e.emit(model.Syncing(80))

	// Step 6: pull.
	if len(tables) > 0 {
		pullResult, err := e.pull(ctx, tables)
		result.Pulled = pullResult
		if err != nil {
			result.Errors = append(result.Errors, err)
		}
	}
	e.emit(model.Syncing(100))

	duration := nowMillis() - start
	if duration < 1 {
		duration = 1
	}
	result.DurationMS = duration

	if e.deps.Metrics != nil {
		if len(result.Conflicts) > 0 {
			e.deps.Metrics.ConflictsTotal.Add(float64(len(result.Conflicts)))
		}
		e.deps.Metrics.SyncDuration.Observe(float64(duration) / 1000.0)
	}

	return result, nil
}

// downloadForDetection fetches each table's current remote rows purely to
// feed the Conflict Detector, wrapping each as a synthetic Change since the
// detector's contract works over Changes, not raw Rows. A row carrying
// push.go's "_sync_deleted" soft-delete marker becomes a synthetic Delete
// (OldData set, Data nil) so the detector's update-vs-delete branch
// (conflict/detector.go's compare) is actually reachable from a live remote
// tombstone rather than only from hand-built test Changes; everything else
// becomes a synthetic Update.
func (e *Engine) downloadForDetection(ctx context.Context, tables []string) []model.Change {
	var out []model.Change
	for _, table := range tables {
		rows, err := e.deps.Remote.Download(ctx, table, nil)
		if err != nil {
			continue
		}
		for _, row := range rows {
			ch := model.Change{Table: table, Timestamp: nowMillis()}
			if deleted, ok := row.Get("_sync_deleted"); ok && deleted.Kind == model.KindBool && deleted.Bool {
				ch.Op = model.OpDelete
				ch.OldData = row
			} else {
				ch.Op = model.OpUpdate
				ch.Data = row
			}
			out = append(out, ch)
		}
	}
	return out
}

// StartAutoSync starts the periodic scheduler (idempotent, §4.8). Before
// each tick it queries the Network Monitor; offline ticks emit Idle and
// are skipped.
func (e *Engine) StartAutoSync(ctx context.Context) {
	e.autoMu.Lock()
	if e.autoOn {
		e.autoMu.Unlock()
		return
	}
	e.autoOn = true
	e.autoStop = make(chan struct{})
	stop := e.autoStop
	e.autoMu.Unlock()

	cfg := e.config()
	interval := time.Duration(cfg.SyncIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !e.deps.Monitor.Current().Online {
					e.emit(model.Idle(true))
					continue
				}
				if e.currentPhase() != PhaseIdle {
					continue
				}
				result, err := e.Sync(ctx)
				if err != nil {
					continue
				}
				_ = result
			}
		}
	}()
}

// StopAutoSync stops further ticks (idempotent). It does not cancel an
// in-flight sync (§5 "Cancellation and timeouts").
func (e *Engine) StopAutoSync() {
	e.autoMu.Lock()
	defer e.autoMu.Unlock()
	if !e.autoOn {
		return
	}
	e.autoOn = false
	close(e.autoStop)
}
