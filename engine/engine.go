// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package engine implements the Sync Engine (C9, §4.8): the orchestrator
// wiring the Change Log, Local Store Gateway, Remote Store Client,
// Conflict Detector/Resolver, Table Filter, Batch layer, and Network
// Monitor into the push/pull/full-sync state machine.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mobiletoly/syncmw/batch"
	"github.com/mobiletoly/syncmw/changelog"
	"github.com/mobiletoly/syncmw/conflict"
	"github.com/mobiletoly/syncmw/localstore"
	"github.com/mobiletoly/syncmw/model"
	"github.com/mobiletoly/syncmw/netmon"
	"github.com/mobiletoly/syncmw/remotestore"
	"github.com/mobiletoly/syncmw/tablefilter"
)

// Phase tracks the engine's own state machine independent of the SyncState
// values emitted on States(): Uninitialized -> Idle -> Syncing ->
// (Idle | Conflict | Error).
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseIdle          Phase = "idle"
	PhaseSyncing       Phase = "syncing"
	PhaseConflict      Phase = "conflict"
	PhaseError         Phase = "error"
)

// Deps bundles the components the engine drives. All fields are required
// except Logger (nil falls back to slog.Default()), Metrics and SourceID.
type Deps struct {
	ChangeLog changelog.ChangeLog
	Local     localstore.Gateway
	Remote    remotestore.Client
	Detector  *conflict.Detector
	Resolver  *conflict.Resolver
	Monitor   netmon.Monitor
	Logger    *slog.Logger
	Metrics   *Metrics

	// SourceID identifies this device/session's changes in the log.
	SourceID string
}

// Engine implements §4.8's state machine and §6's embedding API.
type Engine struct {
	deps   Deps
	logger *slog.Logger

	mu     sync.Mutex
	phase  Phase
	cfg    model.SyncConfig
	filter *tablefilter.Filter

	states chan model.SyncState

	autoMu   sync.Mutex
	autoStop chan struct{}
	autoOn   bool
}

// New constructs an Engine in the Uninitialized phase.
func New(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		deps:   deps,
		logger: logger,
		phase:  PhaseUninitialized,
		states: make(chan model.SyncState, 16),
	}
}

func (e *Engine) emit(s model.SyncState) {
	select {
	case e.states <- s:
	default:
		// A slow consumer must not block the engine driver; drop the
		// oldest queued state to make room rather than stall a sync.
		select {
		case <-e.states:
		default:
		}
		e.states <- s
	}
}

// States returns the ordered stream of SyncState values (§5). The channel
// buffers 16 states; when it is full, emit drops the oldest queued state,
// so a consumer that falls behind misses intermediate states.
func (e *Engine) States() <-chan model.SyncState {
	return e.states
}

func (e *Engine) currentPhase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

// Initialize authenticates via the Remote Store Client and, on success,
// stores cfg and transitions Uninitialized -> Idle. Auth errors are
// surfaced verbatim (§4.8) so callers can trigger token refresh.
func (e *Engine) Initialize(ctx context.Context, cfg model.SyncConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cred, err := cfg.ResolveCredential()
	if err != nil {
		return err
	}
	if err := e.deps.Remote.Authenticate(ctx, cred); err != nil {
		return err
	}

	filter, err := tablefilter.New(cfg.TableFilter)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.cfg = cfg
	e.filter = filter
	e.phase = PhaseIdle
	e.mu.Unlock()

	e.emit(model.Idle(e.autoIsOn()))
	return nil
}

func (e *Engine) autoIsOn() bool {
	e.autoMu.Lock()
	defer e.autoMu.Unlock()
	return e.autoOn
}

func (e *Engine) requireIdle() error {
	if e.currentPhase() != PhaseIdle {
		return model.ValidationError("state", []model.ValidationDetail{{Path: "state", Message: "operation requires Idle phase"}})
	}
	return nil
}

// RecordChange delegates to the Change Log, stamping SourceID from Deps.
func (e *Engine) RecordChange(ctx context.Context, table string, op model.Operation, data, oldData *model.Row) (*model.Change, error) {
	return e.deps.ChangeLog.Record(ctx, changelog.Descriptor{
		Table: table, Op: op, Data: data, OldData: oldData, SourceID: e.deps.SourceID,
	})
}

// unsyncedChanges wraps ChangeLog.Unsynced so a decode failure on a subset
// of rows (a Validation error returned alongside the successfully decoded
// slice, per §4.1) doesn't abort push/sync outright: it's logged once and
// the caller proceeds with whatever did decode. A Storage or other error
// still aborts, since those carry no partial slice to fall back on.
func (e *Engine) unsyncedChanges(ctx context.Context) ([]model.Change, error) {
	unsynced, err := e.deps.ChangeLog.Unsynced(ctx, 0)
	if err == nil {
		return unsynced, nil
	}
	if syncErr, ok := err.(*model.Error); ok && syncErr.Kind == model.ErrValidation && unsynced != nil {
		e.logger.Warn("continuing with partially decoded change log", "error", syncErr)
		return unsynced, nil
	}
	return nil, err
}

func (e *Engine) retryOptions() batch.RetryOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return batch.RetryOptions{
		MaxAttempts:  e.cfg.MaxRetries,
		InitialDelay: e.cfg.InitialRetryDelay,
		MaxDelay:     e.cfg.MaxRetryDelay,
		Factor:       e.cfg.BackoffFactor,
	}
}

func (e *Engine) batchOptions() batch.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return batch.Options{BatchSize: e.cfg.BatchSize, Concurrency: e.cfg.Concurrency}
}

func (e *Engine) config() model.SyncConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) filterFor() *tablefilter.Filter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

// effectiveTables narrows tables to those the configured Table Filter
// accepts by name and, when Local exposes table metadata, by the
// row-count/byte-size/recency predicates of §4.6. A table dropped by a
// metadata predicate is logged so an embedder can see why it stopped
// syncing without changing its own Tables config.
func (e *Engine) effectiveTables(ctx context.Context, tables []string) []string {
	filter := e.filterFor()
	provider, ok := e.deps.Local.(localstore.MetadataProvider)
	out := make([]string, 0, len(tables))
	for _, table := range tables {
		if !filter.Accept(table) {
			continue
		}
		if !ok {
			out = append(out, table)
			continue
		}
		meta, err := provider.TableMetadata(ctx, table)
		if err != nil {
			e.logger.Warn("table metadata unavailable, syncing table unconditionally", "table", table, "error", err)
			out = append(out, table)
			continue
		}
		if filter.Evaluate(table, &meta) {
			out = append(out, table)
		} else {
			e.logger.Info("table excluded by metadata predicate", "table", table, "row_count", meta.RowCount, "byte_size", meta.ByteSize)
		}
	}
	return out
}

func groupByTable(changes []model.Change) map[string][]model.Change {
	out := make(map[string][]model.Change)
	for _, c := range changes {
		out[c.Table] = append(out[c.Table], c)
	}
	return out
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("%d errors, first: %w", len(errs), errs[0])
}
