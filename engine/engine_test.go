// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/mobiletoly/syncmw/changelog"
	"github.com/mobiletoly/syncmw/conflict"
	"github.com/mobiletoly/syncmw/localstore"
	"github.com/mobiletoly/syncmw/model"
	"github.com/mobiletoly/syncmw/netmon"
	"github.com/mobiletoly/syncmw/remotestore"
)

// fakeRemote is an in-memory remotestore.Client double for engine tests.
type fakeRemote struct {
	mu           sync.Mutex
	authenticated bool
	authErr      error
	tables       map[string][]*model.Row
	uploadErr    error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{tables: make(map[string][]*model.Row)}
}

func (f *fakeRemote) Authenticate(ctx context.Context, token string) error {
	if f.authErr != nil {
		return f.authErr
	}
	f.authenticated = true
	return nil
}

func (f *fakeRemote) ExecuteSQL(ctx context.Context, sql string) (*remotestore.ExecuteResult, error) {
	return &remotestore.ExecuteResult{}, nil
}

func (f *fakeRemote) Upload(ctx context.Context, table string, rows []*model.Row) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append(f.tables[table], rows...)
	return nil
}

func (f *fakeRemote) Download(ctx context.Context, table string, sinceTS *int64) ([]*model.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Row{}, f.tables[table]...), nil
}

// memoryGateway is a minimal in-memory localstore.Gateway double.
type memoryGateway struct {
	mu     sync.Mutex
	tables map[string][]*model.Row
}

func newMemoryGateway() *memoryGateway {
	return &memoryGateway{tables: make(map[string][]*model.Row)}
}

func (g *memoryGateway) Query(ctx context.Context, sql string, params []model.Value) ([]*model.Row, error) {
	return nil, nil
}

func (g *memoryGateway) Execute(ctx context.Context, sql string, params []model.Value) error {
	return nil
}

func (g *memoryGateway) Transaction(ctx context.Context, body func(ctx context.Context, tx localstore.Tx) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return body(ctx, &memoryTx{g: g})
}

type memoryTx struct{ g *memoryGateway }

func (t *memoryTx) Query(ctx context.Context, sql string, params []model.Value) ([]*model.Row, error) {
	return nil, nil
}

func (t *memoryTx) Execute(ctx context.Context, sql string, params []model.Value) error {
	return nil
}

func testEngine(t *testing.T, remote *fakeRemote) *Engine {
	t.Helper()
	e := New(Deps{
		ChangeLog: changelog.NewMemory(),
		Local:     newMemoryGateway(),
		Remote:    remote,
		Detector:  conflict.NewDetector(),
		Resolver:  conflict.NewResolver(nil),
		Monitor:   netmon.NewStaticMonitor(model.NetworkState{Online: true}),
		SourceID:  "device-1",
	})
	return e
}

func TestInitializeTransitionsToIdle(t *testing.T) {
	e := testEngine(t, newFakeRemote())
	cfg := model.DefaultSyncConfig()
	cfg.Credential = "test-token"
	if err := e.Initialize(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	if e.currentPhase() != PhaseIdle {
		t.Errorf("expected Idle, got %s", e.currentPhase())
	}
	select {
	case s := <-e.States():
		if s.Phase != model.PhaseIdle {
			t.Errorf("expected Idle state emitted, got %s", s.Phase)
		}
	default:
		t.Error("expected an Idle state on the channel")
	}
}

func TestPushRequiresIdle(t *testing.T) {
	e := testEngine(t, newFakeRemote())
	_, err := e.Push(context.Background())
	if err == nil {
		t.Error("expected push to fail before Initialize")
	}
}

func TestPushUploadsUnsyncedChanges(t *testing.T) {
	remote := newFakeRemote()
	e := testEngine(t, remote)
	cfg := model.DefaultSyncConfig()
	cfg.Credential = "test-token"
	if err := e.Initialize(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}

	row := model.NewRow().Set("id", model.Text("1")).Set("name", model.Text("alice"))
	if _, err := e.RecordChange(context.Background(), "users", model.OpInsert, row, nil); err != nil {
		t.Fatal(err)
	}

	result, err := e.Push(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Uploaded != 1 {
		t.Errorf("expected 1 uploaded, got %d", result.Uploaded)
	}
	if len(remote.tables["users"]) != 1 {
		t.Errorf("expected remote to receive 1 row, got %d", len(remote.tables["users"]))
	}
}

func TestPushWithNoUnsyncedIsNoop(t *testing.T) {
	e := testEngine(t, newFakeRemote())
	cfg := model.DefaultSyncConfig()
	cfg.Credential = "test-token"
	if err := e.Initialize(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	result, err := e.Push(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Uploaded != 0 {
		t.Errorf("expected 0 uploaded, got %d", result.Uploaded)
	}
}

func TestPullRequiresNonEmptyTables(t *testing.T) {
	e := testEngine(t, newFakeRemote())
	cfg := model.DefaultSyncConfig()
	cfg.Credential = "test-token"
	if err := e.Initialize(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	_, err := e.Pull(context.Background())
	if err == nil {
		t.Error("expected pull to fail with empty tables list")
	}
}

// partialDecodeChangeLog is a changelog.ChangeLog double whose Unsynced
// simulates a scan that decoded some rows fine and one that failed,
// returning both the partial slice and a Validation error the way
// changelog.SQLite.Unsynced now does.
type partialDecodeChangeLog struct {
	changes []model.Change
}

func (c *partialDecodeChangeLog) Record(ctx context.Context, d changelog.Descriptor) (*model.Change, error) {
	return nil, nil
}

func (c *partialDecodeChangeLog) Unsynced(ctx context.Context, sinceTS int64) ([]model.Change, error) {
	return c.changes, model.ValidationError("data", []model.ValidationDetail{{Path: "data", Message: "one row failed to decode"}})
}

func (c *partialDecodeChangeLog) MarkSynced(ctx context.Context, ids []string) error { return nil }
func (c *partialDecodeChangeLog) ClearBefore(ctx context.Context, ts int64) error    { return nil }

func TestPushContinuesOnPartialDecodeFailure(t *testing.T) {
	remote := newFakeRemote()
	row := model.NewRow().Set("id", model.Text("1")).Set("name", model.Text("alice"))
	cl := &partialDecodeChangeLog{changes: []model.Change{{ID: "c1", Table: "users", Op: model.OpInsert, Data: row}}}

	e := New(Deps{
		ChangeLog: cl,
		Local:     newMemoryGateway(),
		Remote:    remote,
		Detector:  conflict.NewDetector(),
		Resolver:  conflict.NewResolver(nil),
		Monitor:   netmon.NewStaticMonitor(model.NetworkState{Online: true}),
		SourceID:  "device-1",
	})
	cfg := model.DefaultSyncConfig()
	cfg.Credential = "test-token"
	if err := e.Initialize(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}

	result, err := e.Push(context.Background())
	if err != nil {
		t.Fatalf("expected a partial decode failure to be non-fatal, got %v", err)
	}
	if result.Uploaded != 1 {
		t.Errorf("expected the successfully decoded row to still be pushed, got %d", result.Uploaded)
	}
}

// metadataGateway pairs memoryGateway with a MetadataProvider so tests can
// exercise Engine.effectiveTables' metadata-predicate branch.
type metadataGateway struct {
	*memoryGateway
	meta map[string]model.TableMetadata
}

func (g *metadataGateway) TableMetadata(ctx context.Context, table string) (model.TableMetadata, error) {
	return g.meta[table], nil
}

func TestEffectiveTablesAppliesMetadataPredicate(t *testing.T) {
	gw := &metadataGateway{
		memoryGateway: newMemoryGateway(),
		meta: map[string]model.TableMetadata{
			"users":  {RowCount: 5},
			"events": {RowCount: 5000},
		},
	}
	e := New(Deps{
		ChangeLog: changelog.NewMemory(),
		Local:     gw,
		Remote:    newFakeRemote(),
		Detector:  conflict.NewDetector(),
		Resolver:  conflict.NewResolver(nil),
		Monitor:   netmon.NewStaticMonitor(model.NetworkState{Online: true}),
		SourceID:  "device-1",
	})
	cfg := model.DefaultSyncConfig()
	cfg.Credential = "test-token"
	cfg.TableFilter.MaxRowCount = 100
	if err := e.Initialize(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}

	got := e.effectiveTables(context.Background(), []string{"users", "events"})
	if len(got) != 1 || got[0] != "users" {
		t.Errorf("expected only users to survive the row-count ceiling, got %v", got)
	}
}

func TestAutoSyncStartStopIdempotent(t *testing.T) {
	e := testEngine(t, newFakeRemote())
	cfg := model.DefaultSyncConfig()
	cfg.Credential = "test-token"
	if err := e.Initialize(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.StartAutoSync(ctx)
	e.StartAutoSync(ctx) // idempotent, must not panic or double-start
	e.StopAutoSync()
	e.StopAutoSync() // idempotent
}
