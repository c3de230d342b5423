// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Command syncdemo wires every package in this module into a runnable
// embedder: a SQLite-backed local store and change log, an HTTP remote
// store client, and a polling network monitor driving the Sync Engine's
// full-sync flow on a schedule.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mobiletoly/syncmw/changelog"
	"github.com/mobiletoly/syncmw/conflict"
	"github.com/mobiletoly/syncmw/engine"
	"github.com/mobiletoly/syncmw/internal/auth"
	"github.com/mobiletoly/syncmw/localstore"
	"github.com/mobiletoly/syncmw/model"
	"github.com/mobiletoly/syncmw/netmon"
	"github.com/mobiletoly/syncmw/remotestore"
)

func main() {
	configPath := flag.String("config", "syncdemo.yaml", "path to the syncdemo config file")
	seedTable := flag.String("seed-table", "", "if set, record one demo insert against this table on startup")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	fc, err := loadFileConfig(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	if err := run(fc, logger, *seedTable); err != nil {
		logger.Error("syncdemo exited with error", "error", err)
		os.Exit(1)
	}
}

func run(fc *fileConfig, logger *slog.Logger, seedTable string) error {
	db, err := sql.Open("sqlite3", fc.LocalDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	cl, err := changelog.OpenSQLite(db, logger)
	if err != nil {
		return err
	}
	tableCache := localstore.NewTableInfoCache()
	triggers := changelog.NewTriggers(db, tableCache)
	for _, table := range fc.Tables {
		if err := triggers.Install(context.Background(), table); err != nil {
			logger.Warn("install triggers", "table", table, "error", err)
		}
	}

	gateway := localstore.NewSQLGateway(db)
	remote := remotestore.NewHTTPClient(fc.RemoteBaseURL, 30*time.Second, fc.CompressionEnabled, fc.CompressionThresholdBytes)
	prober := netmon.HTTPProber(fc.RemoteBaseURL, false)
	monitor := netmon.NewPollingMonitor(prober, 15*time.Second, logger)
	defer monitor.Close()

	metrics := engine.NewMetrics(prometheus.DefaultRegisterer)

	e := engine.New(engine.Deps{
		ChangeLog: cl,
		Local:     gateway,
		Remote:    remote,
		Detector:  conflict.NewDetector(),
		Resolver:  conflict.NewResolver(conflict.PreferNonNullMerge),
		Monitor:   monitor,
		Logger:    logger,
		Metrics:   metrics,
		SourceID:  hostSourceID(),
	})

	cfg := fc.toSyncConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := e.Initialize(ctx, cfg); err != nil {
		return err
	}

	if seedTable != "" {
		row := model.NewRow().Set("id", model.Text(hostSourceID()+"-seed")).Set("seeded_at", model.Instant(time.Now()))
		if _, err := recordWithIdentity(ctx, e, seedTable, row); err != nil {
			logger.Warn("seed demo change", "table", seedTable, "error", err)
		}
	}

	go func() {
		for state := range e.States() {
			logger.Info("sync state", "phase", state.Phase, "progress", state.Progress)
		}
	}()

	e.StartAutoSync(ctx)
	logger.Info("syncdemo running", "tables", fc.Tables, "interval_ms", cfg.SyncIntervalMS)

	<-ctx.Done()
	e.StopAutoSync()
	logger.Info("syncdemo shutting down")
	return nil
}

// recordWithIdentity is the pattern an embedder's own request handler
// follows: pull the caller's identity out of the request context (the way
// a JWT-authenticated HTTP middleware would have populated it via
// auth.WithIdentity) before calling RecordChange.
func recordWithIdentity(ctx context.Context, e *engine.Engine, table string, row *model.Row) (*model.Change, error) {
	if _, ok := auth.SourceID(ctx); !ok {
		ctx = auth.WithIdentity(ctx, "demo-user", hostSourceID())
	}
	return e.RecordChange(ctx, table, model.OpInsert, row, nil)
}

func hostSourceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "syncdemo"
	}
	return host
}
