// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/mobiletoly/syncmw/batch"
	"github.com/mobiletoly/syncmw/model"
)

// Push implements §4.8's push flow.
func (e *Engine) Push(ctx context.Context) (model.PushResult, error) {
	if err := e.requireIdle(); err != nil {
		return model.PushResult{}, err
	}
	return e.push(ctx)
}

type pushChunk struct {
	table string
	rows  []*model.Row
	ids   []string
}

func (e *Engine) push(ctx context.Context) (model.PushResult, error) {
	unsynced, err := e.unsyncedChanges(ctx)
	if err != nil {
		return model.PushResult{}, err
	}
	if len(unsynced) == 0 {
		return model.PushResult{Uploaded: 0}, nil
	}

	filtered := e.filterFor().FilterChanges(unsynced)
	groups := groupByTable(filtered)

	cfg := e.config()
	compressor := batch.NewCompressor(cfg.CompressionThresholdBytes)

	// Build one chunk per (table, batch_size) group so the batch layer's
	// concurrency knob fans out across chunks, not across whole tables
	// (§4.7's "process(items, processor, {batch_size, concurrency})").
	var chunks []pushChunk
	for table, changes := range groups {
		for i := 0; i < len(changes); i += cfg.BatchSize {
			end := i + cfg.BatchSize
			if end > len(changes) {
				end = len(changes)
			}
			group := changes[i:end]
			rows := make([]*model.Row, 0, len(group))
			ids := make([]string, 0, len(group))
			for _, c := range group {
				if c.Op == model.OpDelete {
					rows = append(rows, model.NewRow().Set("id", model.Text(model.ProjectKey(c.OldData))).Set("_sync_deleted", model.Bool(true)))
				} else {
					rows = append(rows, c.Data)
				}
				ids = append(ids, c.ID)
			}
			if cfg.CompressionEnabled {
				estimate := estimatePayloadSize(rows)
				if _, compressed, cerr := compressor.Encode(estimate); cerr == nil && compressed && e.deps.Metrics != nil {
					e.deps.Metrics.ObserveCompressedBatch(table, len(estimate))
				}
			}
			chunks = append(chunks, pushChunk{table: table, rows: rows, ids: ids})
		}
	}

	type chunkOutcome struct {
		ids []string
		err error
	}

	outcomes, procErr := batch.Process(ctx, chunks, batch.Options{BatchSize: 1, Concurrency: cfg.Concurrency}, func(ctx context.Context, c pushChunk) (chunkOutcome, error) {
		err := batch.RetryWithBackoff(ctx, e.retryOptions(), func(ctx context.Context, attempt int) error {
			uErr := e.deps.Remote.Upload(ctx, c.table, c.rows)
			if syncErr, ok := uErr.(*model.Error); ok {
				return syncErr.WithContext(c.table, 0, attempt)
			}
			return uErr
		})
		// Individual chunk failures are captured, not propagated, so
		// sibling chunks still get a chance to succeed (§4.8 step 7:
		// "partial failures... preserve the synced flag only for ids
		// whose enclosing batch succeeded").
		return chunkOutcome{ids: c.ids, err: err}, nil
	})
	if procErr != nil {
		return model.PushResult{}, procErr
	}

	var result model.PushResult
	var syncedIDs []string
	for _, o := range outcomes {
		if o.err != nil {
			result.Failed += len(o.ids)
			result.Errors = append(result.Errors, o.err)
			continue
		}
		result.Uploaded += len(o.ids)
		syncedIDs = append(syncedIDs, o.ids...)
	}
	if e.deps.Metrics != nil && result.Uploaded > 0 {
		e.deps.Metrics.Uploaded.Add(float64(result.Uploaded))
	}

	if len(syncedIDs) > 0 {
		if err := e.deps.ChangeLog.MarkSynced(ctx, syncedIDs); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}

	return result, nil
}

func estimatePayloadSize(rows []*model.Row) []byte {
	var out []byte
	for _, r := range rows {
		if raw, err := model.MarshalRowJSON(r); err == nil {
			out = append(out, raw...)
		}
	}
	return out
}
