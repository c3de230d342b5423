// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package conflict implements the Conflict Detector and Resolver contracts
// (C5, C6, §4.4–4.5).
package conflict

import (
	"github.com/mobiletoly/syncmw/model"
)

const metaPrefix = "_sync_"

// TimestampTolerance, when non-zero, treats two rows carrying a
// "_sync_timestamp" column as equal if their difference is smaller than it,
// per §4.4 step 2's optional tolerance.
type Detector struct {
	TimestampTolerance int64
}

func NewDetector() *Detector {
	return &Detector{}
}

type keyedChange struct {
	change model.Change
	seq    int
}

// Detect implements §4.4's algorithm: index each side by (table, key),
// keeping the latest change per key, then compare survivors across sides.
func (d *Detector) Detect(local, remote []model.Change) []model.Conflict {
	localIdx := indexLatest(local)
	remoteIdx := indexLatest(remote)

	var conflicts []model.Conflict
	seen := make(map[string]bool)

	for key, lc := range localIdx {
		seen[key] = true
		rc, ok := remoteIdx[key]
		if !ok {
			continue
		}
		if c, isConflict := d.compare(lc.change, rc.change); isConflict {
			conflicts = append(conflicts, c)
		}
	}
	// Any remote-only keys were already skipped above (no local counterpart
	// means no conflict, only a pending pull).
	_ = seen

	return conflicts
}

// compare implements steps 2 and 3 of §4.4: a value-divergence conflict
// when both sides changed the same key differently, or an update-vs-delete
// conflict when one side deleted a key the other updated.
func (d *Detector) compare(local, remote model.Change) (model.Conflict, bool) {
	table := local.Table

	if local.Op == model.OpDelete && remote.Op != model.OpDelete {
		return model.Conflict{
			Table: table, Key: model.ProjectKey(nonNilRow(local.OldData, local.Data)),
			LocalValue: model.NewRow(), RemoteValue: remote.Data,
			LocalTS: local.Timestamp, RemoteTS: remote.Timestamp,
			Kind: model.ConflictUpdateVsDelete,
		}, true
	}
	if remote.Op == model.OpDelete && local.Op != model.OpDelete {
		return model.Conflict{
			Table: table, Key: model.ProjectKey(nonNilRow(remote.OldData, remote.Data)),
			LocalValue: local.Data, RemoteValue: model.NewRow(),
			LocalTS: local.Timestamp, RemoteTS: remote.Timestamp,
			Kind: model.ConflictUpdateVsDelete,
		}, true
	}
	if local.Op == model.OpDelete && remote.Op == model.OpDelete {
		return model.Conflict{}, false
	}

	if d.rowsEqual(local.Data, remote.Data) {
		return model.Conflict{}, false
	}

	return model.Conflict{
		Table: table, Key: model.ProjectKey(local.Data),
		LocalValue: local.Data, RemoteValue: remote.Data,
		LocalTS: local.Timestamp, RemoteTS: remote.Timestamp,
		Kind: model.ConflictValueDivergence,
	}, true
}

func (d *Detector) rowsEqual(a, b *model.Row) bool {
	if a.Equal(b, metaPrefix) {
		return true
	}
	if d.TimestampTolerance <= 0 {
		return false
	}
	av, aok := a.Get("_sync_timestamp")
	bv, bok := b.Get("_sync_timestamp")
	if !aok || !bok || av.Kind != model.KindInt || bv.Kind != model.KindInt {
		return false
	}
	diff := av.Int - bv.Int
	if diff < 0 {
		diff = -diff
	}
	return diff < d.TimestampTolerance
}

func nonNilRow(preferred, fallback *model.Row) *model.Row {
	if preferred != nil {
		return preferred
	}
	return fallback
}

// indexLatest implements §4.4 step 1: for each (table, key_projection(row))
// keep only the latest change, by timestamp, with insertion-order
// tie-break. Changes with no extractable key (an empty projection on a nil
// row) are ignored by detection but still pushed blindly, per step 4 — the
// caller's push path is unaffected by this function.
func indexLatest(changes []model.Change) map[string]keyedChange {
	idx := make(map[string]keyedChange)
	for i, c := range changes {
		row := c.Data
		if row == nil {
			row = c.OldData
		}
		if row == nil || row.Len() == 0 {
			continue
		}
		key := c.Table + "\x00" + model.ProjectKey(row)
		cur, ok := idx[key]
		if !ok || c.Timestamp > cur.change.Timestamp || (c.Timestamp == cur.change.Timestamp && i > cur.seq) {
			idx[key] = keyedChange{change: c, seq: i}
		}
	}
	return idx
}
