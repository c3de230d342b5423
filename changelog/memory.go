// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package changelog

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mobiletoly/syncmw/model"
)

// Memory is an in-process ChangeLog, serialized the same way
// oversqlite.Client serializes writes with writeMu: a single mutex guards
// every mutation so Record/MarkSynced/ClearBefore never interleave.
type Memory struct {
	mu       sync.Mutex
	rows     []model.Change
	byID     map[string]int // id -> index into rows
	lastTS   map[string]int64 // per-producer last-assigned timestamp
	seq      int64            // insertion-order tie-break counter
	seqByRow map[string]int64
}

// NewMemory returns an empty Memory change log.
func NewMemory() *Memory {
	return &Memory{
		byID:     make(map[string]int),
		lastTS:   make(map[string]int64),
		seqByRow: make(map[string]int64),
	}
}

func (m *Memory) Record(_ context.Context, d Descriptor) (*model.Change, error) {
	if d.Table == "" {
		return nil, model.ValidationError("table", []model.ValidationDetail{{Path: "table", Message: "table must not be empty"}})
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := model.NowMillis()
	if last, ok := m.lastTS[d.SourceID]; ok && ts < last {
		ts = last // non-decreasing per producer (§3 invariant)
	}
	m.lastTS[d.SourceID] = ts

	id := uuid.NewString()
	ch := model.Change{
		ID:             id,
		Table:          d.Table,
		Op:             d.Op,
		Timestamp:      ts,
		Data:           d.Data,
		OldData:        d.OldData,
		Synced:         false,
		SourceID:       d.SourceID,
		SourceChangeID: d.SourceChangeID,
	}
	m.rows = append(m.rows, ch)
	m.byID[id] = len(m.rows) - 1
	m.seq++
	m.seqByRow[id] = m.seq

	out := ch
	return &out, nil
}

func (m *Memory) Unsynced(_ context.Context, sinceTS int64) ([]model.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Change
	for _, ch := range m.rows {
		if !ch.Synced && ch.Timestamp > sinceTS {
			out = append(out, ch)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return m.seqByRow[out[i].ID] < m.seqByRow[out[j].ID]
	})
	return out, nil
}

func (m *Memory) MarkSynced(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if idx, ok := m.byID[id]; ok {
			m.rows[idx].Synced = true
		}
	}
	return nil
}

func (m *Memory) ClearBefore(_ context.Context, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.rows[:0:0]
	newByID := make(map[string]int, len(m.byID))
	for _, ch := range m.rows {
		if ch.Synced && ch.Timestamp < ts {
			delete(m.seqByRow, ch.ID)
			continue
		}
		newByID[ch.ID] = len(kept)
		kept = append(kept, ch)
	}
	m.rows = kept
	m.byID = newByID
	return nil
}

var _ ChangeLog = (*Memory)(nil)
