// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package tablefilter implements the Table Filter contract (C7, §4.6): an
// accept function over table names, plus a Change-sequence variant.
package tablefilter

import (
	"regexp"
	"time"

	"github.com/mobiletoly/syncmw/model"
)

// Filter decides whether a table participates in sync, applying §4.6's
// precedence: explicit excludes > exclude patterns > (empty includes:
// accept) > explicit includes > include patterns > reject. Once a table
// clears that name-based precedence, Evaluate additionally applies the
// metadata-based predicates (row count, byte size, recency) of §4.6 when
// the caller supplies a TableMetadata snapshot.
type Filter struct {
	include         map[string]bool
	exclude         map[string]bool
	includePatterns []*regexp.Regexp
	excludePatterns []*regexp.Regexp
	hasIncludes     bool

	maxRowCount int64
	maxByteSize int64
	maxAge      time.Duration
}

// New compiles cfg into a Filter. Malformed patterns are returned as a
// Validation error rather than panicking at match time.
func New(cfg model.TableFilterConfig) (*Filter, error) {
	f := &Filter{
		include:     toSet(cfg.Include),
		exclude:     toSet(cfg.Exclude),
		maxRowCount: cfg.MaxRowCount,
		maxByteSize: cfg.MaxByteSizeBytes,
		maxAge:      cfg.MaxAge,
	}
	f.hasIncludes = len(cfg.Include) > 0 || len(cfg.IncludePatterns) > 0

	for _, p := range cfg.IncludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, model.ValidationError("table_filter.include_patterns", []model.ValidationDetail{{Path: p, Message: err.Error()}})
		}
		f.includePatterns = append(f.includePatterns, re)
	}
	for _, p := range cfg.ExcludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, model.ValidationError("table_filter.exclude_patterns", []model.ValidationDetail{{Path: p, Message: err.Error()}})
		}
		f.excludePatterns = append(f.excludePatterns, re)
	}
	return f, nil
}

func toSet(list []string) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, s := range list {
		out[s] = true
	}
	return out
}

// Accept implements §4.6's precedence rule for a single table name.
func (f *Filter) Accept(table string) bool {
	if f.exclude[table] {
		return false
	}
	for _, re := range f.excludePatterns {
		if re.MatchString(table) {
			return false
		}
	}
	if !f.hasIncludes {
		return true
	}
	if f.include[table] {
		return true
	}
	for _, re := range f.includePatterns {
		if re.MatchString(table) {
			return true
		}
	}
	return false
}

// FilterChanges removes from changes any element whose table is rejected,
// the Change-sequence variant §4.6 describes.
func (f *Filter) FilterChanges(changes []model.Change) []model.Change {
	out := make([]model.Change, 0, len(changes))
	for _, c := range changes {
		if f.Accept(c.Table) {
			out = append(out, c)
		}
	}
	return out
}

// hasMetadataPredicates reports whether any of the row-count/byte-size/
// recency thresholds are configured; without one, Evaluate never needs a
// TableMetadata snapshot and callers can skip collecting it.
func (f *Filter) hasMetadataPredicates() bool {
	return f.maxRowCount > 0 || f.maxByteSize > 0 || f.maxAge > 0
}

// AcceptMetadata applies §4.6's metadata-based predicates on top of the
// name-based rules already checked by Accept: a table whose row count or
// byte size exceeds its configured ceiling, or whose LastModified is older
// than MaxAge, is rejected regardless of how the include/exclude rules
// would have decided it. An unset threshold (zero) never rejects.
func (f *Filter) AcceptMetadata(meta model.TableMetadata) bool {
	if f.maxRowCount > 0 && meta.RowCount > f.maxRowCount {
		return false
	}
	if f.maxByteSize > 0 && meta.ByteSize > f.maxByteSize {
		return false
	}
	if f.maxAge > 0 && !meta.LastModified.IsZero() && time.Since(meta.LastModified) > f.maxAge {
		return false
	}
	return true
}

// Evaluate combines Accept with AcceptMetadata: meta is only consulted (and
// may be nil) when metadata predicates are actually configured, so tables
// are never rejected for a snapshot the embedder never collected.
func (f *Filter) Evaluate(table string, meta *model.TableMetadata) bool {
	if !f.Accept(table) {
		return false
	}
	if !f.hasMetadataPredicates() || meta == nil {
		return true
	}
	return f.AcceptMetadata(*meta)
}
