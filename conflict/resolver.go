// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package conflict

import (
	"fmt"

	"github.com/mobiletoly/syncmw/model"
)

// MergeFunc implements the merge{fn} policy of §4.5: given the conflicting
// local and remote rows it returns the merged row, or an error to fail
// resolution of that one conflict.
type MergeFunc func(local, remote *model.Row) (*model.Row, error)

// Resolver applies §4.5's policy table to a single Conflict at a time.
type Resolver struct {
	Merge MergeFunc
}

func NewResolver(merge MergeFunc) *Resolver {
	return &Resolver{Merge: merge}
}

// Resolve returns the chosen Row for one conflict under policy. A manual
// policy always fails with model.ErrRequiresManual so the engine can
// surface it without applying anything (§4.5's "fails with RequiresManual").
func (r *Resolver) Resolve(c model.Conflict, policy model.ConflictPolicy) (*model.Row, error) {
	switch policy {
	case model.PolicyLocalWins:
		return c.LocalValue, nil
	case model.PolicyRemoteWins:
		return c.RemoteValue, nil
	case model.PolicyLatestWins:
		if c.LocalTS > c.RemoteTS {
			return c.LocalValue, nil
		}
		return c.RemoteValue, nil
	case model.PolicyMerge:
		if r.Merge == nil {
			return nil, model.ValidationError("policy", []model.ValidationDetail{{Path: "policy", Message: "merge policy requires a MergeFunc"}})
		}
		return r.Merge(c.LocalValue, c.RemoteValue)
	case model.PolicyManual:
		return nil, model.ErrRequiresManual
	default:
		return nil, model.ValidationError("policy", []model.ValidationDetail{{Path: "policy", Message: fmt.Sprintf("unknown conflict policy %q", policy)}})
	}
}

// ResolveAll resolves every conflict in list under policy. A single
// resolver failure fails the whole batch and is surfaced immediately,
// per §4.5 ("A resolver failure for any single conflict fails the batch
// resolution").
func (r *Resolver) ResolveAll(list []model.Conflict, policy model.ConflictPolicy) ([]*model.Row, error) {
	out := make([]*model.Row, 0, len(list))
	for _, c := range list {
		row, err := r.Resolve(c, policy)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// PreferNonNullMerge is a built-in merge strategy (§4.5): for each column
// present on either side, prefer the non-null value; when both are
// non-null, remote wins ties.
func PreferNonNullMerge(local, remote *model.Row) (*model.Row, error) {
	out := model.NewRow()
	seen := make(map[string]bool)
	for _, col := range remote.Columns() {
		seen[col] = true
		rv, _ := remote.Get(col)
		lv, hasLocal := local.Get(col)
		if rv.IsNull() && hasLocal && !lv.IsNull() {
			out.Set(col, lv)
			continue
		}
		out.Set(col, rv)
	}
	for _, col := range local.Columns() {
		if seen[col] {
			continue
		}
		v, _ := local.Get(col)
		out.Set(col, v)
	}
	return out, nil
}

// SetUnionMerge is a built-in merge strategy (§4.5) for array-valued
// (comma-joined text) columns: columns present as text on both sides are
// merged as the union of their comma-separated elements; any other column
// falls back to PreferNonNullMerge's rule.
func SetUnionMerge(local, remote *model.Row) (*model.Row, error) {
	out, err := PreferNonNullMerge(local, remote)
	if err != nil {
		return nil, err
	}
	for _, col := range remote.Columns() {
		rv, _ := remote.Get(col)
		lv, hasLocal := local.Get(col)
		if !hasLocal || rv.Kind != model.KindText || lv.Kind != model.KindText {
			continue
		}
		union := unionCSV(lv.Text, rv.Text)
		out.Set(col, model.Text(union))
	}
	return out, nil
}

func unionCSV(a, b string) string {
	seen := make(map[string]bool)
	var order []string
	add := func(csv string) {
		start := 0
		for i := 0; i <= len(csv); i++ {
			if i == len(csv) || csv[i] == ',' {
				if i > start {
					item := csv[start:i]
					if !seen[item] {
						seen[item] = true
						order = append(order, item)
					}
				}
				start = i + 1
			}
		}
	}
	add(a)
	add(b)
	out := ""
	for i, v := range order {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out
}
