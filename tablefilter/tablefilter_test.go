// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package tablefilter

import (
	"testing"
	"time"

	"github.com/mobiletoly/syncmw/model"
)

func TestAcceptDefaultsToAllWhenNoIncludes(t *testing.T) {
	f, err := New(model.TableFilterConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if !f.Accept("anything") {
		t.Error("expected accept with no include/exclude configured")
	}
}

func TestExcludeWinsOverInclude(t *testing.T) {
	f, err := New(model.TableFilterConfig{Include: []string{"users"}, Exclude: []string{"users"}})
	if err != nil {
		t.Fatal(err)
	}
	if f.Accept("users") {
		t.Error("explicit exclude must win over explicit include")
	}
}

func TestExcludePatternWinsOverInclude(t *testing.T) {
	f, err := New(model.TableFilterConfig{Include: []string{"users_temp"}, ExcludePatterns: []string{"^users_"}})
	if err != nil {
		t.Fatal(err)
	}
	if f.Accept("users_temp") {
		t.Error("exclude pattern must win over explicit include")
	}
}

func TestIncludeListRejectsUnlisted(t *testing.T) {
	f, err := New(model.TableFilterConfig{Include: []string{"users"}})
	if err != nil {
		t.Fatal(err)
	}
	if f.Accept("posts") {
		t.Error("non-empty include list should reject unlisted tables")
	}
	if !f.Accept("users") {
		t.Error("expected users to be accepted")
	}
}

func TestIncludePattern(t *testing.T) {
	f, err := New(model.TableFilterConfig{IncludePatterns: []string{"^app_"}})
	if err != nil {
		t.Fatal(err)
	}
	if !f.Accept("app_users") {
		t.Error("expected app_users to match include pattern")
	}
	if f.Accept("other") {
		t.Error("expected other to be rejected")
	}
}

func TestFilterChanges(t *testing.T) {
	f, err := New(model.TableFilterConfig{Exclude: []string{"secrets"}})
	if err != nil {
		t.Fatal(err)
	}
	changes := []model.Change{{Table: "users"}, {Table: "secrets"}}
	out := f.FilterChanges(changes)
	if len(out) != 1 || out[0].Table != "users" {
		t.Errorf("expected only users to survive, got %+v", out)
	}
}

func TestInvalidPatternErrors(t *testing.T) {
	_, err := New(model.TableFilterConfig{IncludePatterns: []string{"("}})
	if err == nil {
		t.Error("expected error for invalid regex")
	}
}

func TestAcceptMetadataRejectsOverRowCount(t *testing.T) {
	f, err := New(model.TableFilterConfig{MaxRowCount: 100})
	if err != nil {
		t.Fatal(err)
	}
	if f.AcceptMetadata(model.TableMetadata{RowCount: 101}) {
		t.Error("expected row count over ceiling to be rejected")
	}
	if !f.AcceptMetadata(model.TableMetadata{RowCount: 100}) {
		t.Error("expected row count at ceiling to be accepted")
	}
}

func TestAcceptMetadataRejectsOverByteSize(t *testing.T) {
	f, err := New(model.TableFilterConfig{MaxByteSizeBytes: 1024})
	if err != nil {
		t.Fatal(err)
	}
	if f.AcceptMetadata(model.TableMetadata{ByteSize: 2048}) {
		t.Error("expected byte size over ceiling to be rejected")
	}
}

func TestAcceptMetadataRejectsStaleTable(t *testing.T) {
	f, err := New(model.TableFilterConfig{MaxAge: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if f.AcceptMetadata(model.TableMetadata{LastModified: time.Now().Add(-2 * time.Hour)}) {
		t.Error("expected table older than MaxAge to be rejected")
	}
	if !f.AcceptMetadata(model.TableMetadata{LastModified: time.Now()}) {
		t.Error("expected recently modified table to be accepted")
	}
}

func TestAcceptMetadataNoThresholdsAlwaysAccepts(t *testing.T) {
	f, err := New(model.TableFilterConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if !f.AcceptMetadata(model.TableMetadata{RowCount: 1 << 30, ByteSize: 1 << 40}) {
		t.Error("expected no configured thresholds to never reject")
	}
}

func TestEvaluateSkipsMetadataWhenUnconfigured(t *testing.T) {
	f, err := New(model.TableFilterConfig{Exclude: []string{"secrets"}})
	if err != nil {
		t.Fatal(err)
	}
	if !f.Evaluate("users", nil) {
		t.Error("expected nil metadata to be fine when no predicates are configured")
	}
	if f.Evaluate("secrets", nil) {
		t.Error("name-based exclude should still apply")
	}
}

func TestEvaluateCombinesNameAndMetadataRules(t *testing.T) {
	f, err := New(model.TableFilterConfig{Exclude: []string{"secrets"}, MaxRowCount: 10})
	if err != nil {
		t.Fatal(err)
	}
	big := model.TableMetadata{RowCount: 1000}
	if f.Evaluate("users", &big) {
		t.Error("expected metadata predicate to reject an oversized table")
	}
	if f.Evaluate("secrets", &model.TableMetadata{RowCount: 1}) {
		t.Error("expected name-based exclude to reject regardless of metadata")
	}
	small := model.TableMetadata{RowCount: 1}
	if !f.Evaluate("users", &small) {
		t.Error("expected a small table to pass both rule sets")
	}
}
