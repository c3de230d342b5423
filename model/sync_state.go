// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package model

// SyncPhase enumerates the arms of the SyncState sum type (§3):
// Idle, Syncing{progress}, Error{kind,message}, Conflict{list}.
type SyncPhase string

const (
	PhaseIdle     SyncPhase = "idle"
	PhaseSyncing  SyncPhase = "syncing"
	PhaseError    SyncPhase = "error"
	PhaseConflict SyncPhase = "conflict"
)

// SyncState is emitted by the engine as an ordered stream (§5); when the
// engine's buffer is full the oldest queued state is dropped (see
// Engine.States). Only the fields relevant to Phase are meaningful; treat this
// as an exhaustive-match sum type via a switch on Phase.
type SyncState struct {
	Phase SyncPhase

	// Populated when Phase == PhaseSyncing.
	Progress int

	// Populated when Phase == PhaseError.
	ErrorKind ErrorKind
	ErrorMsg  string

	// Populated when Phase == PhaseConflict.
	Conflicts []Conflict

	// Auto overlays Idle when the periodic scheduler is running.
	Auto bool
}

func Idle(auto bool) SyncState {
	return SyncState{Phase: PhaseIdle, Auto: auto}
}

func Syncing(progress int) SyncState {
	return SyncState{Phase: PhaseSyncing, Progress: progress}
}

func ErrorState(kind ErrorKind, msg string) SyncState {
	return SyncState{Phase: PhaseError, ErrorKind: kind, ErrorMsg: msg}
}

func ConflictState(list []Conflict) SyncState {
	return SyncState{Phase: PhaseConflict, Conflicts: list}
}

// PushResult is returned by Engine.Push (§6).
type PushResult struct {
	Uploaded int
	Failed   int
	Errors   []error
}

// PullResult is returned by Engine.Pull (§6).
type PullResult struct {
	Downloaded int
	Applied    int
	Errors     []error
}

// SyncResult is returned by Engine.Sync (§6).
type SyncResult struct {
	Pushed     PushResult
	Pulled     PullResult
	Conflicts  []Conflict
	Errors     []error
	DurationMS int64
}
