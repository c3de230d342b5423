// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package model

import "fmt"

// ErrorKind classifies an Error by kind, not by name, per §7.
type ErrorKind string

const (
	ErrNetwork    ErrorKind = "network"
	ErrAuth       ErrorKind = "auth"
	ErrConflict   ErrorKind = "conflict"
	ErrQuota      ErrorKind = "quota"
	ErrValidation ErrorKind = "validation"
	ErrStorage    ErrorKind = "storage"
	ErrUnknown    ErrorKind = "unknown"
)

// ValidationDetail is one entry of a Validation error's details list.
type ValidationDetail struct {
	Path    string
	Message string
}

// Error is the sum type of §7's taxonomy. Low-level components construct
// the narrowest kind; the engine wraps only to attach operational context
// (table, batch index, attempt number), never losing the original Kind.
type Error struct {
	Kind ErrorKind

	// Network
	Retryable bool
	Status    int

	// Auth
	RequiresRefresh bool

	// Conflict
	Conflicts []Conflict

	// Quota
	Limit int64
	Used  int64

	// Validation
	Field   string
	Details []ValidationDetail

	// Context attached by higher layers without changing Kind.
	Table   string
	Batch   int
	Attempt int

	Message string
	Cause   error
}

func (e *Error) Error() string {
	ctx := ""
	if e.Table != "" {
		ctx += fmt.Sprintf(" table=%s", e.Table)
	}
	if e.Attempt > 0 {
		ctx += fmt.Sprintf(" attempt=%d", e.Attempt)
	}
	if e.Message != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s%s: %v", e.Kind, e.Message, ctx, e.Cause)
		}
		return fmt.Sprintf("%s: %s%s", e.Kind, e.Message, ctx)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s%s: %v", e.Kind, ctx, e.Cause)
	}
	return fmt.Sprintf("%s%s", e.Kind, ctx)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable reports whether the Batch/Retry layer (§4.7) should retry an
// operation that failed with this error: network-retryable true, or
// auth-requires-refresh.
func (e *Error) IsRetryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case ErrNetwork:
		return e.Retryable
	case ErrAuth:
		return e.RequiresRefresh
	default:
		return false
	}
}

// WithContext returns a copy of e annotated with operational context,
// preserving Kind (§7 "Propagation").
func (e *Error) WithContext(table string, batch, attempt int) *Error {
	cp := *e
	if table != "" {
		cp.Table = table
	}
	if batch != 0 {
		cp.Batch = batch
	}
	if attempt != 0 {
		cp.Attempt = attempt
	}
	return &cp
}

func NetworkError(retryable bool, status int, cause error) *Error {
	return &Error{Kind: ErrNetwork, Retryable: retryable, Status: status, Cause: cause}
}

func AuthError(requiresRefresh bool, msg string) *Error {
	return &Error{Kind: ErrAuth, RequiresRefresh: requiresRefresh, Message: msg}
}

func ConflictError(list []Conflict) *Error {
	return &Error{Kind: ErrConflict, Conflicts: list}
}

func QuotaError(limit, used int64) *Error {
	return &Error{Kind: ErrQuota, Limit: limit, Used: used}
}

func ValidationError(field string, details []ValidationDetail) *Error {
	return &Error{Kind: ErrValidation, Field: field, Details: details}
}

func StorageError(cause error) *Error {
	return &Error{Kind: ErrStorage, Cause: cause}
}

func UnknownError(cause error) *Error {
	return &Error{Kind: ErrUnknown, Cause: cause}
}

// ErrRequiresManual is returned by the Resolver for the manual policy
// (§4.5). It is distinct from Error{Kind: ErrConflict} because it fails
// resolution of one specific conflict rather than reporting the batch.
var ErrRequiresManual = fmt.Errorf("conflict requires manual resolution")
