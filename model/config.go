// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"fmt"
	"os"
	"time"
)

// ConflictPolicy is one of the five strategies of §4.6.
type ConflictPolicy string

const (
	PolicyLocalWins  ConflictPolicy = "local-wins"
	PolicyRemoteWins ConflictPolicy = "remote-wins"
	PolicyLatestWins ConflictPolicy = "latest-wins"
	PolicyMerge      ConflictPolicy = "merge"
	PolicyManual     ConflictPolicy = "manual"
)

// TableFilterConfig configures the Table Filter (C7).
type TableFilterConfig struct {
	Include         []string
	Exclude         []string
	IncludePatterns []string // regexp source strings
	ExcludePatterns []string

	// Metadata-based predicates, evaluated against a TableMetadata snapshot
	// the embedder supplies per table (collecting that snapshot is the
	// local store's job, not the filter's). Zero means "no limit" for each.
	MaxRowCount      int64
	MaxByteSizeBytes int64
	MaxAge           time.Duration
}

// TableMetadata is a point-in-time snapshot of one table's shape, supplied
// by the embedder (typically read off the local store) so tablefilter's
// metadata predicates in §4.6 have something to evaluate against.
type TableMetadata struct {
	RowCount     int64
	ByteSize     int64
	LastModified time.Time
}

// SyncConfig recognizes the options of §3's table.
type SyncConfig struct {
	// Credential is either the literal token or, if CredentialEnv is set,
	// ignored in favor of reading that environment variable at Initialize
	// time (§6).
	Credential    string
	CredentialEnv string

	Tables           []string
	SyncIntervalMS   int64
	ConflictPolicy   ConflictPolicy
	BatchSize        int
	Concurrency      int
	CompressionEnabled        bool
	CompressionThresholdBytes int
	TableFilter               TableFilterConfig

	MaxRetries        int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	BackoffFactor     float64
}

// DefaultSyncConfig returns the defaults named throughout §3.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		SyncIntervalMS:            30_000,
		ConflictPolicy:            PolicyLatestWins,
		BatchSize:                 1_000,
		Concurrency:               3,
		CompressionThresholdBytes: 1_024,
		MaxRetries:                3,
		InitialRetryDelay:         1 * time.Second,
		MaxRetryDelay:             30 * time.Second,
		BackoffFactor:             2.0,
	}
}

// ResolveCredential returns the literal credential, indirecting through
// CredentialEnv when set (§6, §7 "Invalid credential format fails
// initialize with an Auth error").
func (c *SyncConfig) ResolveCredential() (string, error) {
	if c.CredentialEnv != "" {
		v, ok := os.LookupEnv(c.CredentialEnv)
		if !ok || v == "" {
			return "", &Error{Kind: ErrAuth, RequiresRefresh: false,
				Message: fmt.Sprintf("credential env %q not set", c.CredentialEnv)}
		}
		return v, nil
	}
	if c.Credential == "" {
		return "", &Error{Kind: ErrAuth, RequiresRefresh: false, Message: "credential required"}
	}
	return c.Credential, nil
}

// Validate applies the defaults of §3 for any zero-valued field and checks
// the required fields.
func (c *SyncConfig) Validate() error {
	defaults := DefaultSyncConfig()
	if c.SyncIntervalMS <= 0 {
		c.SyncIntervalMS = defaults.SyncIntervalMS
	}
	if c.ConflictPolicy == "" {
		c.ConflictPolicy = defaults.ConflictPolicy
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.CompressionThresholdBytes <= 0 {
		c.CompressionThresholdBytes = defaults.CompressionThresholdBytes
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.InitialRetryDelay <= 0 {
		c.InitialRetryDelay = defaults.InitialRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = defaults.MaxRetryDelay
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = defaults.BackoffFactor
	}
	if c.Credential == "" && c.CredentialEnv == "" {
		return &Error{Kind: ErrValidation, Field: "credential",
			Details: []ValidationDetail{{Path: "credential", Message: "credential or credential_env is required"}}}
	}
	return nil
}
