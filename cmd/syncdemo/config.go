// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mobiletoly/syncmw/model"
)

// fileConfig is the on-disk shape of a syncdemo config file, a thin
// yaml.v3 mirror of model.SyncConfig plus the local/remote endpoints the
// library itself has no opinion on.
type fileConfig struct {
	LocalDBPath   string   `yaml:"local_db_path"`
	RemoteBaseURL string   `yaml:"remote_base_url"`
	Credential    string   `yaml:"credential"`
	CredentialEnv string   `yaml:"credential_env"`
	Tables        []string `yaml:"tables"`
	SyncIntervalMS        int64  `yaml:"sync_interval_ms"`
	ConflictPolicy        string `yaml:"conflict_policy"`
	BatchSize             int    `yaml:"batch_size"`
	Concurrency           int    `yaml:"concurrency"`
	CompressionEnabled    bool   `yaml:"compression_enabled"`
	CompressionThresholdBytes int `yaml:"compression_threshold_bytes"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &fc, nil
}

// toSyncConfig maps the YAML shape into model.SyncConfig, letting
// Validate() apply defaults for anything left at its zero value.
func (fc *fileConfig) toSyncConfig() model.SyncConfig {
	return model.SyncConfig{
		Credential:                fc.Credential,
		CredentialEnv:             fc.CredentialEnv,
		Tables:                    fc.Tables,
		SyncIntervalMS:            fc.SyncIntervalMS,
		ConflictPolicy:            model.ConflictPolicy(fc.ConflictPolicy),
		BatchSize:                 fc.BatchSize,
		Concurrency:               fc.Concurrency,
		CompressionEnabled:        fc.CompressionEnabled,
		CompressionThresholdBytes: fc.CompressionThresholdBytes,
	}
}
