// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-tablesync.
//
// go-tablesync is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package common

import "fmt"

// Change-log backends selectable via SyncConfig.ChangeLogFormat.
const (
	ChangeLogFormatSQLite = "sqlite"
	ChangeLogFormatJSONL  = "jsonl"
)

// SyncConfig describes one sync pairing: a local replica, a remote
// replica, and the tables to keep eventually consistent between them.
type SyncConfig struct {
	// Provider selects the storage provider kind for both replicas
	// ("sqlite" or "memory"). Defaults to "sqlite".
	Provider string `json:"provider" mapstructure:"provider"`

	// LocalPath is the path of the local replica database.
	LocalPath string `json:"local_path" mapstructure:"local-path"`

	// RemotePath is the path of the remote replica database, typically
	// on an intermittently reachable network share.
	RemotePath string `json:"remote_path" mapstructure:"remote-path"`

	// Tables lists the tables to synchronize. Tables are processed in
	// this order on every run.
	Tables []string `json:"tables" mapstructure:"tables"`

	// PrimaryKeyColumn is the stable record identity column shared by
	// all synchronized tables.
	PrimaryKeyColumn string `json:"primary_key_column" mapstructure:"primary-key-column"`

	// LastModifiedColumn is the timestamp column stamped by writers on
	// every mutation; pulls filter on it against the table checkpoint.
	LastModifiedColumn string `json:"last_modified_column" mapstructure:"last-modified-column"`

	// IsDeletedColumn, when set, marks soft-deleted rows. Pulled rows
	// with this column set are applied as deletes.
	IsDeletedColumn string `json:"is_deleted_column" mapstructure:"is-deleted-column"`

	// ChangeLogPath is where the local change log is persisted. Empty
	// selects a sibling of LocalPath.
	ChangeLogPath string `json:"change_log_path" mapstructure:"change-log-path"`

	// ChangeLogFormat selects the change-log backend, "sqlite" or
	// "jsonl". Defaults to "sqlite". Memory-provider pairings keep the
	// log in memory regardless.
	ChangeLogFormat string `json:"change_log_format" mapstructure:"change-log-format"`

	// CheckpointPath is where per-table checkpoints are persisted.
	// Empty selects a sibling of LocalPath.
	CheckpointPath string `json:"checkpoint_path" mapstructure:"checkpoint-path"`
}

// Validate checks that the configuration names everything a run needs.
func (c *SyncConfig) Validate() error {
	if c.LocalPath == "" {
		return fmt.Errorf("local replica: %w", ErrPathNotSet)
	}
	if c.RemotePath == "" {
		return fmt.Errorf("remote replica: %w", ErrPathNotSet)
	}
	if len(c.Tables) == 0 {
		return ErrNoTables
	}
	if c.PrimaryKeyColumn == "" {
		return fmt.Errorf("primary key: %w", ErrColumnNotSet)
	}
	if c.LastModifiedColumn == "" {
		return fmt.Errorf("last modified: %w", ErrColumnNotSet)
	}
	switch c.ChangeLogFormat {
	case "", ChangeLogFormatSQLite, ChangeLogFormatJSONL:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChangeLogFormat, c.ChangeLogFormat)
	}
	return nil
}

// ProviderSettings converts the config into the settings map consumed by
// StorageProvider.Configure for the given replica path.
func (c *SyncConfig) ProviderSettings(path string) map[string]string {
	settings := map[string]string{
		"path":                 path,
		"primary_key_column":   c.PrimaryKeyColumn,
		"last_modified_column": c.LastModifiedColumn,
	}
	if c.IsDeletedColumn != "" {
		settings["is_deleted_column"] = c.IsDeletedColumn
	}
	return settings
}
