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

// Package common contains the shared data types, error taxonomy, and
// storage provider contract used by all tablesync components.
package common

import (
	"time"
)

// OperationType identifies the kind of mutation recorded for a row.
type OperationType string

const (
	// OpInsert records a newly created local row.
	OpInsert OperationType = "insert"

	// OpUpdate records a modification of an existing row.
	OpUpdate OperationType = "update"

	// OpDelete records a row removal.
	OpDelete OperationType = "delete"

	// OpUpsert is used only when applying pulled rows: the local presence
	// of a remote row is unknown, so the write is insert-or-replace.
	OpUpsert OperationType = "upsert"
)

// Valid reports whether the operation type is one of the recordable
// mutation kinds. OpUpsert is internal to the pull phase and is not a
// recordable change-log operation.
func (op OperationType) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Record is one row snapshot of either replica, keyed by column name.
// Records are treated as immutable once read from a provider.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Time extracts a timestamp column, normalizing the representations the
// storage providers produce: time.Time, RFC 3339 strings, and unix
// seconds. The second return value is false when the column is absent or
// not parseable.
func (r Record) Time(column string) (time.Time, bool) {
	v, ok := r[column]
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, true
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return ts, true
		}
		return time.Time{}, false
	case int64:
		return time.Unix(t, 0).UTC(), true
	case int:
		return time.Unix(int64(t), 0).UTC(), true
	case float64:
		return time.Unix(int64(t), 0).UTC(), true
	}
	return time.Time{}, false
}

// Key extracts the record identity from the given column as a string.
// The second return value is false when the column is absent, nil, or
// empty: such records cannot be keyed for conflict detection.
func (r Record) Key(column string) (string, bool) {
	v, ok := r[column]
	if !ok || v == nil {
		return "", false
	}
	switch k := v.(type) {
	case string:
		if k == "" {
			return "", false
		}
		return k, true
	case []byte:
		if len(k) == 0 {
			return "", false
		}
		return string(k), true
	}
	return "", false
}

// Bool extracts a boolean column, accepting the integer encodings SQLite
// produces for boolean values.
func (r Record) Bool(column string) bool {
	v, ok := r[column]
	if !ok || v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	case float64:
		return b != 0
	case string:
		return b == "1" || b == "true"
	}
	return false
}

// ChangeLogEntry is one recorded local mutation awaiting push.
type ChangeLogEntry struct {
	ID        string        `json:"id"`
	RecordID  string        `json:"record_id"`
	Table     string        `json:"table"`
	Operation OperationType `json:"operation"`
	Timestamp time.Time     `json:"timestamp"`
	Synced    bool          `json:"synced"`
}

// Conflict describes a record identity that changed both locally and
// remotely since the last successful sync for its table. Conflicts are
// transient: they are surfaced in the SyncResult and never persisted.
type Conflict struct {
	RecordID      string        `json:"record_id"`
	Table         string        `json:"table"`
	LocalVersion  Record        `json:"local_version,omitempty"`
	RemoteVersion Record        `json:"remote_version"`
	ConflictType  OperationType `json:"conflict_type"`
}

// Checkpoint marks the last point through which a pull for a table has
// been fully and successfully applied.
type Checkpoint struct {
	Table        string    `json:"table"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// SyncResult contains the aggregate outcome of one synchronize run.
type SyncResult struct {
	Success      bool                `json:"success"`
	Message      string              `json:"message"`
	TableErrors  map[string][]string `json:"table_errors,omitempty"`
	Conflicts    []Conflict          `json:"conflicts,omitempty"`
	TablesSynced int                 `json:"tables_synced"`
	RowsPushed   int                 `json:"rows_pushed"`
	RowsPulled   int                 `json:"rows_pulled"`
	Duration     time.Duration       `json:"duration"`
	Err          error               `json:"-"`
}

// AddTableError appends a per-table error message, initializing the map
// on first use.
func (r *SyncResult) AddTableError(table, msg string) {
	if r.TableErrors == nil {
		r.TableErrors = make(map[string][]string)
	}
	r.TableErrors[table] = append(r.TableErrors[table], msg)
}

// ProgressFunc receives coarse progress notifications during a run.
// It is invoked at table-boundary granularity, at most once per table
// per phase.
type ProgressFunc func(percent int, message string)
