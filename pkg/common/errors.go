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

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors

	// ErrNotConfigured is returned when a provider or store is used before
	// it has been configured.
	ErrNotConfigured = errors.New("not configured")

	// ErrPathNotSet is returned when a required replica path is not set.
	ErrPathNotSet = errors.New("path not set")

	// ErrNoTables is returned when the configuration names no tables to sync.
	ErrNoTables = errors.New("no tables configured")

	// ErrColumnNotSet is returned when a required column name is not set.
	ErrColumnNotSet = errors.New("column not set")

	// Sync errors

	// ErrTransientIO indicates connection or lock contention against a
	// replica. Retryable; isolated to one row it does not abort the run.
	ErrTransientIO = errors.New("transient i/o failure")

	// ErrSchemaMismatch indicates a configured column is absent from a
	// replica. Fatal: the run aborts and no checkpoint is advanced for
	// the affected table.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrRecordNotFound is returned when a row lookup by identity finds
	// no matching row.
	ErrRecordNotFound = errors.New("record not found")

	// ErrTableNotFound is returned when a configured table is absent
	// from a replica.
	ErrTableNotFound = errors.New("table not found")

	// ErrSyncInProgress is returned when Synchronize is called while a
	// run is already active on the same engine.
	ErrSyncInProgress = errors.New("synchronization already in progress")

	// ErrUnknownProvider is returned by the provider factory for an
	// unregistered provider kind.
	ErrUnknownProvider = errors.New("unknown storage provider")

	// ErrUnknownChangeLogFormat is returned when the configured change
	// log backend is not one of the supported formats.
	ErrUnknownChangeLogFormat = errors.New("unknown change log format")

	// ErrInvalidOperation is returned when an operation type outside the
	// recordable set is supplied.
	ErrInvalidOperation = errors.New("invalid operation type")

	// ErrStoreClosed is returned when a change log or checkpoint store is
	// used after Close.
	ErrStoreClosed = errors.New("store closed")
)

// RowError records the failure of a single row push or pull. Row errors
// are aggregated into SyncResult.TableErrors; they never abort a table.
type RowError struct {
	Table     string
	RecordID  string
	Operation OperationType
	Err       error
}

// Error implements the error interface.
func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %q (%s): %v", e.Table, e.RecordID, e.Operation, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *RowError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error is a transient I/O failure
// eligible for the retry policy.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientIO)
}
