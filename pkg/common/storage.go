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
	"context"
	"time"
)

// StorageProvider is the contract against one replica. Two instances
// exist per sync run, one for the local replica and one for the remote.
// Providers perform raw row reads and writes; the sync engine never
// touches a replica directly.
type StorageProvider interface {
	// Configure sets up the provider with the necessary settings
	// (path, column names).
	Configure(settings map[string]string) error

	// ReadRows returns the rows of table modified strictly after since.
	// A nil since returns all rows. The returned slice is finite and
	// ordering is provider-defined but stable per call.
	ReadRows(ctx context.Context, table string, since *time.Time) ([]Record, error)

	// ReadRow returns the current row with the given identity, or
	// ErrRecordNotFound.
	ReadRow(ctx context.Context, table, recordID string) (Record, error)

	// WriteRow applies record to table using the semantics of op.
	// OpUpsert inserts or replaces; OpDelete requires only the identity
	// column to be present in record.
	WriteRow(ctx context.Context, table string, record Record, op OperationType) error

	// Close releases provider resources.
	Close() error
}
