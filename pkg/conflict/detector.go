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

// Package conflict partitions incoming remote changes against
// outstanding local changes and defines the resolution strategies.
package conflict

import (
	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

// Detector partitions remote changes into conflicting and
// non-conflicting sets against the local unsynced change log. It is a
// pure function object: no I/O, no state beyond the key column name.
type Detector struct {
	keyColumn string
}

// NewDetector creates a Detector keyed on the given identity column.
func NewDetector(keyColumn string) *Detector {
	return &Detector{keyColumn: keyColumn}
}

// Detect partitions remoteChanges against localUnsynced.
//
// Any remote row whose identity matches an unsynced local entry is a
// conflict carrying that entry's operation type; timestamps are never
// compared, so a concurrent local edit is conservatively a conflict
// rather than being silently superseded. A remote row whose identity
// column is missing or empty is classified non-conflicting: a row the
// detector cannot key is applied rather than silently dropped.
func (d *Detector) Detect(table string, remoteChanges []common.Record, localUnsynced []common.ChangeLogEntry) (conflicts []common.Conflict, nonConflicts []common.Record) {
	// First unsynced entry wins per record identity; later duplicates
	// describe the same outstanding divergence.
	localByKey := make(map[string]common.ChangeLogEntry, len(localUnsynced))
	for _, entry := range localUnsynced {
		if _, exists := localByKey[entry.RecordID]; !exists {
			localByKey[entry.RecordID] = entry
		}
	}

	for _, remote := range remoteChanges {
		key, ok := remote.Key(d.keyColumn)
		if !ok {
			nonConflicts = append(nonConflicts, remote)
			continue
		}

		entry, contested := localByKey[key]
		if !contested {
			nonConflicts = append(nonConflicts, remote)
			continue
		}

		conflicts = append(conflicts, common.Conflict{
			RecordID:      key,
			Table:         table,
			RemoteVersion: remote,
			ConflictType:  entry.Operation,
		})
	}

	return conflicts, nonConflicts
}
