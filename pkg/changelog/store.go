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

// Package changelog persists the append-only record of local mutations
// awaiting push, and exposes the Tracker through which all reads and
// writes of that record flow.
package changelog

import (
	"sort"
	"sync"

	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

// Store is the durable change-log storage contract. Implementations
// must preserve insertion order within a table and must treat marking
// an already-synced entry as a no-op.
type Store interface {
	// Append durably adds a new entry. A failed append leaves no
	// partial entry visible.
	Append(entry common.ChangeLogEntry) error

	// Unsynced returns, in insertion order, all entries for table with
	// the synced flag unset.
	Unsynced(table string) ([]common.ChangeLogEntry, error)

	// MarkSynced sets the synced flag on the entries with the given
	// IDs. Unknown or already-synced IDs are ignored.
	MarkSynced(ids []string) error

	// Compact removes synced entries from durable storage.
	Compact() error

	// Close releases store resources.
	Close() error
}

// MemoryStore is an in-memory Store used for tests and ephemeral
// configurations.
type MemoryStore struct {
	mu      sync.Mutex
	entries []common.ChangeLogEntry
	closed  bool

	// AppendErr, when set, is returned by the next Append call.
	AppendErr error
}

// NewMemoryStore creates an empty in-memory change-log store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append adds an entry to the in-memory log.
func (s *MemoryStore) Append(entry common.ChangeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return common.ErrStoreClosed
	}
	if s.AppendErr != nil {
		err := s.AppendErr
		s.AppendErr = nil
		return err
	}

	s.entries = append(s.entries, entry)
	return nil
}

// Unsynced returns unsynced entries for table in insertion order.
func (s *MemoryStore) Unsynced(table string) ([]common.ChangeLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, common.ErrStoreClosed
	}

	var out []common.ChangeLogEntry
	for _, e := range s.entries {
		if e.Table == table && !e.Synced {
			out = append(out, e)
		}
	}
	return out, nil
}

// MarkSynced flags the entries with the given IDs as synced.
func (s *MemoryStore) MarkSynced(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return common.ErrStoreClosed
	}

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	for i := range s.entries {
		if _, ok := idSet[s.entries[i].ID]; ok {
			s.entries[i].Synced = true
		}
	}
	return nil
}

// Compact drops synced entries.
func (s *MemoryStore) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return common.ErrStoreClosed
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if !e.Synced {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Tables returns the distinct tables present in the log, sorted.
func (s *MemoryStore) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, e := range s.entries {
		seen[e.Table] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
