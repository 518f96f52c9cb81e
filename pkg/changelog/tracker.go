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

package changelog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-tablesync/pkg/adapters"
	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

// Tracker is the only component allowed to mutate the change log. The
// surrounding application calls RecordChange after every local mutation;
// a mutation without a RecordChange call is invisible to the next push.
//
// Writes for the same table are serialized; reads and writes for other
// tables may proceed concurrently.
type Tracker struct {
	store  Store
	logger adapters.Logger
	now    func() time.Time

	mu         sync.Mutex
	tableLocks map[string]*sync.Mutex
}

// NewTracker creates a Tracker over the given store. A nil logger falls
// back to the no-op logger.
func NewTracker(store Store, logger adapters.Logger) *Tracker {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	return &Tracker{
		store:      store,
		logger:     logger,
		now:        time.Now,
		tableLocks: make(map[string]*sync.Mutex),
	}
}

// SetClock overrides the timestamp source. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// RecordChange appends a change-log entry for the given mutation with
// the current timestamp. On storage failure the error wraps
// ErrTransientIO and no partial entry is left visible.
func (t *Tracker) RecordChange(table, recordID string, op common.OperationType) error {
	if !op.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidOperation, op)
	}
	if table == "" || recordID == "" {
		return fmt.Errorf("%w: table and record id required", common.ErrInvalidOperation)
	}

	lock := t.lockFor(table)
	lock.Lock()
	defer lock.Unlock()

	entry := common.ChangeLogEntry{
		ID:        uuid.NewString(),
		RecordID:  recordID,
		Table:     table,
		Operation: op,
		Timestamp: t.now().UTC(),
	}

	if err := t.store.Append(entry); err != nil {
		return err
	}

	t.logger.Debug(context.Background(), "Change recorded",
		adapters.Field{Key: "table", Value: table},
		adapters.Field{Key: "record_id", Value: recordID},
		adapters.Field{Key: "operation", Value: string(op)})

	return nil
}

// Unsynced returns, in insertion order, all entries for table that have
// not been confirmed pushed. Pure read, no side effects.
func (t *Tracker) Unsynced(table string) ([]common.ChangeLogEntry, error) {
	return t.store.Unsynced(table)
}

// MarkSynced flags the given entries as pushed. Idempotent: marking an
// already-synced entry again is a no-op, and marked entries are never
// revisited by a later Unsynced call.
func (t *Tracker) MarkSynced(entries []common.ChangeLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return t.store.MarkSynced(ids)
}

// Compact removes confirmed-pushed entries from durable storage.
func (t *Tracker) Compact() error {
	return t.store.Compact()
}

// Close releases the underlying store.
func (t *Tracker) Close() error {
	return t.store.Close()
}

func (t *Tracker) lockFor(table string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.tableLocks[table]
	if !ok {
		lock = &sync.Mutex{}
		t.tableLocks[table] = lock
	}
	return lock
}
