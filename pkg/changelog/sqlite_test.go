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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "changelog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_AppendAndUnsynced(t *testing.T) {
	store := newSQLiteStore(t)

	ts := time.Date(2026, 8, 1, 12, 0, 0, 123456789, time.UTC)
	require.NoError(t, store.Append(common.ChangeLogEntry{
		ID: "1", RecordID: "a", Table: "customers", Operation: common.OpInsert, Timestamp: ts,
	}))
	require.NoError(t, store.Append(common.ChangeLogEntry{
		ID: "2", RecordID: "b", Table: "customers", Operation: common.OpDelete, Timestamp: ts.Add(time.Second),
	}))
	require.NoError(t, store.Append(common.ChangeLogEntry{
		ID: "3", RecordID: "c", Table: "orders", Operation: common.OpUpdate, Timestamp: ts,
	}))

	entries, err := store.Unsynced("customers")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].RecordID)
	assert.Equal(t, "b", entries[1].RecordID)
	assert.Equal(t, common.OpInsert, entries[0].Operation)
	assert.True(t, entries[0].Timestamp.Equal(ts))
	assert.False(t, entries[0].Synced)
}

func TestSQLiteStore_MarkSyncedAndCompact(t *testing.T) {
	store := newSQLiteStore(t)

	now := time.Now().UTC()
	for i, id := range []string{"1", "2", "3"} {
		require.NoError(t, store.Append(common.ChangeLogEntry{
			ID: id, RecordID: "r" + id, Table: "customers",
			Operation: common.OpUpdate, Timestamp: now.Add(time.Duration(i) * time.Second),
		}))
	}

	require.NoError(t, store.MarkSynced([]string{"1", "3", "missing"}))

	entries, err := store.Unsynced("customers")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r2", entries[0].RecordID)

	require.NoError(t, store.Compact())

	entries, err = store.Unsynced("customers")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, store.MarkSynced(nil))
}

func TestSQLiteStore_DuplicateIDRejected(t *testing.T) {
	store := newSQLiteStore(t)

	e := common.ChangeLogEntry{
		ID: "dup", RecordID: "a", Table: "customers",
		Operation: common.OpInsert, Timestamp: time.Now().UTC(),
	}
	require.NoError(t, store.Append(e))
	assert.Error(t, store.Append(e))
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changelog.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(common.ChangeLogEntry{
		ID: "1", RecordID: "a", Table: "customers",
		Operation: common.OpInsert, Timestamp: time.Now().UTC(),
	}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Unsynced("customers")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].RecordID)
}
