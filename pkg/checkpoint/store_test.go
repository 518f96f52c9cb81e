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

package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_GetMissingTable(t *testing.T) {
	store, err := NewFileStore(nil, filepath.Join(t.TempDir(), "checkpoints.json"))
	require.NoError(t, err)

	_, ok, err := store.Get("customers")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_SetAndGet(t *testing.T) {
	store, err := NewFileStore(nil, filepath.Join(t.TempDir(), "checkpoints.json"))
	require.NoError(t, err)

	ts := time.Date(2026, 8, 1, 12, 0, 0, 500000000, time.UTC)
	require.NoError(t, store.Set("customers", ts))

	got, ok, err := store.Get("customers")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(ts))
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.json")

	store, err := NewFileStore(nil, path)
	require.NoError(t, err)

	tsCustomers := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tsOrders := time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.Set("customers", tsCustomers))
	require.NoError(t, store.Set("orders", tsOrders))

	reopened, err := NewFileStore(nil, path)
	require.NoError(t, err)

	got, ok, err := reopened.Get("customers")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(tsCustomers))

	got, ok, err = reopened.Get("orders")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(tsOrders))
}

func TestFileStore_All(t *testing.T) {
	store, err := NewFileStore(nil, filepath.Join(t.TempDir(), "checkpoints.json"))
	require.NoError(t, err)

	require.NoError(t, store.Set("customers", time.Now().UTC()))
	require.NoError(t, store.Set("orders", time.Now().UTC()))

	all, err := store.All()
	require.NoError(t, err)
	require.Len(t, all, 2)

	tables := []string{all[0].Table, all[1].Table}
	assert.ElementsMatch(t, []string{"customers", "orders"}, tables)
}

func TestFileStore_OverwriteAdvances(t *testing.T) {
	store, err := NewFileStore(nil, filepath.Join(t.TempDir(), "checkpoints.json"))
	require.NoError(t, err)

	t1 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	require.NoError(t, store.Set("customers", t1))
	require.NoError(t, store.Set("customers", t2))

	got, ok, err := store.Get("customers")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(t2))
}

func TestFileStore_FailedSaveKeepsPreviousState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.json")

	store, err := NewFileStore(nil, path)
	require.NoError(t, err)

	t1 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Set("customers", t1))

	// Block the temp sibling so the next save cannot start.
	require.NoError(t, os.Mkdir(path+".tmp", 0700))
	assert.Error(t, store.Set("orders", time.Now().UTC()))

	// The file on disk still holds the last good state.
	reopened, err := NewFileStore(nil, path)
	require.NoError(t, err)

	got, ok, err := reopened.Get("customers")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(t1))

	_, ok, err = reopened.Get("orders")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(nil, path)
	assert.Error(t, err)
}

func TestMemoryStore_InjectedSetError(t *testing.T) {
	store := NewMemoryStore()
	store.SetErr = os.ErrPermission

	err := store.Set("customers", time.Now())
	assert.ErrorIs(t, err, os.ErrPermission)

	// Error is one-shot.
	assert.NoError(t, store.Set("customers", time.Now()))
}
