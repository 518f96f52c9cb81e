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

package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

const testSchema = `
CREATE TABLE customers (
	id            TEXT PRIMARY KEY,
	name          TEXT,
	last_modified TEXT NOT NULL,
	is_deleted    INTEGER NOT NULL DEFAULT 0
);
`

func newTestProvider(t *testing.T) (*Provider, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replica.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	p := New()
	require.NoError(t, p.Configure(map[string]string{
		"path":                 path,
		"primary_key_column":   "id",
		"last_modified_column": "last_modified",
		"is_deleted_column":    "is_deleted",
	}))
	t.Cleanup(func() { _ = p.Close() })
	return p, path
}

func TestConfigure_MissingSettings(t *testing.T) {
	p := New()
	err := p.Configure(map[string]string{})
	assert.ErrorIs(t, err, common.ErrPathNotSet)

	p = New()
	err = p.Configure(map[string]string{"path": "x.db"})
	assert.ErrorIs(t, err, common.ErrColumnNotSet)
}

func TestWriteRow_AndReadRow(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	err := p.WriteRow(ctx, "customers", common.Record{
		"id": "a", "name": "Alice", "last_modified": ts,
	}, common.OpInsert)
	require.NoError(t, err)

	rec, err := p.ReadRow(ctx, "customers", "a")
	require.NoError(t, err)
	assert.Equal(t, "Alice", rec["name"])

	key, ok := rec.Key("id")
	require.True(t, ok)
	assert.Equal(t, "a", key)
}

func TestReadRow_NotFound(t *testing.T) {
	p, _ := newTestProvider(t)

	_, err := p.ReadRow(context.Background(), "customers", "missing")
	assert.ErrorIs(t, err, common.ErrRecordNotFound)
}

func TestWriteRow_UpsertIsIdempotent(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	row := common.Record{"id": "a", "name": "Alice", "last_modified": time.Now().UTC()}
	require.NoError(t, p.WriteRow(ctx, "customers", row, common.OpInsert))
	require.NoError(t, p.WriteRow(ctx, "customers", row, common.OpUpsert))
	require.NoError(t, p.WriteRow(ctx, "customers", row, common.OpUpsert))

	rows, err := p.ReadRows(ctx, "customers", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteRow_IgnoresUnknownColumns(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	err := p.WriteRow(ctx, "customers", common.Record{
		"id": "a", "name": "Alice", "last_modified": time.Now().UTC(),
		"only_on_other_replica": "ignored",
	}, common.OpUpsert)
	require.NoError(t, err)

	rec, err := p.ReadRow(ctx, "customers", "a")
	require.NoError(t, err)
	assert.Equal(t, "Alice", rec["name"])
	assert.NotContains(t, rec, "only_on_other_replica")
}

func TestWriteRow_SoftDelete(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.WriteRow(ctx, "customers", common.Record{
		"id": "a", "name": "Alice", "last_modified": time.Now().UTC(),
	}, common.OpInsert))

	require.NoError(t, p.WriteRow(ctx, "customers",
		common.Record{"id": "a"}, common.OpDelete))

	// Soft delete keeps the row, flags it, and bumps the timestamp.
	rec, err := p.ReadRow(ctx, "customers", "a")
	require.NoError(t, err)
	assert.True(t, rec.Bool("is_deleted"))
}

func TestWriteRow_HardDeleteWithoutDeletedColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replica.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE customers (id TEXT PRIMARY KEY, last_modified TEXT NOT NULL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	p := New()
	require.NoError(t, p.Configure(map[string]string{
		"path":                 path,
		"primary_key_column":   "id",
		"last_modified_column": "last_modified",
	}))
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.WriteRow(ctx, "customers", common.Record{
		"id": "a", "last_modified": time.Now().UTC(),
	}, common.OpInsert))
	require.NoError(t, p.WriteRow(ctx, "customers",
		common.Record{"id": "a"}, common.OpDelete))

	_, err = p.ReadRow(ctx, "customers", "a")
	assert.ErrorIs(t, err, common.ErrRecordNotFound)
}

func TestReadRows_SinceFilter(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, p.WriteRow(ctx, "customers", common.Record{
			"id": id, "name": id, "last_modified": base.Add(time.Duration(i) * time.Minute),
		}, common.OpInsert))
	}

	// No since: everything.
	rows, err := p.ReadRows(ctx, "customers", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	// Strictly-after filter: the row at exactly the boundary is excluded.
	since := base.Add(time.Minute)
	rows, err = p.ReadRows(ctx, "customers", &since)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	key, ok := rows[0].Key("id")
	require.True(t, ok)
	assert.Equal(t, "c", key)
}

func TestReadRows_OrderedByModification(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.WriteRow(ctx, "customers", common.Record{
		"id": "late", "last_modified": base.Add(time.Hour),
	}, common.OpInsert))
	require.NoError(t, p.WriteRow(ctx, "customers", common.Record{
		"id": "early", "last_modified": base,
	}, common.OpInsert))

	rows, err := p.ReadRows(ctx, "customers", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first, _ := rows[0].Key("id")
	second, _ := rows[1].Key("id")
	assert.Equal(t, "early", first)
	assert.Equal(t, "late", second)
}

func TestCheckSchema_TableNotFound(t *testing.T) {
	p, _ := newTestProvider(t)

	_, err := p.ReadRows(context.Background(), "no_such_table", nil)
	assert.ErrorIs(t, err, common.ErrTableNotFound)
}

func TestCheckSchema_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replica.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE customers (id TEXT PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	p := New()
	require.NoError(t, p.Configure(map[string]string{
		"path":                 path,
		"primary_key_column":   "id",
		"last_modified_column": "last_modified",
	}))
	defer p.Close()

	_, err = p.ReadRows(context.Background(), "customers", nil)
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)
}

func TestFormatTime_LexicographicOrder(t *testing.T) {
	// The storage layout must sort as text in chronological order; the
	// since-filter in ReadRows depends on it.
	times := []time.Time{
		time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		time.Date(2026, 1, 2, 3, 4, 5, 999999999, time.UTC),
		time.Date(2026, 1, 2, 3, 4, 6, 1, time.UTC),
		time.Date(2026, 11, 30, 23, 59, 59, 0, time.UTC),
	}
	for i := 1; i < len(times); i++ {
		assert.Less(t, FormatTime(times[i-1]), FormatTime(times[i]))
	}
}

func TestProvider_NotConfigured(t *testing.T) {
	p := New()
	_, err := p.ReadRows(context.Background(), "customers", nil)
	assert.ErrorIs(t, err, common.ErrNotConfigured)

	assert.NoError(t, p.Close())
}
