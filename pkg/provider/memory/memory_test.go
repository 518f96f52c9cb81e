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

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p := New()
	require.NoError(t, p.Configure(map[string]string{
		"primary_key_column":   "id",
		"last_modified_column": "last_modified",
	}))
	return p
}

func TestWriteReadRoundTrip(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	row := common.Record{"id": "a", "name": "Alice", "last_modified": time.Now().UTC()}
	require.NoError(t, p.WriteRow(ctx, "customers", row, common.OpInsert))

	got, err := p.ReadRow(ctx, "customers", "a")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got["name"])

	// Reads return copies; mutating one does not leak into the store.
	got["name"] = "mutated"
	again, err := p.ReadRow(ctx, "customers", "a")
	require.NoError(t, err)
	assert.Equal(t, "Alice", again["name"])
}

func TestReadRow_NotFound(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.ReadRow(context.Background(), "customers", "missing")
	assert.ErrorIs(t, err, common.ErrRecordNotFound)
}

func TestWriteRow_Delete(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.WriteRow(ctx, "customers",
		common.Record{"id": "a", "last_modified": time.Now().UTC()}, common.OpInsert))
	require.NoError(t, p.WriteRow(ctx, "customers",
		common.Record{"id": "a"}, common.OpDelete))

	assert.Equal(t, 0, p.RowCount("customers"))
}

func TestReadRows_SinceAndOrder(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	p.Seed("customers", common.Record{"id": "b", "last_modified": base.Add(time.Minute)})
	p.Seed("customers", common.Record{"id": "a", "last_modified": base})
	p.Seed("customers", common.Record{"id": "c", "last_modified": base.Add(2 * time.Minute)})

	rows, err := p.ReadRows(ctx, "customers", nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	first, _ := rows[0].Key("id")
	assert.Equal(t, "a", first)

	since := base
	rows, err = p.ReadRows(ctx, "customers", &since)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	first, _ = rows[0].Key("id")
	assert.Equal(t, "b", first)
}

func TestInjectedErrors(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	p.WriteErrs["a"] = common.ErrTransientIO
	err := p.WriteRow(ctx, "customers",
		common.Record{"id": "a", "last_modified": time.Now().UTC()}, common.OpInsert)
	assert.ErrorIs(t, err, common.ErrTransientIO)

	// One-shot: the next write succeeds.
	err = p.WriteRow(ctx, "customers",
		common.Record{"id": "a", "last_modified": time.Now().UTC()}, common.OpInsert)
	assert.NoError(t, err)
	assert.Equal(t, 2, p.WriteCount)

	p.ReadErrs["customers"] = common.ErrTransientIO
	_, err = p.ReadRows(ctx, "customers", nil)
	assert.ErrorIs(t, err, common.ErrTransientIO)

	rows, err := p.ReadRows(ctx, "customers", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestNotConfigured(t *testing.T) {
	p := New()
	_, err := p.ReadRows(context.Background(), "customers", nil)
	assert.ErrorIs(t, err, common.ErrNotConfigured)
}
