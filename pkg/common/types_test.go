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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationType_Valid(t *testing.T) {
	assert.True(t, OpInsert.Valid())
	assert.True(t, OpUpdate.Valid())
	assert.True(t, OpDelete.Valid())
	assert.False(t, OpUpsert.Valid())
	assert.False(t, OperationType("truncate").Valid())
}

func TestRecord_Time(t *testing.T) {
	want := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	cases := map[string]Record{
		"time.Time":     {"ts": want},
		"rfc3339":       {"ts": "2026-08-01T12:00:00Z"},
		"sqlite layout": {"ts": "2026-08-01 12:00:00"},
		"unix seconds":  {"ts": want.Unix()},
	}
	for name, rec := range cases {
		got, ok := rec.Time("ts")
		require.True(t, ok, name)
		assert.True(t, got.Equal(want), name)
	}

	_, ok := Record{"ts": "not a time"}.Time("ts")
	assert.False(t, ok)
	_, ok = Record{}.Time("ts")
	assert.False(t, ok)
	_, ok = Record{"ts": nil}.Time("ts")
	assert.False(t, ok)
}

func TestRecord_Key(t *testing.T) {
	key, ok := Record{"id": "abc"}.Key("id")
	require.True(t, ok)
	assert.Equal(t, "abc", key)

	key, ok = Record{"id": []byte("abc")}.Key("id")
	require.True(t, ok)
	assert.Equal(t, "abc", key)

	_, ok = Record{"id": ""}.Key("id")
	assert.False(t, ok)
	_, ok = Record{}.Key("id")
	assert.False(t, ok)
	_, ok = Record{"id": nil}.Key("id")
	assert.False(t, ok)
	_, ok = Record{"id": 42}.Key("id")
	assert.False(t, ok)
}

func TestRecord_Bool(t *testing.T) {
	assert.True(t, Record{"d": true}.Bool("d"))
	assert.True(t, Record{"d": int64(1)}.Bool("d"))
	assert.True(t, Record{"d": "1"}.Bool("d"))
	assert.False(t, Record{"d": int64(0)}.Bool("d"))
	assert.False(t, Record{"d": false}.Bool("d"))
	assert.False(t, Record{}.Bool("d"))
}

func TestRecord_Clone(t *testing.T) {
	orig := Record{"id": "a", "name": "Alice"}
	clone := orig.Clone()
	clone["name"] = "Bob"
	assert.Equal(t, "Alice", orig["name"])
}

func TestSyncConfig_Validate(t *testing.T) {
	valid := SyncConfig{
		LocalPath:          "local.db",
		RemotePath:         "remote.db",
		Tables:             []string{"customers"},
		PrimaryKeyColumn:   "id",
		LastModifiedColumn: "last_modified",
	}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.LocalPath = ""
	assert.ErrorIs(t, missing.Validate(), ErrPathNotSet)

	missing = valid
	missing.RemotePath = ""
	assert.ErrorIs(t, missing.Validate(), ErrPathNotSet)

	missing = valid
	missing.Tables = nil
	assert.ErrorIs(t, missing.Validate(), ErrNoTables)

	missing = valid
	missing.PrimaryKeyColumn = ""
	assert.ErrorIs(t, missing.Validate(), ErrColumnNotSet)

	missing = valid
	missing.LastModifiedColumn = ""
	assert.ErrorIs(t, missing.Validate(), ErrColumnNotSet)

	bad := valid
	bad.ChangeLogFormat = "csv"
	assert.ErrorIs(t, bad.Validate(), ErrUnknownChangeLogFormat)

	ok := valid
	ok.ChangeLogFormat = ChangeLogFormatJSONL
	assert.NoError(t, ok.Validate())
}

func TestSyncConfig_ProviderSettings(t *testing.T) {
	cfg := SyncConfig{
		PrimaryKeyColumn:   "id",
		LastModifiedColumn: "last_modified",
	}

	settings := cfg.ProviderSettings("/tmp/replica.db")
	assert.Equal(t, "/tmp/replica.db", settings["path"])
	assert.Equal(t, "id", settings["primary_key_column"])
	assert.NotContains(t, settings, "is_deleted_column")

	cfg.IsDeletedColumn = "is_deleted"
	settings = cfg.ProviderSettings("/tmp/replica.db")
	assert.Equal(t, "is_deleted", settings["is_deleted_column"])
}

func TestRowError(t *testing.T) {
	cause := ErrTransientIO
	err := &RowError{Table: "customers", RecordID: "abc", Operation: OpUpdate, Err: cause}

	assert.Contains(t, err.Error(), "customers")
	assert.Contains(t, err.Error(), "abc")
	assert.True(t, errors.Is(err, ErrTransientIO))
	assert.True(t, IsTransient(err))
	assert.False(t, IsTransient(ErrSchemaMismatch))
}

func TestSyncResult_AddTableError(t *testing.T) {
	r := &SyncResult{}
	r.AddTableError("customers", "row a failed")
	r.AddTableError("customers", "row b failed")
	r.AddTableError("orders", "row c failed")

	require.Len(t, r.TableErrors, 2)
	assert.Len(t, r.TableErrors["customers"], 2)
	assert.Len(t, r.TableErrors["orders"], 1)
}
