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

package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig_Defaults(t *testing.T) {
	v, err := InitConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	// Explicit missing config file is an error; the default search path
	// tolerates absence.
	assert.Error(t, err)

	v, err = InitConfig("")
	require.NoError(t, err)

	cfg := GetConfig(v)
	assert.Equal(t, "sqlite", cfg.Sync.Provider)
	assert.Equal(t, "sqlite", cfg.Sync.ChangeLogFormat)
	assert.Equal(t, "id", cfg.Sync.PrimaryKeyColumn)
	assert.Equal(t, "last_modified", cfg.Sync.LastModifiedColumn)
	assert.Equal(t, "text", cfg.OutputFormat)
	assert.Equal(t, "30s", cfg.Interval)
}

func TestInitConfig_FromFile(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "tablesync.yaml")
	content := `
provider: sqlite
local-path: /data/local.db
remote-path: /mnt/share/remote.db
tables:
  - customers
  - orders
is-deleted-column: is_deleted
change-log-format: jsonl
output-format: json
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0600))

	v, err := InitConfig(cfgFile)
	require.NoError(t, err)

	cfg := GetConfig(v)
	assert.Equal(t, "/data/local.db", cfg.Sync.LocalPath)
	assert.Equal(t, "/mnt/share/remote.db", cfg.Sync.RemotePath)
	assert.Equal(t, []string{"customers", "orders"}, cfg.Sync.Tables)
	assert.Equal(t, "is_deleted", cfg.Sync.IsDeletedColumn)
	assert.Equal(t, "jsonl", cfg.Sync.ChangeLogFormat)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.NoError(t, cfg.Sync.Validate())
}

func TestInitConfig_EnvOverride(t *testing.T) {
	t.Setenv("TABLESYNC_LOCAL-PATH", "/env/local.db")
	t.Setenv("TABLESYNC_PROVIDER", "memory")

	v, err := InitConfig("")
	require.NoError(t, err)

	cfg := GetConfig(v)
	assert.Equal(t, "memory", cfg.Sync.Provider)
	assert.Equal(t, "/env/local.db", cfg.Sync.LocalPath)
}
