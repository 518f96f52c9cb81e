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
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS change_log (
	id          TEXT PRIMARY KEY,
	record_id   TEXT NOT NULL,
	table_name  TEXT NOT NULL,
	operation   TEXT NOT NULL,
	ts          TEXT NOT NULL,
	synced      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_change_log_unsynced
	ON change_log(table_name, synced);
`

// SQLiteStore implements Store on a SQLite database. Used when the
// change log should live alongside a SQLite local replica rather than
// in a sidecar JSONL file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed change log at path
// and ensures its schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open change log database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create change log schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append inserts one entry.
func (s *SQLiteStore) Append(entry common.ChangeLogEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO change_log(id, record_id, table_name, operation, ts, synced) VALUES(?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RecordID, entry.Table, string(entry.Operation),
		entry.Timestamp.UTC().Format(time.RFC3339Nano), boolToInt(entry.Synced),
	)
	if err != nil {
		return classifySQLiteErr("append change log entry", err)
	}
	return nil
}

// Unsynced returns unsynced entries for table in insertion order.
func (s *SQLiteStore) Unsynced(table string) ([]common.ChangeLogEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, record_id, table_name, operation, ts, synced
		 FROM change_log WHERE table_name = ? AND synced = 0 ORDER BY rowid`,
		table,
	)
	if err != nil {
		return nil, classifySQLiteErr("read unsynced entries", err)
	}
	defer rows.Close()

	var out []common.ChangeLogEntry
	for rows.Next() {
		var e common.ChangeLogEntry
		var op, ts string
		var synced int
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Table, &op, &ts, &synced); err != nil {
			return nil, fmt.Errorf("failed to scan change log entry: %w", err)
		}
		e.Operation = common.OperationType(op)
		e.Synced = synced != 0
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = parsed
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLiteErr("read unsynced entries", err)
	}
	return out, nil
}

// MarkSynced flags the entries with the given IDs as synced.
func (s *SQLiteStore) MarkSynced(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.Exec(
		`UPDATE change_log SET synced = 1 WHERE id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return classifySQLiteErr("mark entries synced", err)
	}
	return nil
}

// Compact deletes synced entries.
func (s *SQLiteStore) Compact() error {
	if _, err := s.db.Exec(`DELETE FROM change_log WHERE synced = 1`); err != nil {
		return classifySQLiteErr("compact change log", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// classifySQLiteErr maps lock/busy contention to the transient error
// class so the retry policy can pick it up.
func classifySQLiteErr(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "locked") || strings.Contains(msg, "busy") {
		return fmt.Errorf("%w: %s: %v", common.ErrTransientIO, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
