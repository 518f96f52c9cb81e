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

// Package sqlite provides a StorageProvider over a SQLite database
// file. Either replica may live on a local disk or on a network share;
// lock contention from other writers is surfaced as a transient error
// so the retry policy can handle it.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

// timeLayout is the fixed-width storage format for last-modified
// values. Fixed width keeps lexicographic and chronological order
// identical, so the since-filter can compare as text.
const timeLayout = "2006-01-02 15:04:05.000000000"

// Provider is a SQLite-backed implementation of common.StorageProvider.
type Provider struct {
	db             *sql.DB
	path           string
	keyColumn      string
	modifiedColumn string
	deletedColumn  string

	mu      sync.Mutex
	schemas map[string][]string // table -> column names, checked once
}

// New creates an unconfigured SQLite provider.
func New() *Provider {
	return &Provider{schemas: make(map[string][]string)}
}

// Configure opens the database at settings["path"] and records the
// configured column mapping.
func (p *Provider) Configure(settings map[string]string) error {
	path := settings["path"]
	if path == "" {
		return common.ErrPathNotSet
	}
	key := settings["primary_key_column"]
	if key == "" {
		return fmt.Errorf("primary key: %w", common.ErrColumnNotSet)
	}
	modified := settings["last_modified_column"]
	if modified == "" {
		return fmt.Errorf("last modified: %w", common.ErrColumnNotSet)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open replica %s: %w", path, err)
	}
	// Serialize access through one connection; SQLite handles its own
	// file locking and the engine is single-flow anyway.
	db.SetMaxOpenConns(1)

	p.db = db
	p.path = path
	p.keyColumn = key
	p.modifiedColumn = modified
	p.deletedColumn = settings["is_deleted_column"]
	return nil
}

// ReadRows returns the rows of table modified strictly after since,
// ordered by modification time then identity.
func (p *Provider) ReadRows(ctx context.Context, table string, since *time.Time) ([]common.Record, error) {
	if p.db == nil {
		return nil, common.ErrNotConfigured
	}
	if err := p.checkSchema(ctx, table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT * FROM %s`, quoteIdent(table))
	var args []any
	if since != nil {
		query += fmt.Sprintf(` WHERE %s > ?`, quoteIdent(p.modifiedColumn))
		args = append(args, FormatTime(*since))
	}
	query += fmt.Sprintf(` ORDER BY %s, %s`, quoteIdent(p.modifiedColumn), quoteIdent(p.keyColumn))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyErr(fmt.Sprintf("read rows from %s", table), err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}

	var out []common.Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row of %s: %w", table, err)
		}

		rec := make(common.Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
			} else {
				rec[col] = values[i]
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyErr(fmt.Sprintf("read rows from %s", table), err)
	}

	return out, nil
}

// ReadRow returns the row with the given identity.
func (p *Provider) ReadRow(ctx context.Context, table, recordID string) (common.Record, error) {
	if p.db == nil {
		return nil, common.ErrNotConfigured
	}
	if err := p.checkSchema(ctx, table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s = ? LIMIT 1`,
		quoteIdent(table), quoteIdent(p.keyColumn))

	rows, err := p.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, classifyErr(fmt.Sprintf("read row %s/%s", table, recordID), err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, classifyErr(fmt.Sprintf("read row %s/%s", table, recordID), err)
		}
		return nil, fmt.Errorf("%s/%s: %w", table, recordID, common.ErrRecordNotFound)
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row of %s: %w", table, err)
	}

	rec := make(common.Record, len(columns))
	for i, col := range columns {
		if b, ok := values[i].([]byte); ok {
			rec[col] = string(b)
		} else {
			rec[col] = values[i]
		}
	}
	return rec, nil
}

// WriteRow applies record to table with the semantics of op. Inserts,
// updates, and upserts all use INSERT OR REPLACE keyed on the identity
// column, so re-applying a pulled row is idempotent. Deletes are soft
// when an is-deleted column is configured, hard otherwise.
func (p *Provider) WriteRow(ctx context.Context, table string, record common.Record, op common.OperationType) error {
	if p.db == nil {
		return common.ErrNotConfigured
	}
	if err := p.checkSchema(ctx, table); err != nil {
		return err
	}

	key, ok := record.Key(p.keyColumn)
	if !ok {
		return fmt.Errorf("%w: record missing %q", common.ErrInvalidOperation, p.keyColumn)
	}

	switch op {
	case common.OpDelete:
		return p.deleteRow(ctx, table, key)

	case common.OpInsert, common.OpUpdate, common.OpUpsert:
		return p.upsertRow(ctx, table, record)

	default:
		return fmt.Errorf("%w: %q", common.ErrInvalidOperation, op)
	}
}

// Close closes the database.
func (p *Provider) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Provider) deleteRow(ctx context.Context, table, key string) error {
	var query string
	var args []any
	if p.deletedColumn != "" {
		query = fmt.Sprintf(`UPDATE %s SET %s = 1, %s = ? WHERE %s = ?`,
			quoteIdent(table), quoteIdent(p.deletedColumn),
			quoteIdent(p.modifiedColumn), quoteIdent(p.keyColumn))
		args = []any{FormatTime(time.Now().UTC()), key}
	} else {
		query = fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`,
			quoteIdent(table), quoteIdent(p.keyColumn))
		args = []any{key}
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return classifyErr(fmt.Sprintf("delete row %s/%s", table, key), err)
	}
	return nil
}

func (p *Provider) upsertRow(ctx context.Context, table string, record common.Record) error {
	schema := p.schemaColumns(table)
	known := make(map[string]struct{}, len(schema))
	for _, c := range schema {
		known[c] = struct{}{}
	}

	// Restrict to destination columns; replicas may trail each other by
	// application-private columns that are not part of the sync contract.
	cols := make([]string, 0, len(record))
	for col := range record {
		if _, ok := known[col]; ok {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
		marks[i] = "?"
		args[i] = normalizeValue(record[col])
	}

	query := fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (%s)`,
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return classifyErr(fmt.Sprintf("write row to %s", table), err)
	}
	return nil
}

// checkSchema verifies, once per table, that the configured columns
// exist on the replica. A missing column is a schema mismatch and
// fatal to the run.
func (p *Provider) checkSchema(ctx context.Context, table string) error {
	p.mu.Lock()
	if _, ok := p.schemas[table]; ok {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return classifyErr(fmt.Sprintf("inspect schema of %s", table), err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return fmt.Errorf("inspect schema of %s: %w", table, err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return classifyErr(fmt.Sprintf("inspect schema of %s", table), err)
	}

	if len(columns) == 0 {
		return fmt.Errorf("%s: %w", table, common.ErrTableNotFound)
	}

	required := []string{p.keyColumn, p.modifiedColumn}
	if p.deletedColumn != "" {
		required = append(required, p.deletedColumn)
	}
	for _, want := range required {
		found := false
		for _, col := range columns {
			if strings.EqualFold(col, want) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: table %s has no column %q in %s",
				common.ErrSchemaMismatch, table, want, p.path)
		}
	}

	p.mu.Lock()
	p.schemas[table] = columns
	p.mu.Unlock()
	return nil
}

func (p *Provider) schemaColumns(table string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.schemas[table]
}

// FormatTime renders a timestamp in the provider's storage layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func normalizeValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return FormatTime(t)
	}
	return v
}

// quoteIdent quotes an SQL identifier, escaping embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// classifyErr maps lock/busy contention to the transient error class.
func classifyErr(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "locked") || strings.Contains(msg, "busy") {
		return fmt.Errorf("%w: %s: %v", common.ErrTransientIO, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ common.StorageProvider = (*Provider)(nil)
