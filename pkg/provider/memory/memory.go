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

// Package memory provides an in-memory StorageProvider. It backs tests
// and ephemeral configurations, and supports fault injection so failure
// paths in the sync engine can be exercised deterministically.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

// Provider is an in-memory implementation of common.StorageProvider.
type Provider struct {
	mu     sync.RWMutex
	tables map[string]map[string]common.Record

	keyColumn      string
	modifiedColumn string
	deletedColumn  string

	// WriteErrs injects a write failure per record identity. The error
	// is returned once, then cleared.
	WriteErrs map[string]error

	// ReadErrs injects a ReadRows failure per table. The error is
	// returned once, then cleared.
	ReadErrs map[string]error

	// WriteCount counts WriteRow calls, including failed ones.
	WriteCount int
}

// New creates an unconfigured in-memory provider.
func New() *Provider {
	return &Provider{
		tables:    make(map[string]map[string]common.Record),
		WriteErrs: make(map[string]error),
		ReadErrs:  make(map[string]error),
	}
}

// Configure sets the column mapping for the provider.
func (p *Provider) Configure(settings map[string]string) error {
	key := settings["primary_key_column"]
	if key == "" {
		return fmt.Errorf("primary key: %w", common.ErrColumnNotSet)
	}
	modified := settings["last_modified_column"]
	if modified == "" {
		return fmt.Errorf("last modified: %w", common.ErrColumnNotSet)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.keyColumn = key
	p.modifiedColumn = modified
	p.deletedColumn = settings["is_deleted_column"]
	return nil
}

// Seed inserts a row directly, bypassing the provider contract. Test
// setup helper.
func (p *Provider) Seed(table string, record common.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key, _ := record.Key(p.keyColumn)
	if p.tables[table] == nil {
		p.tables[table] = make(map[string]common.Record)
	}
	p.tables[table][key] = record.Clone()
}

// ReadRows returns rows modified strictly after since, ordered by
// modification time then identity.
func (p *Provider) ReadRows(ctx context.Context, table string, since *time.Time) ([]common.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if err, ok := p.ReadErrs[table]; ok && err != nil {
		delete(p.ReadErrs, table)
		p.mu.Unlock()
		return nil, err
	}
	p.mu.Unlock()

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.keyColumn == "" {
		return nil, common.ErrNotConfigured
	}

	var out []common.Record
	for _, rec := range p.tables[table] {
		if since != nil {
			ts, ok := rec.Time(p.modifiedColumn)
			if !ok || !ts.After(*since) {
				continue
			}
		}
		out = append(out, rec.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		ti, _ := out[i].Time(p.modifiedColumn)
		tj, _ := out[j].Time(p.modifiedColumn)
		if ti.Equal(tj) {
			ki, _ := out[i].Key(p.keyColumn)
			kj, _ := out[j].Key(p.keyColumn)
			return ki < kj
		}
		return ti.Before(tj)
	})

	return out, nil
}

// ReadRow returns the row with the given identity.
func (p *Provider) ReadRow(ctx context.Context, table, recordID string) (common.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.keyColumn == "" {
		return nil, common.ErrNotConfigured
	}

	rec, ok := p.tables[table][recordID]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", table, recordID, common.ErrRecordNotFound)
	}
	return rec.Clone(), nil
}

// WriteRow applies record with the semantics of op.
func (p *Provider) WriteRow(ctx context.Context, table string, record common.Record, op common.OperationType) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.WriteCount++

	if p.keyColumn == "" {
		return common.ErrNotConfigured
	}

	key, ok := record.Key(p.keyColumn)
	if !ok {
		return fmt.Errorf("%w: record missing %q", common.ErrInvalidOperation, p.keyColumn)
	}

	if err, injected := p.WriteErrs[key]; injected && err != nil {
		delete(p.WriteErrs, key)
		return err
	}

	if p.tables[table] == nil {
		p.tables[table] = make(map[string]common.Record)
	}

	switch op {
	case common.OpInsert, common.OpUpdate, common.OpUpsert:
		p.tables[table][key] = record.Clone()
	case common.OpDelete:
		delete(p.tables[table], key)
	default:
		return fmt.Errorf("%w: %q", common.ErrInvalidOperation, op)
	}
	return nil
}

// Close is a no-op for the in-memory provider.
func (p *Provider) Close() error {
	return nil
}

// RowCount returns the number of rows in table. Test helper.
func (p *Provider) RowCount(table string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tables[table])
}

var _ common.StorageProvider = (*Provider)(nil)
