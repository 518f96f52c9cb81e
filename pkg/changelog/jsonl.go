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
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

// JSONLStore implements Store using JSON Lines format. Each line in the
// file is one JSON-encoded ChangeLogEntry. Thread-safe with mutex
// protection; appends are synced to disk before returning.
type JSONLStore struct {
	file     *os.File
	filePath string
	mutex    sync.Mutex
}

// NewJSONLStore opens (or creates) a JSONL-backed change log at filePath.
func NewJSONLStore(filePath string) (*JSONLStore, error) {
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0600) // #nosec G304 -- filePath from configuration, not user input
	if err != nil {
		return nil, fmt.Errorf("failed to open change log file: %w", err)
	}

	return &JSONLStore{
		file:     file,
		filePath: filePath,
	}, nil
}

// Append writes one entry to the log and syncs to disk. On failure the
// error is classified transient: the caller may retry and no partial
// entry is surfaced by later reads (partial lines are skipped).
func (s *JSONLStore) Append(entry common.ChangeLogEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.file == nil {
		return common.ErrStoreClosed
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: write entry: %v", common.ErrTransientIO, err)
	}

	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync change log: %v", common.ErrTransientIO, err)
	}

	return nil
}

// Unsynced returns unsynced entries for table in insertion order.
func (s *JSONLStore) Unsynced(table string) ([]common.ChangeLogEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return nil, err
	}

	var out []common.ChangeLogEntry
	for _, e := range entries {
		if e.Table == table && !e.Synced {
			out = append(out, e)
		}
	}
	return out, nil
}

// MarkSynced sets the synced flag on the entries with the given IDs and
// rewrites the file. Marking an already-synced or unknown ID is a no-op.
func (s *JSONLStore) MarkSynced(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return err
	}

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	changed := false
	for i := range entries {
		if _, ok := idSet[entries[i].ID]; ok && !entries[i].Synced {
			entries[i].Synced = true
			changed = true
		}
	}
	if !changed {
		return nil
	}

	return s.rewriteFile(entries)
}

// Compact removes synced entries from the file.
func (s *JSONLStore) Compact() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if !e.Synced {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}

	return s.rewriteFile(kept)
}

// Close closes the underlying file.
func (s *JSONLStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// readAll loads every well-formed entry in file order (must be called
// with the mutex held). Unparseable lines are skipped, never surfaced.
func (s *JSONLStore) readAll() ([]common.ChangeLogEntry, error) {
	if s.file == nil {
		return nil, common.ErrStoreClosed
	}

	if _, err := s.file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("%w: seek change log: %v", common.ErrTransientIO, err)
	}

	var entries []common.ChangeLogEntry
	scanner := bufio.NewScanner(s.file)

	const maxCapacity = 1024 * 1024 // 1MB
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	for scanner.Scan() {
		var entry common.ChangeLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan change log: %v", common.ErrTransientIO, err)
	}

	return entries, nil
}

// rewriteFile atomically replaces the file contents with the given
// entries (must be called with the mutex held). Entries are written to
// a temporary sibling, synced, and renamed over the live file; a
// failed or interrupted rewrite leaves the original log intact.
func (s *JSONLStore) rewriteFile(entries []common.ChangeLogEntry) error {
	tmpPath := s.filePath + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304 -- sibling of the configured log path
	if err != nil {
		return fmt.Errorf("%w: create temp change log: %v", common.ErrTransientIO, err)
	}

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		if _, err := tmp.Write(append(data, '\n')); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return fmt.Errorf("%w: write entry: %v", common.ErrTransientIO, err)
		}
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: sync change log: %v", common.ErrTransientIO, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp change log: %v", common.ErrTransientIO, err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: replace change log: %v", common.ErrTransientIO, err)
	}

	reopened, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0600) // #nosec G304 -- filePath from configuration, not user input
	if err != nil {
		return fmt.Errorf("%w: reopen change log: %v", common.ErrTransientIO, err)
	}
	_ = s.file.Close()
	s.file = reopened
	return nil
}
