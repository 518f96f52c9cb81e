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

// Package checkpoint persists, per synchronized table, the timestamp of
// the last fully applied pull. Checkpoints are the resumability
// contract: a table whose checkpoint advanced is never re-processed for
// rows already covered by it.
//
// Checkpoint values are the maximum remote-observed last-modified
// timestamp, never the local clock, so clock skew between writers only
// shifts the pull window boundary.
package checkpoint

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

// FileSystem abstracts file access for testability.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
}

// File represents an open checkpoint file.
type File interface {
	io.ReadWriteCloser
	Sync() error
}

// OSFileSystem is the default OS filesystem implementation.
type OSFileSystem struct{}

// OpenFile opens a file using os.OpenFile.
func (fs *OSFileSystem) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm) // #nosec G304 -- paths controlled by application configuration
}

// Remove removes a file using os.Remove.
func (fs *OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// Rename renames a file using os.Rename.
func (fs *OSFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Store is the per-table checkpoint contract consumed by the orchestrator.
type Store interface {
	// Get returns the checkpoint for table; ok is false when the table
	// has never completed a pull.
	Get(table string) (ts time.Time, ok bool, err error)

	// Set advances the checkpoint for table and persists it. Checkpoints
	// are updated, never deleted.
	Set(table string, ts time.Time) error

	// All returns every stored checkpoint.
	All() ([]common.Checkpoint, error)
}

// FileStore persists checkpoints as a single JSON document. Thread-safe.
type FileStore struct {
	fs    FileSystem
	path  string
	mutex sync.RWMutex
	state map[string]time.Time
}

type persistedCheckpoints struct {
	Checkpoints map[string]time.Time `json:"checkpoints"`
}

// NewFileStore creates a checkpoint store backed by the JSON file at
// path, loading any existing state. A nil fs defaults to the OS
// filesystem; an empty path defaults to ".tablesync-checkpoints.json".
func NewFileStore(fs FileSystem, path string) (*FileStore, error) {
	if fs == nil {
		fs = &OSFileSystem{}
	}
	if path == "" {
		path = ".tablesync-checkpoints.json"
	}

	s := &FileStore{
		fs:    fs,
		path:  path,
		state: make(map[string]time.Time),
	}

	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return s, nil
}

// Get returns the checkpoint for table.
func (s *FileStore) Get(table string) (time.Time, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ts, ok := s.state[table]
	return ts, ok, nil
}

// Set advances the checkpoint for table and persists the store.
func (s *FileStore) Set(table string, ts time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.state[table] = ts.UTC()
	return s.save()
}

// All returns every stored checkpoint.
func (s *FileStore) All() ([]common.Checkpoint, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]common.Checkpoint, 0, len(s.state))
	for table, ts := range s.state {
		out = append(out, common.Checkpoint{Table: table, LastSyncedAt: ts})
	}
	return out, nil
}

// save persists the current state. Must be called with mutex locked.
// State goes to a temporary sibling first and is renamed over the live
// file, so an interrupted save leaves the previous checkpoints intact.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(persistedCheckpoints{Checkpoints: s.state}, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	file, err := s.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = s.fs.Remove(tmpPath)
		return err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = s.fs.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return err
	}

	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		_ = s.fs.Remove(tmpPath)
		return err
	}
	return nil
}

// load reads persisted state from disk.
func (s *FileStore) load() error {
	file, err := s.fs.OpenFile(s.path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	var persisted persistedCheckpoints
	if err := json.Unmarshal(data, &persisted); err != nil {
		return err
	}

	if persisted.Checkpoints != nil {
		s.state = persisted.Checkpoints
	}
	return nil
}

// MemoryStore is an in-memory checkpoint store for tests.
type MemoryStore struct {
	mutex sync.RWMutex
	state map[string]time.Time

	// SetErr, when set, is returned by the next Set call.
	SetErr error
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: make(map[string]time.Time)}
}

// Get returns the checkpoint for table.
func (s *MemoryStore) Get(table string) (time.Time, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	ts, ok := s.state[table]
	return ts, ok, nil
}

// Set advances the checkpoint for table.
func (s *MemoryStore) Set(table string, ts time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.SetErr != nil {
		err := s.SetErr
		s.SetErr = nil
		return err
	}
	s.state[table] = ts.UTC()
	return nil
}

// All returns every stored checkpoint.
func (s *MemoryStore) All() ([]common.Checkpoint, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]common.Checkpoint, 0, len(s.state))
	for table, ts := range s.state {
		out = append(out, common.Checkpoint{Table: table, LastSyncedAt: ts})
	}
	return out, nil
}
