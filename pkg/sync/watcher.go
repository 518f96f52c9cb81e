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

package sync

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeremyhahn/go-tablesync/pkg/adapters"
)

// ErrWatcherStopped is returned when a stopped watcher is reused.
var ErrWatcherStopped = errors.New("watcher stopped")

// RemoteEvent signals activity on the remote replica path, typically
// another client finishing a write or the share becoming reachable
// again. Callers use it to trigger an opportunistic sync run.
type RemoteEvent struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// RemoteWatcher watches the directory containing the remote replica and
// emits debounced events when the replica file changes.
type RemoteWatcher struct {
	watcher       *fsnotify.Watcher
	events        chan RemoteEvent
	logger        adapters.Logger
	debounceDelay time.Duration
	target        string

	mu        sync.Mutex
	lastEvent time.Time
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RemoteWatcherConfig contains configuration for a RemoteWatcher.
type RemoteWatcherConfig struct {
	Logger        adapters.Logger
	DebounceDelay time.Duration // default 500ms
	EventBuffer   int           // default 16
}

// NewRemoteWatcher creates a watcher for the remote replica at
// remotePath. The parent directory is watched so the event fires even
// when the replica file is recreated by another client.
func NewRemoteWatcher(remotePath string, config RemoteWatcherConfig) (*RemoteWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if config.Logger == nil {
		config.Logger = adapters.NewNoOpLogger()
	}
	if config.DebounceDelay == 0 {
		config.DebounceDelay = 500 * time.Millisecond
	}
	if config.EventBuffer == 0 {
		config.EventBuffer = 16
	}

	target := filepath.Clean(remotePath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &RemoteWatcher{
		watcher:       watcher,
		events:        make(chan RemoteEvent, config.EventBuffer),
		logger:        config.Logger,
		debounceDelay: config.DebounceDelay,
		target:        target,
		ctx:           ctx,
		cancel:        cancel,
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// Events returns the read-only channel of remote replica events.
func (w *RemoteWatcher) Events() <-chan RemoteEvent {
	return w.events
}

// Stop stops watching and closes the event channel.
func (w *RemoteWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrWatcherStopped
	}
	w.stopped = true
	w.mu.Unlock()

	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	close(w.events)
	return err
}

func (w *RemoteWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if !w.debounce() {
				continue
			}

			w.logger.Debug(w.ctx, "Remote replica activity",
				adapters.Field{Key: "path", Value: event.Name},
				adapters.Field{Key: "op", Value: event.Op.String()})

			select {
			case w.events <- RemoteEvent{Path: event.Name, Timestamp: time.Now()}:
			default:
				// Consumer is behind; events are only a sync trigger,
				// dropping one loses nothing.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(w.ctx, "Watcher error",
				adapters.Field{Key: "error", Value: err.Error()})
		}
	}
}

// relevant filters events down to writes against the replica file
// itself. SQLite sidecar files (-wal, -journal) count as activity too.
func (w *RemoteWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(event.Name)
	if name == w.target {
		return true
	}
	base := filepath.Base(w.target)
	eventBase := filepath.Base(name)
	return eventBase == base+"-wal" || eventBase == base+"-journal"
}

// debounce reports whether enough time has passed since the last
// emitted event.
func (w *RemoteWatcher) debounce() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if now.Sub(w.lastEvent) < w.debounceDelay {
		return false
	}
	w.lastEvent = now
	return true
}
