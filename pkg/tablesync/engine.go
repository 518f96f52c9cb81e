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

// Package tablesync is the caller-facing entry point. It wires the
// change tracker, storage providers, checkpoint store, and orchestrator
// together from a single SyncConfig and exposes the operations an
// application needs: record a local change, run one sync pass, or run
// continuously in the background.
package tablesync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/jeremyhahn/go-tablesync/pkg/adapters"
	"github.com/jeremyhahn/go-tablesync/pkg/changelog"
	"github.com/jeremyhahn/go-tablesync/pkg/checkpoint"
	"github.com/jeremyhahn/go-tablesync/pkg/common"
	"github.com/jeremyhahn/go-tablesync/pkg/conflict"
	"github.com/jeremyhahn/go-tablesync/pkg/provider"
	"github.com/jeremyhahn/go-tablesync/pkg/retry"
	"github.com/jeremyhahn/go-tablesync/pkg/sync"
)

// Engine owns the lifecycle of one sync pairing.
type Engine struct {
	cfg          common.SyncConfig
	logger       adapters.Logger
	tracker      *changelog.Tracker
	local        common.StorageProvider
	remote       common.StorageProvider
	checkpoints  checkpoint.Store
	orchestrator *sync.Orchestrator
	watcher      *sync.RemoteWatcher
	progress     common.ProgressFunc

	mu       gosync.Mutex
	stopChan chan struct{}
	doneChan chan struct{}
	closed   bool
}

// Option customizes Engine construction.
type Option func(*options)

type options struct {
	logger   adapters.Logger
	resolver conflict.Resolver
	retryCfg *retry.Config
	progress common.ProgressFunc
	watch    bool
}

// WithLogger sets the logger used by all components.
func WithLogger(logger adapters.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithResolver overrides the default manual conflict resolver.
func WithResolver(resolver conflict.Resolver) Option {
	return func(o *options) { o.resolver = resolver }
}

// WithRetry overrides the default retry policy.
func WithRetry(cfg *retry.Config) Option {
	return func(o *options) { o.retryCfg = cfg }
}

// WithProgress sets a callback invoked with sync progress updates.
func WithProgress(fn common.ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// WithRemoteWatch enables the remote-path watcher so Run also syncs
// when the remote replica changes, not just on the interval tick.
func WithRemoteWatch() Option {
	return func(o *options) { o.watch = true }
}

// New builds a fully wired Engine from cfg.
func New(cfg common.SyncConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{
		logger:   adapters.NewDefaultLogger(),
		retryCfg: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}

	local, err := provider.New(cfg.Provider, cfg.ProviderSettings(cfg.LocalPath))
	if err != nil {
		return nil, fmt.Errorf("local replica: %w", err)
	}
	remote, err := provider.New(cfg.Provider, cfg.ProviderSettings(cfg.RemotePath))
	if err != nil {
		_ = local.Close()
		return nil, fmt.Errorf("remote replica: %w", err)
	}

	store, err := newChangeLogStore(cfg)
	if err != nil {
		_ = local.Close()
		_ = remote.Close()
		return nil, fmt.Errorf("change log: %w", err)
	}
	tracker := changelog.NewTracker(store, o.logger)

	checkpoints, err := checkpoint.NewFileStore(nil, checkpointPath(cfg))
	if err != nil {
		_ = tracker.Close()
		_ = local.Close()
		_ = remote.Close()
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}

	orchestrator, err := sync.NewOrchestrator(cfg, sync.Deps{
		Tracker:     tracker,
		Local:       local,
		Remote:      remote,
		Checkpoints: checkpoints,
		Resolver:    o.resolver,
		Retry:       o.retryCfg,
		Logger:      o.logger,
	})
	if err != nil {
		_ = tracker.Close()
		_ = local.Close()
		_ = remote.Close()
		return nil, err
	}

	e := &Engine{
		cfg:          cfg,
		logger:       o.logger,
		tracker:      tracker,
		local:        local,
		remote:       remote,
		checkpoints:  checkpoints,
		orchestrator: orchestrator,
		progress:     o.progress,
	}

	if o.watch {
		watcher, err := sync.NewRemoteWatcher(cfg.RemotePath, sync.RemoteWatcherConfig{
			Logger: o.logger,
		})
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("remote watcher: %w", err)
		}
		e.watcher = watcher
	}

	return e, nil
}

// RecordChange appends a local mutation to the change log. Applications
// call this alongside every local write they want propagated.
func (e *Engine) RecordChange(table, recordID string, op common.OperationType) error {
	return e.tracker.RecordChange(table, recordID, op)
}

// UnsyncedChanges returns the pending change-log entries for table.
func (e *Engine) UnsyncedChanges(table string) ([]common.ChangeLogEntry, error) {
	return e.tracker.Unsynced(table)
}

// Checkpoints returns the persisted per-table checkpoints.
func (e *Engine) Checkpoints() ([]common.Checkpoint, error) {
	return e.checkpoints.All()
}

// Synchronize runs one push/pull pass over all configured tables.
func (e *Engine) Synchronize(ctx context.Context) *common.SyncResult {
	return e.orchestrator.Synchronize(ctx, e.progress)
}

// State returns the orchestrator's current run state.
func (e *Engine) State() sync.RunState {
	return e.orchestrator.State()
}

// Metrics returns cumulative sync metrics.
func (e *Engine) Metrics() sync.MetricsSnapshot {
	return e.orchestrator.GetMetrics().GetSnapshot()
}

// Run synchronizes on the given interval until ctx is cancelled or
// Stop is called. When the remote watcher is enabled, remote activity
// triggers an immediate pass as well. Overlapping triggers are safe;
// the orchestrator rejects concurrent runs.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return common.ErrStoreClosed
	}
	if e.stopChan != nil {
		e.mu.Unlock()
		return common.ErrSyncInProgress
	}
	e.stopChan = make(chan struct{})
	e.doneChan = make(chan struct{})
	stopChan, doneChan := e.stopChan, e.doneChan
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.stopChan == stopChan {
			e.stopChan = nil
			e.doneChan = nil
		}
		e.mu.Unlock()
		close(doneChan)
	}()

	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var watchEvents <-chan sync.RemoteEvent
	if e.watcher != nil {
		watchEvents = e.watcher.Events()
	}

	e.logger.Info(ctx, "Background sync started",
		adapters.Field{Key: "interval", Value: interval.String()},
		adapters.Field{Key: "watching", Value: e.watcher != nil})

	// Initial pass so a fresh start does not wait a full interval.
	e.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopChan:
			return nil
		case <-ticker.C:
			e.runOnce(ctx)
		case _, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			e.runOnce(ctx)
		}
	}
}

// Stop halts a Run loop and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	stopChan, doneChan := e.stopChan, e.doneChan
	e.stopChan = nil
	e.doneChan = nil
	e.mu.Unlock()

	if stopChan == nil {
		return
	}
	close(stopChan)
	<-doneChan
}

// Close stops any background loop and releases all resources.
func (e *Engine) Close() error {
	e.Stop()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	var errs []string
	if e.watcher != nil {
		if err := e.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Sprintf("watcher: %v", err))
		}
	}
	if e.tracker != nil {
		if err := e.tracker.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("change log: %v", err))
		}
	}
	if e.local != nil {
		if err := e.local.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("local replica: %v", err))
		}
	}
	if e.remote != nil {
		if err := e.remote.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("remote replica: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (e *Engine) runOnce(ctx context.Context) {
	result := e.orchestrator.Synchronize(ctx, e.progress)
	if !result.Success && !errors.Is(result.Err, common.ErrSyncInProgress) {
		e.logger.Warn(ctx, "Sync pass failed",
			adapters.Field{Key: "message", Value: result.Message})
	}
}

// newChangeLogStore picks the change-log backend per ChangeLogFormat.
// Memory-provider pairings are ephemeral, so their log is too.
func newChangeLogStore(cfg common.SyncConfig) (changelog.Store, error) {
	if cfg.Provider == provider.KindMemory {
		return changelog.NewMemoryStore(), nil
	}

	path := cfg.ChangeLogPath
	switch cfg.ChangeLogFormat {
	case common.ChangeLogFormatJSONL:
		if path == "" {
			path = siblingPath(cfg.LocalPath, ".tablesync-changelog.jsonl")
		}
		return changelog.NewJSONLStore(path)
	case common.ChangeLogFormatSQLite, "":
		if path == "" {
			path = siblingPath(cfg.LocalPath, ".tablesync-changelog.db")
		}
		return changelog.NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownChangeLogFormat, cfg.ChangeLogFormat)
	}
}

func checkpointPath(cfg common.SyncConfig) string {
	if cfg.CheckpointPath != "" {
		return cfg.CheckpointPath
	}
	return siblingPath(cfg.LocalPath, ".tablesync-checkpoints.json")
}

func siblingPath(localPath, name string) string {
	return filepath.Join(filepath.Dir(localPath), name)
}
