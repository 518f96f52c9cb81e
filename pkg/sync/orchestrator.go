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

// Package sync drives the push/pull protocol between the local and
// remote replicas: one Orchestrator run pushes the local change log,
// pulls remote changes since each table's checkpoint, detects
// conflicts, and advances checkpoints incrementally.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-tablesync/pkg/adapters"
	"github.com/jeremyhahn/go-tablesync/pkg/changelog"
	"github.com/jeremyhahn/go-tablesync/pkg/checkpoint"
	"github.com/jeremyhahn/go-tablesync/pkg/common"
	"github.com/jeremyhahn/go-tablesync/pkg/conflict"
	"github.com/jeremyhahn/go-tablesync/pkg/retry"
)

// RunState is the orchestrator's position within a run.
type RunState string

const (
	// StateIdle means no run is active.
	StateIdle RunState = "idle"
	// StatePushing means the current table's push phase is running.
	StatePushing RunState = "pushing"
	// StatePulling means the current table's pull phase is running.
	StatePulling RunState = "pulling"
	// StateCompleted means the last run finished without a fatal error.
	StateCompleted RunState = "completed"
	// StateFailed means the last run stopped on a fatal error.
	StateFailed RunState = "failed"
)

// Deps are the collaborators an Orchestrator consumes. All dependencies
// are passed explicitly; the orchestrator performs no global lookups.
type Deps struct {
	Tracker     *changelog.Tracker
	Local       common.StorageProvider
	Remote      common.StorageProvider
	Checkpoints checkpoint.Store
	Resolver    conflict.Resolver
	Retry       *retry.Config
	Logger      adapters.Logger
	Metrics     *Metrics
}

// Orchestrator drives the push then pull phase per configured table.
// Only one run may be active at a time per local replica; a second
// concurrent Synchronize call on the same Orchestrator fails fast, and
// callers coordinating multiple processes must hold their own mutual
// exclusion around the replica.
type Orchestrator struct {
	cfg      common.SyncConfig
	tracker  *changelog.Tracker
	local    common.StorageProvider
	remote   common.StorageProvider
	cps      checkpoint.Store
	detector *conflict.Detector
	resolver conflict.Resolver
	retryCfg *retry.Config
	logger   adapters.Logger
	metrics  *Metrics

	running atomic.Bool
	state   atomic.Value // RunState
}

// NewOrchestrator creates an Orchestrator for the given configuration
// and collaborators.
func NewOrchestrator(cfg common.SyncConfig, deps Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Tracker == nil {
		return nil, errors.New("change tracker is required")
	}
	if deps.Local == nil || deps.Remote == nil {
		return nil, errors.New("local and remote storage providers are required")
	}
	if deps.Checkpoints == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if deps.Resolver == nil {
		deps.Resolver = conflict.NewManualResolver()
	}
	if deps.Logger == nil {
		deps.Logger = adapters.NewNoOpLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}

	o := &Orchestrator{
		cfg:      cfg,
		tracker:  deps.Tracker,
		local:    deps.Local,
		remote:   deps.Remote,
		cps:      deps.Checkpoints,
		detector: conflict.NewDetector(cfg.PrimaryKeyColumn),
		resolver: deps.Resolver,
		retryCfg: deps.Retry,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
	}
	o.state.Store(StateIdle)
	return o, nil
}

// State returns the orchestrator's current run state.
func (o *Orchestrator) State() RunState {
	return o.state.Load().(RunState)
}

// GetMetrics returns the orchestrator's metrics.
func (o *Orchestrator) GetMetrics() *Metrics {
	return o.metrics
}

// Synchronize runs one push/pull pass over every configured table, in
// configuration order. It never returns an error for expected failure
// modes: the outcome, including the causing error for a fatal failure,
// is carried in the SyncResult. Cancellation stops the run at the next
// table boundary; within a table the row loops stop early, entries
// already pushed stay marked, and an interrupted pull keeps its
// previous checkpoint.
func (o *Orchestrator) Synchronize(ctx context.Context, progress common.ProgressFunc) *common.SyncResult {
	startTime := time.Now()
	result := &common.SyncResult{Success: true}

	if !o.running.CompareAndSwap(false, true) {
		result.Success = false
		result.Message = "a synchronization run is already active"
		result.Err = common.ErrSyncInProgress
		return result
	}
	defer o.running.Store(false)

	totalPhases := len(o.cfg.Tables) * 2
	phase := 0

	for _, table := range o.cfg.Tables {
		if err := ctx.Err(); err != nil {
			o.fail(result, table, fmt.Errorf("run cancelled: %w", err))
			break
		}

		o.state.Store(StatePushing)
		notify(progress, phase*100/totalPhases, "pushing "+table)
		phase++

		if err := o.pushTable(ctx, table, result); err != nil {
			o.fail(result, table, err)
			break
		}

		o.state.Store(StatePulling)
		notify(progress, phase*100/totalPhases, "pulling "+table)
		phase++

		if err := o.pullTable(ctx, table, result); err != nil {
			o.fail(result, table, err)
			break
		}

		result.TablesSynced++
	}

	result.Duration = time.Since(startTime)

	if result.Success {
		o.state.Store(StateCompleted)
		result.Message = fmt.Sprintf("synchronized %d table(s)", result.TablesSynced)
		notify(progress, 100, "completed")
	}

	o.metrics.IncrementRowsPushed(int64(result.RowsPushed))
	o.metrics.IncrementRowsPulled(int64(result.RowsPulled))
	o.metrics.IncrementConflicts(int64(len(result.Conflicts)))
	o.metrics.RecordSync(result.Duration)

	o.logger.Info(ctx, "Sync run finished",
		adapters.Field{Key: "success", Value: result.Success},
		adapters.Field{Key: "tables_synced", Value: result.TablesSynced},
		adapters.Field{Key: "rows_pushed", Value: result.RowsPushed},
		adapters.Field{Key: "rows_pulled", Value: result.RowsPulled},
		adapters.Field{Key: "conflicts", Value: len(result.Conflicts)},
		adapters.Field{Key: "duration", Value: result.Duration.String()})

	return result
}

// pushTable sends the table's unsynced change-log entries to the remote
// replica. Each row write is independent: a row failure is recorded and
// processing continues. Entries whose write succeeded are marked synced
// in one batch at the end. A returned error is fatal to the run.
func (o *Orchestrator) pushTable(ctx context.Context, table string, result *common.SyncResult) error {
	entries, err := o.tracker.Unsynced(table)
	if err != nil {
		return fmt.Errorf("failed to read change log for %s: %w", table, err)
	}
	if len(entries) == 0 {
		o.logger.Debug(ctx, "No local changes to push",
			adapters.Field{Key: "table", Value: table})
		return nil
	}

	var succeeded []common.ChangeLogEntry
	var cancelled error

	for _, entry := range entries {
		// Cancellation mid-table: stop the row loop rather than recording
		// a context error for every remaining entry.
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}

		record, skip, err := o.loadPushRecord(ctx, table, entry)
		if err != nil {
			if errors.Is(err, common.ErrSchemaMismatch) || errors.Is(err, common.ErrTableNotFound) {
				return err
			}
			o.recordRowError(ctx, result, table, entry.RecordID, entry.Operation, err)
			continue
		}
		if skip {
			// The row vanished locally after the change was recorded; a
			// later change-log entry carries the final state.
			succeeded = append(succeeded, entry)
			continue
		}

		_, err = retry.Do(ctx, o.retryCfg, func() (struct{}, error) {
			return struct{}{}, o.remote.WriteRow(ctx, table, record, entry.Operation)
		})
		if err != nil {
			if errors.Is(err, common.ErrSchemaMismatch) || errors.Is(err, common.ErrTableNotFound) {
				return err
			}
			o.recordRowError(ctx, result, table, entry.RecordID, entry.Operation, err)
			continue
		}

		succeeded = append(succeeded, entry)
		result.RowsPushed++
	}

	if err := o.tracker.MarkSynced(succeeded); err != nil {
		// Unmarked entries are re-pushed next run; remote writes are
		// keyed on identity, so the replay is harmless.
		o.logger.Warn(ctx, "Failed to mark entries synced",
			adapters.Field{Key: "table", Value: table},
			adapters.Field{Key: "error", Value: err.Error()})
	}

	o.logger.Info(ctx, "Push phase completed",
		adapters.Field{Key: "table", Value: table},
		adapters.Field{Key: "pushed", Value: len(succeeded)},
		adapters.Field{Key: "total", Value: len(entries)})

	if cancelled != nil {
		return fmt.Errorf("run cancelled: %w", cancelled)
	}
	return nil
}

// loadPushRecord resolves the record to push for a change-log entry.
// Deletes need only the identity column; other operations read the
// current local row. skip is true when the local row no longer exists.
func (o *Orchestrator) loadPushRecord(ctx context.Context, table string, entry common.ChangeLogEntry) (common.Record, bool, error) {
	if entry.Operation == common.OpDelete {
		return common.Record{o.cfg.PrimaryKeyColumn: entry.RecordID}, false, nil
	}

	record, err := retry.Do(ctx, o.retryCfg, func() (common.Record, error) {
		return o.local.ReadRow(ctx, table, entry.RecordID)
	})
	if err != nil {
		if errors.Is(err, common.ErrRecordNotFound) {
			o.logger.Warn(ctx, "Local row missing for change entry, skipping",
				adapters.Field{Key: "table", Value: table},
				adapters.Field{Key: "record_id", Value: entry.RecordID},
				adapters.Field{Key: "operation", Value: string(entry.Operation)})
			return nil, true, nil
		}
		return nil, false, err
	}
	return record, false, nil
}

// pullTable fetches remote rows modified after the table's checkpoint,
// detects conflicts against the current unsynced local entries, applies
// every non-conflicting row locally, and advances the checkpoint only
// after all of them applied. A returned error is fatal to the run.
func (o *Orchestrator) pullTable(ctx context.Context, table string, result *common.SyncResult) error {
	cp, haveCheckpoint, err := o.cps.Get(table)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint for %s: %w", table, err)
	}

	var since *time.Time
	if haveCheckpoint {
		since = &cp
	}

	remoteRows, err := retry.Do(ctx, o.retryCfg, func() ([]common.Record, error) {
		return o.remote.ReadRows(ctx, table, since)
	})
	if err != nil {
		return fmt.Errorf("failed to read remote rows for %s: %w", table, err)
	}
	if len(remoteRows) == 0 {
		o.logger.Debug(ctx, "No remote changes to pull",
			adapters.Field{Key: "table", Value: table})
		return nil
	}

	// Re-fetch: the push phase just cleared some entries.
	localEntries, err := o.tracker.Unsynced(table)
	if err != nil {
		return fmt.Errorf("failed to read change log for %s: %w", table, err)
	}

	conflicts, clean := o.detector.Detect(table, remoteRows, localEntries)
	result.Conflicts = append(result.Conflicts, conflicts...)

	if len(conflicts) > 0 {
		resolutions, err := o.resolver.Resolve(ctx, conflicts)
		if err != nil {
			return fmt.Errorf("conflict resolution failed for %s: %w", table, err)
		}
		for _, res := range resolutions {
			if err := o.applyLocal(ctx, table, res.Record, res.Op); err != nil {
				return err
			}
		}
		o.logger.Warn(ctx, "Conflicts detected",
			adapters.Field{Key: "table", Value: table},
			adapters.Field{Key: "count", Value: len(conflicts)},
			adapters.Field{Key: "strategy", Value: string(o.resolver.Strategy())})
	}

	applyFailures := 0
	var maxObserved time.Time
	for _, row := range remoteRows {
		if ts, ok := row.Time(o.cfg.LastModifiedColumn); ok && ts.After(maxObserved) {
			maxObserved = ts
		}
	}

	for _, row := range clean {
		// Cancellation mid-table: the checkpoint stays put and the whole
		// window is re-pulled next run; applies are idempotent.
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled: %w", err)
		}

		op := common.OpUpsert
		if o.cfg.IsDeletedColumn != "" && row.Bool(o.cfg.IsDeletedColumn) {
			op = common.OpDelete
		}

		if err := o.applyLocal(ctx, table, row, op); err != nil {
			if errors.Is(err, common.ErrSchemaMismatch) || errors.Is(err, common.ErrTableNotFound) {
				return err
			}
			key, _ := row.Key(o.cfg.PrimaryKeyColumn)
			o.recordRowError(ctx, result, table, key, op, err)
			applyFailures++
			continue
		}
		result.RowsPulled++
	}

	// The checkpoint is the resumability contract: it moves only when
	// every non-conflicting row is durably applied. With failures the
	// table is re-pulled next run; applies are idempotent.
	if applyFailures > 0 {
		o.logger.Warn(ctx, "Checkpoint not advanced due to row failures",
			adapters.Field{Key: "table", Value: table},
			adapters.Field{Key: "failures", Value: applyFailures})
		return nil
	}
	if maxObserved.IsZero() || (haveCheckpoint && !maxObserved.After(cp)) {
		return nil
	}

	if err := o.cps.Set(table, maxObserved); err != nil {
		return fmt.Errorf("failed to advance checkpoint for %s: %w", table, err)
	}

	o.logger.Info(ctx, "Pull phase completed",
		adapters.Field{Key: "table", Value: table},
		adapters.Field{Key: "pulled", Value: len(clean)},
		adapters.Field{Key: "conflicts", Value: len(conflicts)},
		adapters.Field{Key: "checkpoint", Value: maxObserved})

	return nil
}

// applyLocal writes one pulled row to the local replica with retry.
func (o *Orchestrator) applyLocal(ctx context.Context, table string, row common.Record, op common.OperationType) error {
	_, err := retry.Do(ctx, o.retryCfg, func() (struct{}, error) {
		return struct{}{}, o.local.WriteRow(ctx, table, row, op)
	})
	return err
}

// recordRowError aggregates a per-row failure without aborting the table.
func (o *Orchestrator) recordRowError(ctx context.Context, result *common.SyncResult, table, recordID string, op common.OperationType, err error) {
	rowErr := &common.RowError{Table: table, RecordID: recordID, Operation: op, Err: err}
	result.AddTableError(table, rowErr.Error())
	o.metrics.IncrementRowErrors(1)
	o.logger.Error(ctx, "Row sync failed",
		adapters.Field{Key: "table", Value: table},
		adapters.Field{Key: "record_id", Value: recordID},
		adapters.Field{Key: "operation", Value: string(op)},
		adapters.Field{Key: "error", Value: err.Error()})
}

// fail finalizes the result for a fatal error. Remaining tables are
// skipped; checkpoints already advanced are preserved.
func (o *Orchestrator) fail(result *common.SyncResult, table string, err error) {
	o.state.Store(StateFailed)
	result.Success = false
	result.Err = err
	result.Message = fmt.Sprintf("synchronization stopped at table %s: %v", table, err)
}

func notify(progress common.ProgressFunc, percent int, message string) {
	if progress != nil {
		progress(percent, message)
	}
}
