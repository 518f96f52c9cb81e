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
	"sync/atomic"
	"time"
)

// Metrics tracks sync performance and outcome counters. All fields use
// atomic operations for thread-safe updates.
type Metrics struct {
	totalRowsPushed atomic.Int64
	totalRowsPulled atomic.Int64
	totalConflicts  atomic.Int64
	totalRowErrors  atomic.Int64

	lastSyncTime      atomic.Int64 // unix nanoseconds
	totalSyncDuration atomic.Int64 // nanoseconds
	syncCount         atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncrementRowsPushed increments the pushed-row counter.
func (m *Metrics) IncrementRowsPushed(count int64) {
	m.totalRowsPushed.Add(count)
}

// IncrementRowsPulled increments the pulled-row counter.
func (m *Metrics) IncrementRowsPulled(count int64) {
	m.totalRowsPulled.Add(count)
}

// IncrementConflicts increments the conflict counter.
func (m *Metrics) IncrementConflicts(count int64) {
	m.totalConflicts.Add(count)
}

// IncrementRowErrors increments the per-row error counter.
func (m *Metrics) IncrementRowErrors(count int64) {
	m.totalRowErrors.Add(count)
}

// RecordSync records the completion of a synchronize run.
func (m *Metrics) RecordSync(duration time.Duration) {
	m.lastSyncTime.Store(time.Now().UnixNano())
	m.totalSyncDuration.Add(duration.Nanoseconds())
	m.syncCount.Add(1)
}

// GetLastSyncTime returns the timestamp of the last run, or the zero
// time when no run has completed.
func (m *Metrics) GetLastSyncTime() time.Time {
	nanos := m.lastSyncTime.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// GetAverageSyncDuration returns the average duration of runs.
func (m *Metrics) GetAverageSyncDuration() time.Duration {
	count := m.syncCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(m.totalSyncDuration.Load() / count)
}

// GetSnapshot returns a point-in-time snapshot of all counters.
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRowsPushed:     m.totalRowsPushed.Load(),
		TotalRowsPulled:     m.totalRowsPulled.Load(),
		TotalConflicts:      m.totalConflicts.Load(),
		TotalRowErrors:      m.totalRowErrors.Load(),
		LastSyncTime:        m.GetLastSyncTime(),
		AverageSyncDuration: m.GetAverageSyncDuration(),
		SyncCount:           m.syncCount.Load(),
	}
}

// MetricsSnapshot represents a point-in-time snapshot of sync metrics.
type MetricsSnapshot struct {
	TotalRowsPushed     int64         `json:"total_rows_pushed"`
	TotalRowsPulled     int64         `json:"total_rows_pulled"`
	TotalConflicts      int64         `json:"total_conflicts"`
	TotalRowErrors      int64         `json:"total_row_errors"`
	LastSyncTime        time.Time     `json:"last_sync_time"`
	AverageSyncDuration time.Duration `json:"average_sync_duration"`
	SyncCount           int64         `json:"sync_count"`
}
