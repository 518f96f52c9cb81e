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

package conflict

import (
	"context"

	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

// Strategy identifies a conflict resolution policy.
type Strategy string

const (
	// StrategyManual surfaces every conflict to the caller and resolves
	// nothing automatically. The only strategy shipped.
	StrategyManual Strategy = "manual"

	// StrategyKeepLocal would prefer the local version. Extension point.
	StrategyKeepLocal Strategy = "keep-local"

	// StrategyTakeRemote would prefer the remote version. Extension point.
	StrategyTakeRemote Strategy = "take-remote"

	// StrategyMerge would merge column-wise. Extension point.
	StrategyMerge Strategy = "merge"
)

// Resolution is a write a resolver has decided should be applied to the
// local replica.
type Resolution struct {
	Record common.Record
	Op     common.OperationType
}

// Resolver decides what, if anything, to write back for a set of
// conflicts. Implementations must not touch either replica themselves;
// the orchestrator applies whatever resolutions are returned.
type Resolver interface {
	// Strategy identifies the policy this resolver implements.
	Strategy() Strategy

	// Resolve inspects the conflicts and returns the writes to apply.
	Resolve(ctx context.Context, conflicts []common.Conflict) ([]Resolution, error)
}

// ManualResolver is the default and only required resolver: it always
// returns an empty result, so no conflicted record is ever auto-written.
// Conflicts reach the caller through SyncResult.Conflicts instead.
type ManualResolver struct{}

// NewManualResolver creates the manual (non-resolving) resolver.
func NewManualResolver() *ManualResolver {
	return &ManualResolver{}
}

// Strategy returns StrategyManual.
func (r *ManualResolver) Strategy() Strategy {
	return StrategyManual
}

// Resolve returns no resolutions and performs no writes.
func (r *ManualResolver) Resolve(ctx context.Context, conflicts []common.Conflict) ([]Resolution, error) {
	return nil, nil
}
