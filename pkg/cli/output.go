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

package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

// OutputFormat defines the output format type.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// FormatSyncResult formats the outcome of a synchronize run.
func FormatSyncResult(result *common.SyncResult, format OutputFormat) string {
	if format == FormatJSON {
		return formatJSON(result)
	}
	return formatSyncResultText(result)
}

// FormatChanges formats pending change-log entries.
func FormatChanges(entries []common.ChangeLogEntry, format OutputFormat) string {
	if format == FormatJSON {
		return formatJSON(entries)
	}
	if len(entries) == 0 {
		return "No pending changes\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d pending change(s):\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "  %s  %-6s  %s/%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Operation, e.Table, e.RecordID)
	}
	return b.String()
}

// FormatCheckpoints formats the per-table sync checkpoints.
func FormatCheckpoints(checkpoints []common.Checkpoint, format OutputFormat) string {
	if format == FormatJSON {
		return formatJSON(checkpoints)
	}
	if len(checkpoints) == 0 {
		return "No checkpoints recorded\n"
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].Table < checkpoints[j].Table
	})

	var b strings.Builder
	for _, cp := range checkpoints {
		fmt.Fprintf(&b, "%-24s %s\n", cp.Table, cp.LastSyncedAt.Format("2006-01-02 15:04:05.000000000"))
	}
	return b.String()
}

// FormatError formats an error message in the specified format.
func FormatError(err error, format OutputFormat) string {
	if format == FormatJSON {
		return formatJSON(map[string]any{"success": false, "error": err.Error()})
	}
	return fmt.Sprintf("Error: %s\n", err.Error())
}

func formatSyncResultText(result *common.SyncResult) string {
	var b strings.Builder

	if result.Success {
		fmt.Fprintf(&b, "Sync completed: %s\n", result.Message)
	} else {
		fmt.Fprintf(&b, "Sync failed: %s\n", result.Message)
	}
	fmt.Fprintf(&b, "  Tables synced: %d\n", result.TablesSynced)
	fmt.Fprintf(&b, "  Rows pushed:   %d\n", result.RowsPushed)
	fmt.Fprintf(&b, "  Rows pulled:   %d\n", result.RowsPulled)
	fmt.Fprintf(&b, "  Duration:      %s\n", result.Duration)

	if len(result.Conflicts) > 0 {
		fmt.Fprintf(&b, "  Conflicts (%d), manual resolution required:\n", len(result.Conflicts))
		for _, c := range result.Conflicts {
			fmt.Fprintf(&b, "    %s/%s (%s)\n", c.Table, c.RecordID, c.ConflictType)
		}
	}

	if len(result.TableErrors) > 0 {
		tables := make([]string, 0, len(result.TableErrors))
		for table := range result.TableErrors {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		b.WriteString("  Row errors:\n")
		for _, table := range tables {
			for _, msg := range result.TableErrors[table] {
				fmt.Fprintf(&b, "    %s\n", msg)
			}
		}
	}

	return b.String()
}

func formatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to format output: %s"}`, err.Error())
	}
	return string(data) + "\n"
}
