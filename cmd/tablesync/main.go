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

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-tablesync/pkg/adapters"
	"github.com/jeremyhahn/go-tablesync/pkg/cli"
	"github.com/jeremyhahn/go-tablesync/pkg/common"
	"github.com/jeremyhahn/go-tablesync/pkg/tablesync"
	"github.com/jeremyhahn/go-tablesync/pkg/version"
)

var (
	cfgFile      string
	viperConfig  *viper.Viper
	globalConfig *cli.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tablesync",
	Short: "Bidirectional table synchronization between two database replicas",
	Long: `tablesync keeps tables in a local database replica eventually consistent
with a remote replica that is only intermittently reachable, such as a
database file on a network share.

Each run pushes locally recorded changes to the remote replica, pulls
remote changes made since the last checkpoint, and reports rows changed
on both sides as conflicts for manual resolution.

Configuration can be provided via:
  - Command-line flags (highest priority)
  - Environment variables (TABLESYNC_*)
  - Configuration file (~/.tablesync.yaml or ./.tablesync.yaml)
  - Default values (lowest priority)`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize viper configuration
		var err error
		viperConfig, err = cli.InitConfig(cfgFile)
		if err != nil {
			return err
		}

		// Bind flags to viper
		if err := viperConfig.BindPFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("failed to bind flags: %w", err)
		}

		// Get the configuration
		globalConfig = cli.GetConfig(viperConfig)

		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass",
	Long: `Run one push/pull pass over all configured tables and print the
result. Conflicts are reported but never applied automatically.`,
	Example: `  tablesync sync --local-path ./app.db --remote-path /mnt/share/app.db --tables customers,orders
  tablesync sync --output-format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			fmt.Fprintln(os.Stderr, cli.FormatError(err, outputFormat()))
			return err
		}
		defer func() { _ = engine.Close() }()

		result := engine.Synchronize(cmd.Context())
		fmt.Print(cli.FormatSyncResult(result, outputFormat()))
		if !result.Success {
			return result.Err
		}
		return nil
	},
}

var recordCmd = &cobra.Command{
	Use:   "record <table> <record-id> <operation>",
	Short: "Record a local change in the change log",
	Long: `Record a local mutation so the next sync pass pushes it to the
remote replica. The operation must be insert, update, or delete.`,
	Example: `  tablesync record customers 550e8400-e29b-41d4-a716-446655440000 update
  tablesync record orders abc123 delete`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			fmt.Fprintln(os.Stderr, cli.FormatError(err, outputFormat()))
			return err
		}
		defer func() { _ = engine.Close() }()

		op := common.OperationType(args[2])
		if err := engine.RecordChange(args[0], args[1], op); err != nil {
			fmt.Fprintln(os.Stderr, cli.FormatError(err, outputFormat()))
			return err
		}
		fmt.Printf("Recorded %s of %s/%s\n", op, args[0], args[1])
		return nil
	},
}

var changesCmd = &cobra.Command{
	Use:   "changes <table>",
	Short: "List pending change-log entries for a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			fmt.Fprintln(os.Stderr, cli.FormatError(err, outputFormat()))
			return err
		}
		defer func() { _ = engine.Close() }()

		entries, err := engine.UnsyncedChanges(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, cli.FormatError(err, outputFormat()))
			return err
		}
		fmt.Print(cli.FormatChanges(entries, outputFormat()))
		return nil
	},
}

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Show the per-table sync checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			fmt.Fprintln(os.Stderr, cli.FormatError(err, outputFormat()))
			return err
		}
		defer func() { _ = engine.Close() }()

		checkpoints, err := engine.Checkpoints()
		if err != nil {
			fmt.Fprintln(os.Stderr, cli.FormatError(err, outputFormat()))
			return err
		}
		fmt.Print(cli.FormatCheckpoints(checkpoints, outputFormat()))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Synchronize continuously until interrupted",
	Long: `Run sync passes on the configured interval until interrupted. With
--watch, remote replica activity triggers an immediate pass as well.`,
	Example: `  tablesync watch --interval 1m
  tablesync watch --watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, err := time.ParseDuration(globalConfig.Interval)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", globalConfig.Interval, err)
		}

		engine, err := newEngine()
		if err != nil {
			fmt.Fprintln(os.Stderr, cli.FormatError(err, outputFormat()))
			return err
		}
		defer func() { _ = engine.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := engine.Run(ctx, interval); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Provider:             %s\n", globalConfig.Sync.Provider)
		fmt.Printf("Local path:           %s\n", globalConfig.Sync.LocalPath)
		fmt.Printf("Remote path:          %s\n", globalConfig.Sync.RemotePath)
		fmt.Printf("Tables:               %v\n", globalConfig.Sync.Tables)
		fmt.Printf("Primary key column:   %s\n", globalConfig.Sync.PrimaryKeyColumn)
		fmt.Printf("Last modified column: %s\n", globalConfig.Sync.LastModifiedColumn)
		fmt.Printf("Is deleted column:    %s\n", globalConfig.Sync.IsDeletedColumn)
		fmt.Printf("Output format:        %s\n", globalConfig.OutputFormat)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tablesync version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get())
	},
}

func newEngine() (*tablesync.Engine, error) {
	logger := adapters.NewDefaultLogger()
	logger.SetLevel(adapters.ParseLevel(globalConfig.LogLevel))

	opts := []tablesync.Option{tablesync.WithLogger(logger)}
	if globalConfig.Watch {
		opts = append(opts, tablesync.WithRemoteWatch())
	}
	return tablesync.New(globalConfig.Sync, opts...)
}

func outputFormat() cli.OutputFormat {
	return cli.OutputFormat(globalConfig.OutputFormat)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tablesync.yaml)")
	rootCmd.PersistentFlags().String("provider", "sqlite", "storage provider (sqlite, memory)")
	rootCmd.PersistentFlags().String("local-path", "", "path of the local replica database")
	rootCmd.PersistentFlags().String("remote-path", "", "path of the remote replica database")
	rootCmd.PersistentFlags().StringSlice("tables", nil, "tables to synchronize")
	rootCmd.PersistentFlags().String("primary-key-column", "id", "record identity column")
	rootCmd.PersistentFlags().String("last-modified-column", "last_modified", "modification timestamp column")
	rootCmd.PersistentFlags().String("is-deleted-column", "", "soft-delete marker column")
	rootCmd.PersistentFlags().String("change-log-path", "", "change log location (default next to local replica)")
	rootCmd.PersistentFlags().String("change-log-format", "sqlite", "change log backend (sqlite, jsonl)")
	rootCmd.PersistentFlags().String("checkpoint-path", "", "checkpoint file location (default next to local replica)")
	rootCmd.PersistentFlags().String("output-format", "text", "output format (text, json)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	watchCmd.Flags().String("interval", "30s", "interval between sync passes")
	watchCmd.Flags().Bool("watch", false, "also sync on remote replica file activity")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
