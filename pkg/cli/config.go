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

// Package cli holds configuration loading and output formatting shared
// by the tablesync command.
package cli

import (
	"os"

	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

// Config holds the CLI configuration settings.
type Config struct {
	Sync         common.SyncConfig
	OutputFormat string
	LogLevel     string
	Interval     string
	Watch        bool
}

// InitConfig initializes the configuration using Viper.
// Configuration priority: flags > env vars > config file > defaults.
func InitConfig(cfgFile string) (*viper.Viper, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("provider", "sqlite")
	v.SetDefault("change-log-format", "sqlite")
	v.SetDefault("primary-key-column", "id")
	v.SetDefault("last-modified-column", "last_modified")
	v.SetDefault("output-format", "text")
	v.SetDefault("log-level", "info")
	v.SetDefault("interval", "30s")

	// Set config file search paths
	if cfgFile != "" {
		// Use config file from the flag if provided
		v.SetConfigFile(cfgFile)
	} else {
		// Search for config in home directory and current directory
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".tablesync")
		v.SetConfigType("yaml")
	}

	// Bind environment variables
	v.SetEnvPrefix("TABLESYNC")
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return v, nil
}

// GetConfig extracts the configuration from Viper into a Config struct.
func GetConfig(v *viper.Viper) *Config {
	return &Config{
		Sync: common.SyncConfig{
			Provider:           v.GetString("provider"),
			LocalPath:          v.GetString("local-path"),
			RemotePath:         v.GetString("remote-path"),
			Tables:             v.GetStringSlice("tables"),
			PrimaryKeyColumn:   v.GetString("primary-key-column"),
			LastModifiedColumn: v.GetString("last-modified-column"),
			IsDeletedColumn:    v.GetString("is-deleted-column"),
			ChangeLogPath:      v.GetString("change-log-path"),
			ChangeLogFormat:    v.GetString("change-log-format"),
			CheckpointPath:     v.GetString("checkpoint-path"),
		},
		OutputFormat: v.GetString("output-format"),
		LogLevel:     v.GetString("log-level"),
		Interval:     v.GetString("interval"),
		Watch:        v.GetBool("watch"),
	}
}
