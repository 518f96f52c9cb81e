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

// Package provider constructs storage providers by kind.
package provider

import (
	"fmt"

	"github.com/jeremyhahn/go-tablesync/pkg/common"
	"github.com/jeremyhahn/go-tablesync/pkg/provider/memory"
	"github.com/jeremyhahn/go-tablesync/pkg/provider/sqlite"
)

// Provider kinds.
const (
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// New creates and configures a storage provider of the given kind.
func New(kind string, settings map[string]string) (common.StorageProvider, error) {
	var p common.StorageProvider

	switch kind {
	case KindSQLite, "":
		p = sqlite.New()
	case KindMemory:
		p = memory.New()
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownProvider, kind)
	}

	if err := p.Configure(settings); err != nil {
		return nil, fmt.Errorf("failed to configure %s provider: %w", kind, err)
	}
	return p, nil
}
