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

// Package retry wraps operations against an unreliable replica with
// exponential backoff. Only transient failures (lock contention,
// connection loss) are retried; everything else propagates immediately.
package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeremyhahn/go-tablesync/pkg/common"
)

// Config controls the retry behavior.
type Config struct {
	// Enabled turns retrying on. Disabled executes the operation once.
	Enabled bool

	// MaxRetries is the number of retries after the first attempt.
	// Defaults to 3.
	MaxRetries int

	// InitialBackoff is the first backoff interval. Defaults to 100ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff growth. Defaults to 5s.
	MaxBackoff time.Duration

	// Limiter, when set, is a shared retry budget: every retry attempt
	// reserves from it, so many failing rows cannot collectively hammer
	// a contended file share.
	Limiter *rate.Limiter
}

// DefaultConfig returns the retry configuration used by the engine when
// none is supplied: 3 retries, 100ms initial backoff, 2 retries/sec
// shared budget.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Limiter:        rate.NewLimiter(rate.Limit(2), 4),
	}
}

// Do executes operation, retrying transient failures with exponential
// backoff and jitter. It returns the operation's result or the last
// error encountered.
func Do[T any](ctx context.Context, config *Config, operation func() (T, error)) (T, error) {
	var zero T

	if config == nil || !config.Enabled {
		return operation()
	}

	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	initialBackoff := config.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = 100 * time.Millisecond
	}
	maxBackoff := config.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}
		if !IsRetryable(err) {
			return zero, err
		}

		if config.Limiter != nil {
			if err := config.Limiter.Wait(ctx); err != nil {
				return zero, lastErr
			}
		}

		backoff := calculateBackoff(attempt, initialBackoff, maxBackoff)
		select {
		case <-ctx.Done():
			return zero, lastErr
		case <-time.After(backoff):
		}
	}

	return zero, lastErr
}

// IsRetryable reports whether an error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if common.IsTransient(err) {
		return true
	}

	// Providers outside this module may not wrap ErrTransientIO;
	// recognize the common contention signatures.
	msg := strings.ToLower(err.Error())
	for _, keyword := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"database is locked",
		"database table is locked",
		"resource temporarily unavailable",
	} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}

// calculateBackoff computes the backoff for a given attempt using
// exponential growth with jitter.
func calculateBackoff(attempt int, initial, max time.Duration) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	// Jitter: random value in [backoff/2, backoff).
	jitter := backoff/2 + rand.Float64()*backoff/2 // #nosec G404 -- jitter does not need crypto randomness
	return time.Duration(jitter)
}
