// Package cache provides fetch.Cache backends: in-process with TTL,
// file-backed, and Redis-backed.
package cache

import (
	"context"
	"time"

	"github.com/hivefetch/hivefetch/internal/fetch"
)

// Noop satisfies fetch.Cache and stores nothing. It is the default when no
// backend is configured.
type Noop struct{}

// NewNoop returns the no-op cache.
func NewNoop() *Noop {
	return &Noop{}
}

// Get always reports a miss.
func (Noop) Get(context.Context, string) (fetch.Result, bool, error) {
	return fetch.Result{}, false, nil
}

// Set discards the value.
func (Noop) Set(context.Context, string, fetch.Result, time.Duration) error { return nil }

// Delete does nothing.
func (Noop) Delete(context.Context, string) error { return nil }

// Clear does nothing.
func (Noop) Clear(context.Context) error { return nil }

// Contains always reports false.
func (Noop) Contains(context.Context, string) (bool, error) { return false, nil }

// Size always reports zero.
func (Noop) Size(context.Context) (int, error) { return 0, nil }
