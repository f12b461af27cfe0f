package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hivefetch/hivefetch/internal/clock/system"
	"github.com/hivefetch/hivefetch/internal/fetch"
)

// Memory is an in-process cache with absolute-expiry TTLs and bounded-size
// eviction. Expired entries are removed lazily on lookup.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	maxSize int
	clock   fetch.Clock
}

type memoryEntry struct {
	value     fetch.Result
	expiresAt time.Time // zero means no expiration
}

// NewMemory creates a memory cache. A maxSize of zero means unbounded; a
// nil clock uses real time.
func NewMemory(maxSize int, clk fetch.Clock) *Memory {
	if clk == nil {
		clk = system.New()
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		maxSize: maxSize,
		clock:   clk,
	}
}

// Get returns the cached value for key, lazily deleting it when expired.
func (m *Memory) Get(_ context.Context, key string) (fetch.Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return fetch.Result{}, false, nil
	}
	if !entry.expiresAt.IsZero() && m.clock.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		return fetch.Result{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key. When the cache is full and the key is new,
// one entry is evicted first: an expiration-less entry if any exists,
// otherwise the entry closest to expiry.
func (m *Memory) Set(_ context.Context, key string, value fetch.Result, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxSize > 0 && len(m.entries) >= m.maxSize {
		if _, exists := m.entries[key]; !exists {
			m.evictOne()
		}
	}
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.clock.Now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Clear removes every entry.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}

// Contains reports whether key holds a live entry, lazily deleting it when
// expired.
func (m *Memory) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

// Size returns the number of stored entries, expired or not.
func (m *Memory) Size(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

// evictOne prefers an expiration-less entry, falling back to the entry
// with the earliest expiry.
func (m *Memory) evictOne() {
	var victim string
	var victimExpiry time.Time
	found := false
	for key, entry := range m.entries {
		if entry.expiresAt.IsZero() {
			victim = key
			found = true
			break
		}
		if !found || entry.expiresAt.Before(victimExpiry) {
			victim = key
			victimExpiry = entry.expiresAt
			found = true
		}
	}
	if found {
		delete(m.entries, victim)
	}
}
