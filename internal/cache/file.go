package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hivefetch/hivefetch/internal/clock/system"
	"github.com/hivefetch/hivefetch/internal/fetch"
	"github.com/hivefetch/hivefetch/internal/hash/sha256"
)

const fileSuffix = ".cache"

// File persists one record per key in a directory, the file name derived
// from a SHA-256 digest of the key. Expired records are deleted only when
// their exact key is looked up; there is no background sweeping, so stale
// files persist until touched. This asymmetry with the memory backend is
// deliberate.
type File struct {
	dir   string
	clock fetch.Clock
}

type fileRecord struct {
	Key         string `json:"key"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
	ExpiresAt   int64  `json:"expires_at,omitempty"` // unix nanoseconds, 0 = none
}

// NewFile creates a file cache rooted at dir, creating the directory if
// needed. A nil clock uses real time.
func NewFile(dir string, clk fetch.Clock) (*File, error) {
	if clk == nil {
		clk = system.New()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &File{dir: dir, clock: clk}, nil
}

// Get reads the record for key, lazily deleting it when expired.
func (f *File) Get(ctx context.Context, key string) (fetch.Result, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return fetch.Result{}, false, nil
	}
	if err != nil {
		return fetch.Result{}, false, f.wrap("get", err)
	}
	var record fileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fetch.Result{}, false, f.wrap("get", fmt.Errorf("decode record: %w", err))
	}
	if record.ExpiresAt > 0 && f.clock.Now().UnixNano() > record.ExpiresAt {
		if err := f.Delete(ctx, key); err != nil {
			return fetch.Result{}, false, err
		}
		return fetch.Result{}, false, nil
	}
	return fetch.Result{Body: record.Body, ContentType: record.ContentType}, true, nil
}

// Set writes the record for key with an embedded absolute expiry.
func (f *File) Set(_ context.Context, key string, value fetch.Result, ttl time.Duration) error {
	record := fileRecord{
		Key:         key,
		Body:        value.Body,
		ContentType: value.ContentType,
	}
	if ttl > 0 {
		record.ExpiresAt = f.clock.Now().Add(ttl).UnixNano()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return f.wrap("set", fmt.Errorf("encode record: %w", err))
	}
	if err := os.WriteFile(f.path(key), data, 0o644); err != nil {
		return f.wrap("set", err)
	}
	return nil
}

// Delete removes the record for key if present.
func (f *File) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return f.wrap("delete", err)
	}
	return nil
}

// Clear removes every cache record under the directory.
func (f *File) Clear(_ context.Context) error {
	names, err := f.list()
	if err != nil {
		return f.wrap("clear", err)
	}
	for _, name := range names {
		if err := os.Remove(filepath.Join(f.dir, name)); err != nil && !os.IsNotExist(err) {
			return f.wrap("clear", err)
		}
	}
	return nil
}

// Contains reports whether a live record exists for key.
func (f *File) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := f.Get(ctx, key)
	return ok, err
}

// Size counts cache records on disk, including not-yet-swept expired ones.
func (f *File) Size(context.Context) (int, error) {
	names, err := f.list()
	if err != nil {
		return 0, f.wrap("size", err)
	}
	return len(names), nil
}

func (f *File) list() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), fileSuffix) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, sha256.Key(key)+fileSuffix)
}

func (f *File) wrap(op string, err error) error {
	return &fetch.CacheError{Backend: "file", Op: op, Err: err}
}
