// Package memtable is an in-memory flowgraph.Table reference
// implementation, used by unit tests and examples in place of a live
// database.
package memtable

import (
	"context"
	"sync"

	"github.com/flowkit/flowgraph"
)

var _ flowgraph.Table = (*Table)(nil)

// Table implements flowgraph.Table with a plain mutex-guarded map.
type Table struct {
	mu   sync.Mutex
	data map[string]map[string]any
}

// New returns an empty Table.
func New() *Table {
	return &Table{data: make(map[string]map[string]any)}
}

// GetOrLoadKey returns a copy of the attribute map stored under key, or
// an empty map if the key has never been written.
func (t *Table) GetOrLoadKey(_ context.Context, key string, attrs string) (map[string]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	src, ok := t.data[key]
	if !ok {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

// Set overwrites the attribute map stored under key.
func (t *Table) Set(_ context.Context, key string, attrs map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make(map[string]any, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	t.data[key] = cp
	return nil
}

// Close releases no resources; included to satisfy flowgraph.Table.
func (t *Table) Close() error { return nil }
