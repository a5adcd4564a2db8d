package flowgraph

import "context"

// Table is the external collaborator MapWithState(group_by_key=true) and
// the join steps depend on: an asynchronous key-to-attributes store.
// Concrete drivers live under table/ (sqlite, postgres, memtable).
type Table interface {
	// GetOrLoadKey returns the attribute map for key, loading it from the
	// backing store if not already cached. attrs is a comma-separated
	// attribute list, or "*" for all attributes.
	GetOrLoadKey(ctx context.Context, key string, attrs string) (map[string]any, error)
	// Set writes (or replaces) the per-key attribute entry.
	Set(ctx context.Context, key string, attrs map[string]any) error
	// Close releases resources held by the table.
	Close() error
}
