// Package postgres implements flowgraph.Table using PostgreSQL via pgx.
//
// Table accepts an externally-owned *pgxpool.Pool via constructor
// injection; the caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowkit/flowgraph"
)

var _ flowgraph.Table = (*Table)(nil)

// Option configures a Table.
type Option func(*config)

type config struct {
	tableName string
}

// WithTableName overrides the backing table name (default "flowgraph_state").
func WithTableName(name string) Option {
	return func(c *config) { c.tableName = name }
}

// Table implements flowgraph.Table backed by PostgreSQL. Per-key
// attribute maps are stored as a single jsonb column.
type Table struct {
	pool *pgxpool.Pool
	name string
}

// New creates a Table using an existing pgxpool.Pool. The caller owns the
// pool and is responsible for closing it; Table.Close is a no-op left to
// satisfy the Table interface (ref-counted/shared pools should not be
// closed by an individual Table user).
func New(pool *pgxpool.Pool, opts ...Option) *Table {
	cfg := config{tableName: "flowgraph_state"}
	for _, o := range opts {
		o(&cfg)
	}
	return &Table{pool: pool, name: cfg.tableName}
}

// Init creates the backing table if it does not already exist. Safe to
// call multiple times.
func (t *Table) Init(ctx context.Context) error {
	_, err := t.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		attrs JSONB NOT NULL
	)`, t.name))
	if err != nil {
		return fmt.Errorf("table/postgres: init: %w", err)
	}
	return nil
}

// GetOrLoadKey returns the attribute map stored under key, or an empty
// map if the key has never been written.
func (t *Table) GetOrLoadKey(ctx context.Context, key string, attrs string) (map[string]any, error) {
	var raw []byte
	err := t.pool.QueryRow(ctx, fmt.Sprintf(`SELECT attrs FROM %s WHERE key = $1`, t.name), key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("table/postgres: get %q: %w", key, err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("table/postgres: decode %q: %w", key, err)
	}
	return out, nil
}

// Set overwrites the attribute map stored under key.
func (t *Table) Set(ctx context.Context, key string, attrs map[string]any) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("table/postgres: encode %q: %w", key, err)
	}
	_, err = t.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (key, attrs) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET attrs = excluded.attrs`, t.name), key, raw)
	if err != nil {
		return fmt.Errorf("table/postgres: set %q: %w", key, err)
	}
	return nil
}

// Close is a no-op: the pool is owned by the caller, not this Table.
func (t *Table) Close() error { return nil }
