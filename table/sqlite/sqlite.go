// Package sqlite implements flowgraph.Table using pure-Go SQLite, for
// tests and examples that need a concrete Table without a live Postgres
// instance.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flowkit/flowgraph"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

var _ flowgraph.Table = (*Table)(nil)

// Option configures a Table.
type Option func(*Table)

// WithLogger sets a structured logger. When unset, the table emits no logs.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) { t.logger = l }
}

// Table implements flowgraph.Table backed by a local SQLite file.
// Per-key attribute maps are stored as a single JSON text column;
// GetOrLoadKey always returns the full stored map, so the attrs argument
// (a column-selection hint in the original design) is accepted but
// unused here.
type Table struct {
	db     *sql.DB
	logger *slog.Logger
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New opens (creating if absent) a SQLite-backed table at dbPath.
func New(ctx context.Context, dbPath string, opts ...Option) (*Table, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("table/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	t := &Table{db: db, logger: nopLogger}
	for _, o := range opts {
		o(t)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS flowgraph_state (
		key TEXT PRIMARY KEY,
		attrs TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("table/sqlite: create table: %w", err)
	}
	t.logger.Debug("table/sqlite: opened", "path", dbPath)
	return t, nil
}

// GetOrLoadKey returns the attribute map stored under key, or an empty
// map if the key has never been written.
func (t *Table) GetOrLoadKey(ctx context.Context, key string, attrs string) (map[string]any, error) {
	var raw string
	err := t.db.QueryRowContext(ctx, `SELECT attrs FROM flowgraph_state WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("table/sqlite: get %q: %w", key, err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("table/sqlite: decode %q: %w", key, err)
	}
	return out, nil
}

// Set overwrites the attribute map stored under key.
func (t *Table) Set(ctx context.Context, key string, attrs map[string]any) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("table/sqlite: encode %q: %w", key, err)
	}
	_, err = t.db.ExecContext(ctx, `INSERT INTO flowgraph_state (key, attrs) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET attrs = excluded.attrs`, key, string(raw))
	if err != nil {
		return fmt.Errorf("table/sqlite: set %q: %w", key, err)
	}
	t.logger.Debug("table/sqlite: set", "key", key)
	return nil
}

// Close releases the underlying connection pool.
func (t *Table) Close() error {
	return t.db.Close()
}
