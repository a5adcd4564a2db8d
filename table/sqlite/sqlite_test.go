package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestTable_GetOrLoadKeyMissingReturnsEmptyMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.db")
	tbl, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	got, err := tbl.GetOrLoadKey(context.Background(), "missing", "*")
	if err != nil {
		t.Fatalf("GetOrLoadKey: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want an empty map", got)
	}
}

func TestTable_SetThenGetOrLoadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.db")
	tbl, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	ctx := context.Background()
	if err := tbl.Set(ctx, "k", map[string]any{"a": float64(1)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := tbl.GetOrLoadKey(ctx, "k", "*")
	if err != nil {
		t.Fatalf("GetOrLoadKey: %v", err)
	}
	if got["a"] != float64(1) {
		t.Errorf("got %v, want a=1", got)
	}
}

func TestTable_SetOverwritesExistingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.db")
	tbl, err := New(context.Background(), path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tbl.Close()

	ctx := context.Background()
	if err := tbl.Set(ctx, "k", map[string]any{"a": float64(1)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tbl.Set(ctx, "k", map[string]any{"a": float64(2)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := tbl.GetOrLoadKey(ctx, "k", "*")
	if err != nil {
		t.Fatalf("GetOrLoadKey: %v", err)
	}
	if got["a"] != float64(2) {
		t.Errorf("got %v, want a=2", got)
	}
}
