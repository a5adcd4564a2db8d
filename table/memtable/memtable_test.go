package memtable

import (
	"context"
	"testing"
)

func TestTable_GetOrLoadKeyMissingReturnsEmptyMap(t *testing.T) {
	tbl := New()
	got, err := tbl.GetOrLoadKey(context.Background(), "missing", "*")
	if err != nil {
		t.Fatalf("GetOrLoadKey: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want an empty map", got)
	}
}

func TestTable_SetThenGetOrLoadKey(t *testing.T) {
	tbl := New()
	ctx := context.Background()
	if err := tbl.Set(ctx, "k", map[string]any{"a": 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := tbl.GetOrLoadKey(ctx, "k", "*")
	if err != nil {
		t.Fatalf("GetOrLoadKey: %v", err)
	}
	if got["a"] != 1 {
		t.Errorf("got %v, want a=1", got)
	}
}

func TestTable_GetOrLoadKeyReturnsADefensiveCopy(t *testing.T) {
	tbl := New()
	ctx := context.Background()
	if err := tbl.Set(ctx, "k", map[string]any{"a": 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _ := tbl.GetOrLoadKey(ctx, "k", "*")
	got["a"] = 999

	again, _ := tbl.GetOrLoadKey(ctx, "k", "*")
	if again["a"] != 1 {
		t.Errorf("mutating the returned map leaked into storage: got %v", again)
	}
}

func TestTable_SetStoresADefensiveCopy(t *testing.T) {
	tbl := New()
	ctx := context.Background()
	attrs := map[string]any{"a": 1}
	if err := tbl.Set(ctx, "k", attrs); err != nil {
		t.Fatalf("Set: %v", err)
	}
	attrs["a"] = 999

	got, _ := tbl.GetOrLoadKey(ctx, "k", "*")
	if got["a"] != 1 {
		t.Errorf("mutating the caller's map after Set leaked into storage: got %v", got)
	}
}

func TestTable_Close(t *testing.T) {
	tbl := New()
	if err := tbl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
