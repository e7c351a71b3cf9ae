package notebook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pyxis-run/pyxis/internal/sessionctx"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id := sessionctx.Identity{UserID: "alice", SessionID: "s1"}

	if _, ok, err := store.Load(id); err != nil || ok {
		t.Fatalf("Load on empty store = ok=%v err=%v, want miss", ok, err)
	}

	nb := &Notebook{
		UserID:     id.UserID,
		SessionID:  id.SessionID,
		NextCellID: 2,
		Cells: []*Cell{
			{ID: 1, Code: "x = 1", State: StateCompleted, ExecutionCount: 1},
			{ID: 2, Code: "print(x)", State: StateIdle},
		},
		Imports:  []string{"import os"},
		Snapshot: "namespace.pkl",
	}
	if err := store.Save(nb); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.Load(id)
	if err != nil || !ok {
		t.Fatalf("Load = ok=%v err=%v", ok, err)
	}
	if len(got.Cells) != 2 || got.Cells[0].Code != "x = 1" {
		t.Errorf("cells did not survive: %+v", got.Cells)
	}
	if got.Snapshot != "namespace.pkl" || got.NextCellID != 2 {
		t.Errorf("metadata did not survive: %+v", got)
	}
}

func TestStoreDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id := sessionctx.Identity{UserID: "alice", SessionID: "s1"}
	if err := store.Save(&Notebook{UserID: id.UserID, SessionID: id.SessionID}); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(id); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Load(id); ok {
		t.Error("notebook still loadable after Delete")
	}
	// Deleting a missing notebook is not an error.
	if err := store.Delete(id); err != nil {
		t.Errorf("second Delete = %v", err)
	}
}

func TestStoreSanitizesKey(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	id := sessionctx.Identity{UserID: "../../etc", SessionID: "pass/wd"}
	if err := store.Save(&Notebook{UserID: id.UserID, SessionID: id.SessionID}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	name := entries[0].Name()
	if filepath.Dir(filepath.Join(dir, name)) != dir {
		t.Errorf("file escaped store dir: %q", name)
	}
}
