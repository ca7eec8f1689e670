package cursor_test

import (
	"os"
	"path/filepath"
	"testing"

	"tattle/internal/cursor"
)

func TestLoadMissingFile(t *testing.T) {
	store := cursor.NewFileStore(filepath.Join(t.TempDir(), "cursor"))
	_, ok, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ok {
		t.Fatal("expected no saved cursor")
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cursor")
	store := cursor.NewFileStore(path)

	if err := store.Save(1234); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	value, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("Load failed: %v (ok=%v)", err, ok)
	}
	if value != 1234 {
		t.Fatalf("expected 1234, got %d", value)
	}

	if err := store.Save(5678); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	value, _, err = store.Load()
	if err != nil {
		t.Fatalf("Load after overwrite failed: %v", err)
	}
	if value != 5678 {
		t.Fatalf("expected 5678, got %d", value)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor")
	if err := os.WriteFile(path, []byte("not a number\n"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if _, _, err := cursor.NewFileStore(path).Load(); err == nil {
		t.Fatal("expected parse error")
	}
}
