package core

import (
	"path/filepath"
	"testing"

	"grovecore/internal/infra/persistence/memory"
	"grovecore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("GROVECORE_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore(DefaultRulesEngine())
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLiteDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GROVECORE_STORAGE_DRIVER", "")
	t.Setenv("GROVECORE_SQLITE_PATH", filepath.Join(dir, "stock.db"))
	store, err := OpenPersistentStore(DefaultRulesEngine())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	s, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if s.Path() != filepath.Join(dir, "stock.db") {
		t.Fatalf("unexpected sqlite path %s", s.Path())
	}
	if err := s.DB().Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("GROVECORE_STORAGE_DRIVER", "etcd")
	if _, err := OpenPersistentStore(DefaultRulesEngine()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
