package auraflow

import "testing"

func TestBuildStoreFromDSNMemory(t *testing.T) {
	for _, dsn := range []string{"", "memory://", "mem://", "inmem://"} {
		store, err := BuildStoreFromDSN(dsn)
		if err != nil {
			t.Fatalf("BuildStoreFromDSN(%q) failed: %v", dsn, err)
		}
		if _, ok := store.(*MemoryStore); !ok {
			t.Fatalf("BuildStoreFromDSN(%q): expected *MemoryStore, got %T", dsn, store)
		}
	}
}

func TestBuildStoreFromDSNPostgres(t *testing.T) {
	store, err := BuildStoreFromDSN("postgres://localhost/sheetbridge?sslmode=disable")
	if err != nil {
		t.Fatalf("expected postgres store to be available, got %v", err)
	}
	if _, ok := store.(*PostgresStore); !ok {
		t.Fatalf("expected *PostgresStore, got %T", store)
	}
}

func TestBuildStoreFromDSNUnsupported(t *testing.T) {
	if _, err := BuildStoreFromDSN("mysql://localhost/sheetbridge"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
