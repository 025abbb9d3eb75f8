package storage

import (
	"context"
	"path/filepath"
	"testing"
)

// NewTestStore opens a migrated DuckDB database under t.TempDir and closes it
// when the test ends.
func NewTestStore(t *testing.T) *Store {
	t.Helper()

	opts := DefaultOptions()

	store, err := Open(filepath.Join(t.TempDir(), "test.db"), opts)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test store: %v", err)
		}
	})

	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize test store: %v", err)
	}

	return store
}
