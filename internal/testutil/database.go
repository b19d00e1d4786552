package testutil

import (
	"testing"

	"recipebox/internal/database"
)

// NewTestLocalStore creates an in-memory SQLite store with migrations applied.
// The store is automatically closed when the test completes.
func NewTestLocalStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	store, err := database.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open local store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
