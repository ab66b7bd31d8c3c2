// Package storetest provides a SQLite-backed store for tests.
package storetest

import (
	"path/filepath"
	"testing"

	"pepeearn/internal/db"
	"pepeearn/internal/store"
)

// New opens a fresh SQLite database under t.TempDir and returns a store
// publishing changes to an in-process hub.
func New(t testing.TB) *store.SQLStore {
	t.Helper()

	database, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return store.NewSQLStore(database, db.DriverSQLite, store.NewHub(), nil)
}
