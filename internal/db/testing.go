// Test helpers for packages that need a migrated store database.
// In-memory databases keep these tests fast and isolated.
package db

import (
	"testing"
)

// NewTestDB creates an in-memory store database for testing.
// Migrations are applied; the connection closes with the test.
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	d, err := OpenInMemory()
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}

	if err := d.Migrate("store"); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	t.Cleanup(func() {
		_ = d.Close()
	})

	return d
}
