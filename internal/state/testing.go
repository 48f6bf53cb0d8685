package state

import (
	"testing"
)

// NewTestStore creates an in-memory store for testing. The store is
// migrated and closes automatically with the test.
func NewTestStore(t testing.TB) *Store {
	t.Helper()

	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
