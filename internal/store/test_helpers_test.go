package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	return openTestStore(t, path, opts...)
}

// openTestStore opens path and closes it when the test ends.
func openTestStore(t *testing.T, path string, opts ...Option) *Store {
	t.Helper()
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedNow returns a clock that always reads t.
func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
