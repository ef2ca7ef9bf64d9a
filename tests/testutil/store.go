package testutil

import (
	"path/filepath"
	"testing"

	"github.com/nhle/dragonmail/internal/store"
)

// NewTestStore creates an in-memory SQLite-backed store with all migrations
// applied. It automatically closes the store when the test completes.
func NewTestStore(t *testing.T, opts ...store.RecordOption) *store.RecordStore {
	t.Helper()

	kv, err := store.NewSQLiteKV(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	s := store.NewRecordStore(kv, opts...)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewBoltTestStore creates a bbolt-backed store in a temporary directory.
func NewBoltTestStore(t *testing.T, opts ...store.RecordOption) *store.RecordStore {
	t.Helper()

	kv, err := store.NewBoltKV(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating bolt test store: %v", err)
	}

	s := store.NewRecordStore(kv, opts...)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing bolt test store: %v", err)
		}
	})

	return s
}
