package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/conn"
	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// testOptions returns pool options for a fresh SQLite database in a
// temporary directory.
func testOptions(t *testing.T) conn.Options {
	t.Helper()
	return conn.Options{
		Driver:         conn.DriverSQLite,
		DSN:            conn.SQLiteDSN(filepath.Join(t.TempDir(), "test.db"), 5*time.Second),
		MinConnections: 1,
		MaxConnections: 2,
	}
}

// createTestStore creates a new store backed by a temporary SQLite file.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), testOptions(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestEvents commits events at position in their own transaction.
func insertTestEvents(t *testing.T, s *Store, position int64, events ...ir.DbEvent) {
	t.Helper()
	if _, err := s.InsertEvents(context.Background(), events, position, ir.Null{}, 1); err != nil {
		t.Fatalf("InsertEvents(position %d) failed: %v", position, err)
	}
}
