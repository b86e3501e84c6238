package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/conn"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

// tables lists every table in dependency order: a table only references
// tables that come after it.
var tables = []string{"events", "positions", "models", "lock_positions", "id_sequences"}

// Store is the SQL implementation of the writer's Database, ReadDatabase
// and OccLocker ports.
//
// Every method runs inside the transaction carried by ctx when there is
// one, and in a transaction of its own otherwise.
type Store struct {
	pool *conn.Manager
}

// Open creates the connection pool and applies the schema.
//
// This function is idempotent - safe to call multiple times on the same
// database.
func Open(ctx context.Context, opts conn.Options) (*Store, error) {
	pool, err := conn.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.applySchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return s, nil
}

// Close closes every pooled connection.
func (s *Store) Close() error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Close()
}

// Pool returns the connection manager backing the store.
func (s *Store) Pool() *conn.Manager {
	return s.pool
}

// Transaction runs fn in a transaction. Store methods called with the ctx
// passed to fn join that transaction.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.pool.WithTransaction(ctx, fn)
}

// withTx runs fn on the transaction carried by ctx, or in a new one.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if tx, ok := conn.TxFromContext(ctx); ok {
		return fn(tx)
	}
	return s.pool.WithTransaction(ctx, func(ctx context.Context) error {
		tx, _ := conn.TxFromContext(ctx)
		return fn(tx)
	})
}

func (s *Store) applySchema(ctx context.Context) error {
	schema := schemaSQLite
	if s.pool.Driver() == conn.DriverPostgres {
		schema = schemaPostgres
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
		return nil
	})
}

// verifyPragma checks that a pragma is set to the expected value on a
// pooled connection. SQLite only; used for testing.
func (s *Store) verifyPragma(ctx context.Context, name, expected string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var value string
		query := fmt.Sprintf("PRAGMA %s", name)
		if err := tx.QueryRowContext(ctx, query).Scan(&value); err != nil {
			return fmt.Errorf("failed to query %s: %w", name, err)
		}
		if value != expected {
			return fmt.Errorf("%s = %q, expected %q", name, value, expected)
		}
		return nil
	})
}
