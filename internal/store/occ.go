package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// AssertLockedFields compares the positions the request declares for its
// lock keys with the positions of the last writes to those keys. It returns
// a *ir.ModelLockedError listing every key written after the declared
// position. Keys that were never written are not locked.
func (s *Store) AssertLockedFields(ctx context.Context, req ir.WriteRequest) error {
	if len(req.LockedFields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(req.LockedFields))
	for key := range req.LockedFields {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	current := make(map[string]int64, len(keys))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		args := make([]any, len(keys))
		for i, k := range keys {
			args[i] = k
		}
		rows, err := tx.QueryContext(ctx, `
			SELECT key, position FROM lock_positions
			WHERE key IN (`+placeholders(1, len(keys))+`)
		`, args...)
		if err != nil {
			return fmt.Errorf("query lock positions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var key string
			var position int64
			if err := rows.Scan(&key, &position); err != nil {
				return fmt.Errorf("scan lock position: %w", err)
			}
			current[key] = position
		}
		return rows.Err()
	})
	if err != nil {
		return fmt.Errorf("assert locked fields: %w", err)
	}

	var locked []string
	for _, key := range keys {
		if pos, ok := current[key]; ok && pos > req.LockedFields[key] {
			locked = append(locked, key)
		}
	}
	if len(locked) > 0 {
		return &ir.ModelLockedError{Keys: locked}
	}
	return nil
}
