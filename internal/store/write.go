package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/conn"
	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// InsertEvents persists events under position: one positions row, one
// events row per event (weight = index in events), the resulting models and
// the lock positions of every touched key.
//
// Creates advance the id sequence of their collection past the created id,
// so ReserveNextIDs never hands out an id that is already in use.
//
// The caller assigns position; a position that already exists fails on
// the primary key.
func (s *Store) InsertEvents(ctx context.Context, events []ir.DbEvent, position int64, info ir.Value, userID int64) (ir.PositionRecord, error) {
	if len(events) == 0 {
		return ir.PositionRecord{}, &ir.BadCodingError{Message: "insert events: no events"}
	}
	if info == nil {
		info = ir.Null{}
	}
	infoJSON, err := marshalInformation(info)
	if err != nil {
		return ir.PositionRecord{}, fmt.Errorf("insert events: %w", err)
	}

	record := ir.PositionRecord{
		Position:    position,
		Timestamp:   time.Now().UTC().Truncate(time.Microsecond),
		UserID:      userID,
		Information: info,
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions (position, timestamp, user_id, information)
			VALUES ($1, $2, $3, $4)
		`, position, record.Timestamp, userID, infoJSON); err != nil {
			return fmt.Errorf("insert position: %w", err)
		}

		fqids := targets(events)
		models, err := readModels(ctx, tx, fqids)
		if err != nil {
			return err
		}

		lockKeys := make(map[string]struct{})
		for weight, e := range events {
			data, err := ir.MarshalDbEvent(e)
			if err != nil {
				return fmt.Errorf("insert event %d: %w", weight, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO events (position, weight, fqid, type, data)
				VALUES ($1, $2, $3, $4, $5)
			`, position, weight, string(e.Target()), string(e.Type()), string(data)); err != nil {
				return fmt.Errorf("insert event %d: %w", weight, err)
			}

			next, err := ir.ApplyEvent(models[e.Target()], e, position)
			if err != nil {
				return err
			}
			models[e.Target()] = next

			fqid := e.Target()
			lockKeys[string(fqid)] = struct{}{}
			for _, field := range ir.TouchedFields(e) {
				lockKeys[fqid.FQField(field)] = struct{}{}
				lockKeys[fqid.CollectionField(field)] = struct{}{}
			}

			if _, ok := e.(ir.DbCreate); ok {
				if err := bumpIDSequence(ctx, tx, fqid); err != nil {
					return err
				}
			}
		}

		for _, fqid := range fqids {
			if err := upsertModel(ctx, tx, fqid, models[fqid]); err != nil {
				return err
			}
		}
		return upsertLockPositions(ctx, tx, lockKeys, position)
	})
	if err != nil {
		return ir.PositionRecord{}, fmt.Errorf("insert events at position %d: %w", position, err)
	}
	return record, nil
}

// ReserveNextIDs reserves count consecutive ids in collection and returns
// them in ascending order. Run outside a write transaction, the
// reservation is committed on return.
func (s *Store) ReserveNextIDs(ctx context.Context, collection string, count int) ([]int64, error) {
	if !ir.IsValidCollection(collection) {
		return nil, ir.NewValidationError("invalid collection %q", collection)
	}
	if count <= 0 {
		return nil, ir.NewValidationError("amount of ids to reserve must be positive, got %d", count)
	}

	var next int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO id_sequences (collection, id) VALUES ($1, $2)
			ON CONFLICT (collection) DO UPDATE SET id = id_sequences.id + $3
			RETURNING id
		`, collection, int64(count)+1, int64(count)).Scan(&next)
	})
	if err != nil {
		return nil, fmt.Errorf("reserve ids for %s: %w", collection, err)
	}

	ids := make([]int64, count)
	first := next - int64(count)
	for i := range ids {
		ids[i] = first + int64(i)
	}
	return ids, nil
}

// TruncateDB deletes every row from every table.
func (s *Store) TruncateDB(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, conn.FormatQuery("DELETE FROM {}", table)); err != nil {
				return fmt.Errorf("truncate %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("truncate db: %w", err)
	}
	return nil
}

// targets returns the distinct event targets in first-seen order.
func targets(events []ir.DbEvent) []ir.FQID {
	var out []ir.FQID
	for _, e := range events {
		if !slices.Contains(out, e.Target()) {
			out = append(out, e.Target())
		}
	}
	return out
}

func upsertModel(ctx context.Context, tx *sql.Tx, fqid ir.FQID, model ir.Object) error {
	data, err := marshalModel(model)
	if err != nil {
		return fmt.Errorf("upsert model %s: %w", fqid, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO models (fqid, data, deleted) VALUES ($1, $2, $3)
		ON CONFLICT (fqid) DO UPDATE SET data = excluded.data, deleted = excluded.deleted
	`, string(fqid), data, ir.IsDeleted(model))
	if err != nil {
		return fmt.Errorf("upsert model %s: %w", fqid, err)
	}
	return nil
}

func upsertLockPositions(ctx context.Context, tx *sql.Tx, keys map[string]struct{}, position int64) error {
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	slices.Sort(sorted)

	for _, key := range sorted {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lock_positions (key, position) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET position = excluded.position
		`, key, position); err != nil {
			return fmt.Errorf("update lock position %s: %w", key, err)
		}
	}
	return nil
}

// bumpIDSequence makes sure the next free id of the collection is greater
// than the id of fqid.
func bumpIDSequence(ctx context.Context, tx *sql.Tx, fqid ir.FQID) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO id_sequences (collection, id) VALUES ($1, $2)
		ON CONFLICT (collection) DO UPDATE SET id =
			CASE WHEN id_sequences.id < excluded.id THEN excluded.id ELSE id_sequences.id END
	`, fqid.Collection(), fqid.ID()+1)
	if err != nil {
		return fmt.Errorf("bump id sequence for %s: %w", fqid, err)
	}
	return nil
}
