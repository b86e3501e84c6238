package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// CurrentMigrationIndex returns the highest committed position, or 0 for
// an empty datastore.
func (s *Store) CurrentMigrationIndex(ctx context.Context) (int64, error) {
	var index int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM positions`).Scan(&index)
	})
	if err != nil {
		return 0, fmt.Errorf("current migration index: %w", err)
	}
	return index, nil
}

// GetModels returns the stored models for fqids. Soft-deleted models are
// included and carry meta_deleted = true; absent models are missing from
// the map.
func (s *Store) GetModels(ctx context.Context, fqids []ir.FQID) (map[ir.FQID]ir.Object, error) {
	var models map[ir.FQID]ir.Object
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		models, err = readModels(ctx, tx, fqids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get models: %w", err)
	}
	return models, nil
}

func readModels(ctx context.Context, tx *sql.Tx, fqids []ir.FQID) (map[ir.FQID]ir.Object, error) {
	models := make(map[ir.FQID]ir.Object, len(fqids))
	if len(fqids) == 0 {
		return models, nil
	}

	args := make([]any, len(fqids))
	for i, f := range fqids {
		args[i] = string(f)
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT fqid, data FROM models
		WHERE fqid IN (`+placeholders(1, len(fqids))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fqid, data string
		if err := rows.Scan(&fqid, &data); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		model, err := unmarshalModel(data)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", fqid, err)
		}
		models[ir.FQID(fqid)] = model
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return models, nil
}

// ReadPosition returns the record of a committed position.
// Returns sql.ErrNoRows (wrapped) if the position does not exist.
func (s *Store) ReadPosition(ctx context.Context, position int64) (ir.PositionRecord, error) {
	var rec ir.PositionRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var info string
		err := tx.QueryRowContext(ctx, `
			SELECT position, timestamp, user_id, information
			FROM positions
			WHERE position = $1
		`, position).Scan(&rec.Position, &rec.Timestamp, &rec.UserID, &info)
		if err != nil {
			return err
		}
		rec.Information, err = unmarshalInformation(info)
		return err
	})
	if err != nil {
		return ir.PositionRecord{}, fmt.Errorf("read position %d: %w", position, err)
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return rec, nil
}

// IsNotFound returns true if err means a queried row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ReadEvents returns the events of position in weight order.
// Returns an empty slice (not nil) if the position has no events.
func (s *Store) ReadEvents(ctx context.Context, position int64) ([]ir.DbEvent, error) {
	events := []ir.DbEvent{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT data FROM events
			WHERE position = $1
			ORDER BY weight ASC
		`, position)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var data string
			if err := rows.Scan(&data); err != nil {
				return fmt.Errorf("scan event: %w", err)
			}
			e, err := ir.UnmarshalDbEvent([]byte(data))
			if err != nil {
				return err
			}
			events = append(events, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("read events at position %d: %w", position, err)
	}
	return events, nil
}
