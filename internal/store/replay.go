package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// ReplayState is the outcome of rebuilding every model from the event log.
type ReplayState struct {
	LastPosition int64
	EventCount   int
	Models       map[ir.FQID]ir.Object

	// Mismatched lists models whose stored state differs from the replayed
	// one, sorted. Missing rows on either side count as a mismatch.
	Mismatched []ir.FQID
}

// IsConsistent reports whether the models table matches the event log.
func (r ReplayState) IsConsistent() bool {
	return len(r.Mismatched) == 0
}

// Replay reads the whole event log in (position, weight) order, applies it
// to an empty state and compares the result with the models table. Both
// reads happen in one transaction.
func (s *Store) Replay(ctx context.Context) (ReplayState, error) {
	state := ReplayState{Models: make(map[ir.FQID]ir.Object)}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := replayEvents(ctx, tx, &state); err != nil {
			return err
		}
		stored, err := readAllModels(ctx, tx)
		if err != nil {
			return err
		}

		for fqid, model := range state.Models {
			if !ir.Equal(model, stored[fqid]) {
				state.Mismatched = append(state.Mismatched, fqid)
			}
		}
		for fqid := range stored {
			if _, ok := state.Models[fqid]; !ok {
				state.Mismatched = append(state.Mismatched, fqid)
			}
		}
		slices.Sort(state.Mismatched)
		return nil
	})
	if err != nil {
		return ReplayState{}, fmt.Errorf("replay: %w", err)
	}
	return state, nil
}

func replayEvents(ctx context.Context, tx *sql.Tx, state *ReplayState) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT position, data FROM events
		ORDER BY position ASC, weight ASC
	`)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var position int64
		var data string
		if err := rows.Scan(&position, &data); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		e, err := ir.UnmarshalDbEvent([]byte(data))
		if err != nil {
			return fmt.Errorf("event at position %d: %w", position, err)
		}

		model := state.Models[e.Target()]
		// The log does not store the list update snapshot; it is the
		// replayed model.
		if lu, ok := e.(ir.DbListUpdate); ok {
			lu.Model = model
			e = lu
		}
		next, err := ir.ApplyEvent(model, e, position)
		if err != nil {
			return fmt.Errorf("apply event at position %d: %w", position, err)
		}
		state.Models[e.Target()] = next
		state.LastPosition = position
		state.EventCount++
	}
	return rows.Err()
}

func readAllModels(ctx context.Context, tx *sql.Tx) (map[ir.FQID]ir.Object, error) {
	rows, err := tx.QueryContext(ctx, `SELECT fqid, data FROM models`)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	models := make(map[ir.FQID]ir.Object)
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
	return models, rows.Err()
}
