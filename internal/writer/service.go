package writer

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/conn"
	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// Service is the write path of the datastore.
//
// A write call validates and translates its requests inside a transaction,
// then takes a Sequencer ticket, persists every request under consecutive
// positions, notifies Messaging and commits. Tickets are released only
// after the transaction is finished, so positions are committed in ticket
// order and a later write never commits a lower position.
type Service struct {
	db        Database
	read      ReadDatabase
	messaging Messaging
	locker    OccLocker
	seq       *Sequencer
	retry     conn.RetryPolicy
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRetryPolicy sets the policy for retrying transient database errors.
func WithRetryPolicy(p conn.RetryPolicy) Option {
	return func(s *Service) { s.retry = p }
}

// WithSequencer shares a sequencer between services.
func WithSequencer(seq *Sequencer) Option {
	return func(s *Service) { s.seq = seq }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a writer over the given ports.
func NewService(db Database, read ReadDatabase, messaging Messaging, locker OccLocker, opts ...Option) *Service {
	s := &Service{
		db:        db,
		read:      read,
		messaging: messaging,
		locker:    locker,
		seq:       NewSequencer(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write persists requests atomically: either every request gets its own
// position and is committed, or nothing is. Request i of a call that
// starts after migration index n is stored at position n+i+1.
//
// Transient database errors retry the whole call.
func (s *Service) Write(ctx context.Context, requests []ir.WriteRequest) error {
	if len(requests) == 0 {
		return ir.NewValidationError("no write requests")
	}
	for i, req := range requests {
		if err := req.Validate(); err != nil {
			return fmt.Errorf("request %d: %w", i, err)
		}
	}

	logger := s.logger.With("write_id", uuid.Must(uuid.NewV7()).String())
	err := conn.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.write(ctx, logger, requests)
	})
	if err != nil {
		logger.Warn("write failed", "kind", Classify(err).String(), "error", err)
		return err
	}
	return nil
}

func (s *Service) write(ctx context.Context, logger *slog.Logger, requests []ir.WriteRequest) (err error) {
	call := &writeCall{logger: logger}

	var ticket Ticket
	held := false
	defer func() {
		if !held {
			return
		}
		if rerr := s.seq.Release(ticket); rerr != nil && err == nil {
			err = rerr
		}
		call.enter(stateTicketReleased)
	}()

	var positioned []ir.PositionedEvents
	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		call.enter(stateTransactionOpen)
		index, translated, err := s.prepare(ctx, requests, call)
		if err != nil {
			return err
		}

		ticket, err = s.seq.Acquire(ctx)
		if err != nil {
			return err
		}
		held = true
		call.enter(stateTicketHeld)

		current, err := s.read.CurrentMigrationIndex(ctx)
		if err != nil {
			return err
		}
		if current != index {
			logger.Debug("migration index moved, revalidating", "validated_at", index, "current", current)
			index, translated, err = s.prepare(ctx, requests, call)
			if err != nil {
				return err
			}
		}

		positioned = make([]ir.PositionedEvents, len(requests))
		for i, req := range requests {
			position := index + int64(i) + 1
			if _, err := s.db.InsertEvents(ctx, translated[i], position, req.Information, req.UserID); err != nil {
				return err
			}
			positioned[i] = ir.PositionedEvents{Position: position, Events: translated[i]}
		}
		call.enter(statePersisted)

		if err := s.messaging.HandleEvents(ctx, positioned); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		call.enter(stateNotified)
		return nil
	})
	if err != nil {
		call.enter(stateRolledBack)
		return err
	}
	call.enter(stateCommitted)

	logger.Info("write committed",
		"requests", len(requests),
		"first_position", positioned[0].Position,
		"last_position", positioned[len(positioned)-1].Position,
	)
	return nil
}

// prepare reads the migration index and the touched models, checks every
// request's locked fields and translates all requests. Each request is
// translated against the models as left by the requests before it.
func (s *Service) prepare(ctx context.Context, requests []ir.WriteRequest, call *writeCall) (int64, [][]ir.DbEvent, error) {
	index, err := s.read.CurrentMigrationIndex(ctx)
	if err != nil {
		return 0, nil, err
	}

	for i, req := range requests {
		if err := s.locker.AssertLockedFields(ctx, req); err != nil {
			return 0, nil, fmt.Errorf("request %d: %w", i, err)
		}
	}
	call.enter(stateValidated)

	models, err := s.read.GetModels(ctx, touchedFQIDs(requests))
	if err != nil {
		return 0, nil, err
	}
	working := maps.Clone(models)
	if working == nil {
		working = make(map[ir.FQID]ir.Object)
	}

	translated := make([][]ir.DbEvent, len(requests))
	for i, req := range requests {
		position := index + int64(i) + 1
		for _, e := range req.Events {
			events, err := Translate(e, working)
			if err != nil {
				return 0, nil, fmt.Errorf("request %d: %w", i, err)
			}
			for _, de := range events {
				next, err := ir.ApplyEvent(working[de.Target()], de, position)
				if err != nil {
					return 0, nil, fmt.Errorf("request %d: %w", i, err)
				}
				working[de.Target()] = next
			}
			translated[i] = append(translated[i], events...)
		}
	}
	call.enter(stateTranslated)
	return index, translated, nil
}

// ReserveIDs reserves count new ids in collection.
func (s *Service) ReserveIDs(ctx context.Context, collection string, count int) ([]int64, error) {
	ids, err := conn.RetryValue(ctx, s.retry, func(ctx context.Context) ([]int64, error) {
		var ids []int64
		err := s.db.Transaction(ctx, func(ctx context.Context) error {
			var err error
			ids, err = s.db.ReserveNextIDs(ctx, collection, count)
			return err
		})
		return ids, err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("reserved ids", "collection", collection, "ids", ids)
	return ids, nil
}

// TruncateDB deletes all data. It takes a sequencer ticket so it never
// interleaves with a write.
func (s *Service) TruncateDB(ctx context.Context) error {
	err := conn.Retry(ctx, s.retry, func(ctx context.Context) (err error) {
		var ticket Ticket
		held := false
		defer func() {
			if !held {
				return
			}
			if rerr := s.seq.Release(ticket); rerr != nil && err == nil {
				err = rerr
			}
		}()

		return s.db.Transaction(ctx, func(ctx context.Context) error {
			var err error
			ticket, err = s.seq.Acquire(ctx)
			if err != nil {
				return err
			}
			held = true
			return s.db.TruncateDB(ctx)
		})
	})
	if err != nil {
		return err
	}
	s.logger.Warn("datastore truncated")
	return nil
}

// touchedFQIDs returns the distinct targets of all requests.
func touchedFQIDs(requests []ir.WriteRequest) []ir.FQID {
	seen := make(map[ir.FQID]bool)
	var out []ir.FQID
	for _, req := range requests {
		for _, f := range req.FQIDs() {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
