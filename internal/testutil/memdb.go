package testutil

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// MemoryDatabase is an in-memory datastore for writer tests. It implements
// the writer's Database, ReadDatabase and OccLocker ports.
//
// Transactions stage their writes and merge them on commit. Reads inside a
// transaction see the committed state overlaid with the staged writes.
// Concurrent transactions do not block each other; a commit that would
// store a position twice fails like a primary key violation would.
//
// Id reservations bypass staging and are applied immediately.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemoryDatabase struct {
	mu sync.Mutex

	clock     *DeterministicClock
	positions []ir.PositionRecord
	events    map[int64][]ir.DbEvent
	models    map[ir.FQID]ir.Object
	locks     map[string]int64
	sequences map[string]int64

	txErrors     []error
	transactions int

	// OnInsert runs at the start of every InsertEvents call, outside the
	// mutex. A non-nil error fails the insert. Tests use it to delay or
	// break a write at a chosen position.
	OnInsert func(ctx context.Context, position int64) error
}

// NewMemoryDatabase creates an empty database.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		clock:     NewDeterministicClock(),
		events:    make(map[int64][]ir.DbEvent),
		models:    make(map[ir.FQID]ir.Object),
		locks:     make(map[string]int64),
		sequences: make(map[string]int64),
	}
}

type memTxKey struct{}

// memTx stages the writes of one transaction.
type memTx struct {
	mu        sync.Mutex
	done      bool
	truncated bool
	records   []ir.PositionRecord
	events    map[int64][]ir.DbEvent
	models    map[ir.FQID]ir.Object
	locks     map[string]int64
}

func txFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{}).(*memTx)
	return tx
}

// FailTransactions queues errors. Each subsequent Transaction call pops
// one and returns it without running its callback.
func (db *MemoryDatabase) FailTransactions(errs ...error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.txErrors = append(db.txErrors, errs...)
}

// Transactions returns how many transactions were begun, failed ones
// included.
func (db *MemoryDatabase) Transactions() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.transactions
}

// Transaction runs fn with a context carrying a fresh staging area and
// commits it if fn returns nil. Opening a transaction inside a live one is
// a *ir.BadCodingError.
func (db *MemoryDatabase) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if outer := txFrom(ctx); outer != nil {
		outer.mu.Lock()
		live := !outer.done
		outer.mu.Unlock()
		if live {
			return &ir.BadCodingError{Message: "nested transaction"}
		}
	}

	db.mu.Lock()
	db.transactions++
	if len(db.txErrors) > 0 {
		err := db.txErrors[0]
		db.txErrors = db.txErrors[1:]
		db.mu.Unlock()
		return err
	}
	db.mu.Unlock()

	tx := &memTx{
		events: make(map[int64][]ir.DbEvent),
		models: make(map[ir.FQID]ir.Object),
		locks:  make(map[string]int64),
	}
	err := fn(context.WithValue(ctx, memTxKey{}, tx))

	tx.mu.Lock()
	tx.done = true
	tx.mu.Unlock()

	if err != nil {
		return err
	}
	return db.commit(tx)
}

// inTx runs fn inside the context's transaction, or a new one.
func (db *MemoryDatabase) inTx(ctx context.Context, fn func(ctx context.Context, tx *memTx) error) error {
	if tx := txFrom(ctx); tx != nil {
		tx.mu.Lock()
		done := tx.done
		tx.mu.Unlock()
		if !done {
			return fn(ctx, tx)
		}
	}
	return db.Transaction(ctx, func(ctx context.Context) error {
		return fn(ctx, txFrom(ctx))
	})
}

func (db *MemoryDatabase) commit(tx *memTx) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if tx.truncated {
		db.resetLocked()
	}
	for _, rec := range tx.records {
		if _, ok := db.events[rec.Position]; ok {
			return fmt.Errorf("commit: duplicate position %d", rec.Position)
		}
	}
	for _, rec := range tx.records {
		events := tx.events[rec.Position]
		for _, e := range events {
			next, err := ir.ApplyEvent(db.models[e.Target()], e, rec.Position)
			if err != nil {
				return fmt.Errorf("commit position %d: %w", rec.Position, err)
			}
			db.models[e.Target()] = next
			if _, ok := e.(ir.DbCreate); ok {
				bumpSequence(db.sequences, e.Target())
			}
		}
		db.positions = append(db.positions, rec)
		db.events[rec.Position] = events
	}
	slices.SortFunc(db.positions, func(a, b ir.PositionRecord) int {
		return int(a.Position - b.Position)
	})
	maps.Copy(db.locks, tx.locks)
	return nil
}

func (db *MemoryDatabase) resetLocked() {
	db.positions = nil
	db.events = make(map[int64][]ir.DbEvent)
	db.models = make(map[ir.FQID]ir.Object)
	db.locks = make(map[string]int64)
	db.sequences = make(map[string]int64)
}

// InsertEvents stages events under position.
func (db *MemoryDatabase) InsertEvents(ctx context.Context, events []ir.DbEvent, position int64, info ir.Value, userID int64) (ir.PositionRecord, error) {
	if len(events) == 0 {
		return ir.PositionRecord{}, &ir.BadCodingError{Message: "insert events: no events"}
	}
	if db.OnInsert != nil {
		if err := db.OnInsert(ctx, position); err != nil {
			return ir.PositionRecord{}, err
		}
	}
	if info == nil {
		info = ir.Null{}
	}

	record := ir.PositionRecord{
		Position:    position,
		Timestamp:   db.clock.Now(),
		UserID:      userID,
		Information: info,
	}
	err := db.inTx(ctx, func(ctx context.Context, tx *memTx) error {
		db.mu.Lock()
		defer db.mu.Unlock()
		tx.mu.Lock()
		defer tx.mu.Unlock()

		if _, ok := tx.events[position]; ok {
			return fmt.Errorf("insert events: duplicate position %d", position)
		}
		for _, e := range events {
			fqid := e.Target()
			next, err := ir.ApplyEvent(db.modelLocked(tx, fqid), e, position)
			if err != nil {
				return err
			}
			tx.models[fqid] = next
			tx.locks[string(fqid)] = position
			for _, field := range ir.TouchedFields(e) {
				tx.locks[fqid.FQField(field)] = position
				tx.locks[fqid.CollectionField(field)] = position
			}
		}
		tx.records = append(tx.records, record)
		tx.events[position] = slices.Clone(events)
		return nil
	})
	if err != nil {
		return ir.PositionRecord{}, fmt.Errorf("insert events at position %d: %w", position, err)
	}
	return record, nil
}

// modelLocked returns the model at fqid as seen by tx. Callers hold both
// mutexes.
func (db *MemoryDatabase) modelLocked(tx *memTx, fqid ir.FQID) ir.Object {
	if m, ok := tx.models[fqid]; ok {
		return m
	}
	if tx.truncated {
		return nil
	}
	return db.models[fqid]
}

// ReserveNextIDs hands out count consecutive ids of collection.
func (db *MemoryDatabase) ReserveNextIDs(ctx context.Context, collection string, count int) ([]int64, error) {
	if !ir.IsValidCollection(collection) {
		return nil, ir.NewValidationError("invalid collection %q", collection)
	}
	if count <= 0 {
		return nil, ir.NewValidationError("amount of ids to reserve must be positive, got %d", count)
	}
	return inTxValue(ctx, db, func() []int64 {
		db.mu.Lock()
		defer db.mu.Unlock()
		next := db.sequences[collection]
		if next == 0 {
			next = 1
		}
		ids := make([]int64, count)
		for i := range ids {
			ids[i] = next + int64(i)
		}
		db.sequences[collection] = next + int64(count)
		return ids
	})
}

func inTxValue[T any](ctx context.Context, db *MemoryDatabase, fn func() T) (T, error) {
	var v T
	err := db.inTx(ctx, func(context.Context, *memTx) error {
		v = fn()
		return nil
	})
	return v, err
}

// TruncateDB stages the removal of all data.
func (db *MemoryDatabase) TruncateDB(ctx context.Context) error {
	return db.inTx(ctx, func(ctx context.Context, tx *memTx) error {
		tx.mu.Lock()
		defer tx.mu.Unlock()
		tx.truncated = true
		tx.records = nil
		tx.events = make(map[int64][]ir.DbEvent)
		tx.models = make(map[ir.FQID]ir.Object)
		tx.locks = make(map[string]int64)
		return nil
	})
}

// CurrentMigrationIndex returns the highest position visible to ctx.
func (db *MemoryDatabase) CurrentMigrationIndex(ctx context.Context) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var index int64
	tx := txFrom(ctx)
	if tx != nil {
		tx.mu.Lock()
		defer tx.mu.Unlock()
		for _, rec := range tx.records {
			index = max(index, rec.Position)
		}
	}
	if (tx == nil || !tx.truncated) && len(db.positions) > 0 {
		index = max(index, db.positions[len(db.positions)-1].Position)
	}
	return index, nil
}

// GetModels returns the visible models for fqids.
func (db *MemoryDatabase) GetModels(ctx context.Context, fqids []ir.FQID) (map[ir.FQID]ir.Object, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx := txFrom(ctx)
	if tx == nil {
		tx = &memTx{}
	} else {
		tx.mu.Lock()
		defer tx.mu.Unlock()
	}

	out := make(map[ir.FQID]ir.Object, len(fqids))
	for _, fqid := range fqids {
		if m := db.modelLocked(tx, fqid); m != nil {
			out[fqid] = m.Clone()
		}
	}
	return out, nil
}

// AssertLockedFields returns a *ir.ModelLockedError listing every lock key
// written after the position the request declares for it.
func (db *MemoryDatabase) AssertLockedFields(ctx context.Context, req ir.WriteRequest) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx := txFrom(ctx)
	if tx != nil {
		tx.mu.Lock()
		defer tx.mu.Unlock()
	}

	var locked []string
	for key, declared := range req.LockedFields {
		pos, ok := db.locks[key]
		if tx != nil {
			if tx.truncated {
				pos, ok = 0, false
			}
			if p, staged := tx.locks[key]; staged {
				pos, ok = p, true
			}
		}
		if ok && pos > declared {
			locked = append(locked, key)
		}
	}
	if len(locked) > 0 {
		slices.Sort(locked)
		return &ir.ModelLockedError{Keys: locked}
	}
	return nil
}

// Positions returns the committed position records in ascending order.
func (db *MemoryDatabase) Positions() []ir.PositionRecord {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.positions)
}

// Events returns the committed events of position.
func (db *MemoryDatabase) Events(position int64) []ir.DbEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.events[position])
}

// Model returns the committed model at fqid.
func (db *MemoryDatabase) Model(fqid ir.FQID) (ir.Object, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.models[fqid]
	return m.Clone(), ok
}

// LockPosition returns the position of the last committed write to key.
func (db *MemoryDatabase) LockPosition(key string) (int64, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.locks[key]
	return p, ok
}

func bumpSequence(seqs map[string]int64, fqid ir.FQID) {
	if next := fqid.ID() + 1; seqs[fqid.Collection()] < next {
		seqs[fqid.Collection()] = next
	}
}
