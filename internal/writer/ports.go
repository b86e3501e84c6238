package writer

import (
	"context"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// Database persists events. Methods called with the context passed to a
// Transaction callback run inside that transaction.
type Database interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	InsertEvents(ctx context.Context, events []ir.DbEvent, position int64, info ir.Value, userID int64) (ir.PositionRecord, error)
	ReserveNextIDs(ctx context.Context, collection string, count int) ([]int64, error)
	TruncateDB(ctx context.Context) error
}

// ReadDatabase reads the state the writer validates against.
type ReadDatabase interface {
	// CurrentMigrationIndex returns the last committed position, 0 if none.
	CurrentMigrationIndex(ctx context.Context) (int64, error)

	// GetModels returns the stored models for fqids, soft-deleted ones
	// included. Absent models are missing from the map.
	GetModels(ctx context.Context, fqids []ir.FQID) (map[ir.FQID]ir.Object, error)
}

// Messaging notifies subscribers of persisted events. An error fails the
// write.
type Messaging interface {
	HandleEvents(ctx context.Context, positions []ir.PositionedEvents) error
}

// OccLocker checks a request's locked fields against the stored positions
// and returns a *ir.ModelLockedError if any changed.
type OccLocker interface {
	AssertLockedFields(ctx context.Context, req ir.WriteRequest) error
}
