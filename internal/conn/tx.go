package conn

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

type txKey struct{}

// activeTx is the transaction a context carries.
type activeTx struct {
	tx   *sql.Tx
	done atomic.Bool

	mu          sync.Mutex
	afterCommit []func()
}

// invalidated reports whether the transaction was committed, rolled back or
// lost its connection.
func (a *activeTx) invalidated() bool {
	return a.done.Load()
}

// TxFromContext returns the live transaction carried by ctx.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	a, ok := ctx.Value(txKey{}).(*activeTx)
	if !ok || a.invalidated() {
		return nil, false
	}
	return a.tx, true
}

// AfterCommit registers fn to run once the transaction carried by ctx has
// committed. Hooks run in registration order and are dropped on rollback.
// It returns false, without registering, when ctx carries no live
// transaction.
func AfterCommit(ctx context.Context, fn func()) bool {
	a, ok := ctx.Value(txKey{}).(*activeTx)
	if !ok || a.invalidated() {
		return false
	}
	a.mu.Lock()
	a.afterCommit = append(a.afterCommit, fn)
	a.mu.Unlock()
	return true
}

func (a *activeTx) runAfterCommit() {
	a.mu.Lock()
	hooks := a.afterCommit
	a.afterCommit = nil
	a.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// InTransaction reports whether ctx carries a live transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := TxFromContext(ctx)
	return ok
}

// WithTransaction runs fn inside a transaction on a dedicated connection.
// The context passed to fn carries the transaction; TxFromContext retrieves
// it.
//
// The transaction commits if fn returns nil and rolls back otherwise. The
// connection is released on every exit path including panics. It is
// discarded rather than recycled when the failure came from the driver, so
// a broken connection is never handed out again.
//
// Starting a transaction from a context that already carries a live one is
// a *ir.BadCodingError. A carried transaction that is already finished is
// ignored.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if a, ok := ctx.Value(txKey{}).(*activeTx); ok {
		if !a.invalidated() {
			return &ir.BadCodingError{Message: "cannot start multiple transactions in one context"}
		}
		slog.Debug("discarding finished transaction carried by context")
	}

	c, err := m.Acquire(ctx)
	if err != nil {
		return err
	}

	hasError := true
	defer func() {
		m.Release(c, hasError)
	}()

	tx, err := c.raw.BeginTx(ctx, nil)
	if err != nil {
		return Translate("begin", err)
	}

	active := &activeTx{tx: tx}
	defer func() {
		if active.done.CompareAndSwap(false, true) {
			// Only reached on panic.
			_ = tx.Rollback()
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, active)); err != nil {
		active.done.Store(true)
		rbErr := tx.Rollback()
		hasError = isDriverError(err) || (rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone))
		return Translate("transaction", err)
	}

	active.done.Store(true)
	if err := tx.Commit(); err != nil {
		return Translate("commit", err)
	}
	hasError = false
	active.runAfterCommit()
	return nil
}
