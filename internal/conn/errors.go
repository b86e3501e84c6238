package conn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrPoolExhausted is returned by Acquire when a wait timeout is
	// configured and no connection became free in time.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("connection pool closed")
)

// DatabaseError wraps an error raised by the database driver.
//
// Code is the SQLSTATE (PostgreSQL) or extended result code (SQLite). It is
// empty for connection-level failures, which are the only ones IsTransient
// accepts.
type DatabaseError struct {
	// Op names the manager operation that failed.
	Op string

	// Code is the driver error code, or "" if the driver gave none.
	Code string

	// Err is the underlying driver error.
	Err error
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	code := e.Code
	if code == "" {
		code = "none"
	}
	return fmt.Sprintf("database connection error (%s, code %s): %v", e.Op, code, e.Err)
}

// Unwrap returns the driver error.
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// IsDatabaseError returns true if err is or wraps a *DatabaseError.
func IsDatabaseError(err error) bool {
	var de *DatabaseError
	return errors.As(err, &de)
}

// IsTransient reports whether err is a sudden, code-less loss of the
// connection. Errors that carry a driver code are SQL-level and are never
// transient, no matter how they are wrapped.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if driverCode(err) != "" {
		return false
	}

	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	var ne net.Error
	return errors.As(err, &ne)
}

// Translate wraps driver errors into a *DatabaseError tagged with op. Any
// other error, including domain errors returned from a transaction body,
// is returned unchanged.
func Translate(op string, err error) error {
	if err == nil || !isDriverError(err) || IsDatabaseError(err) {
		return err
	}
	return &DatabaseError{Op: op, Code: driverCode(err), Err: err}
}

// isDriverError reports whether err originated in the database layer.
func isDriverError(err error) bool {
	if driverCode(err) != "" {
		return true
	}
	if errors.Is(err, sql.ErrTxDone) {
		return true
	}
	return IsTransient(err)
}

func driverCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return strconv.Itoa(int(liteErr.ExtendedCode))
	}
	return ""
}
