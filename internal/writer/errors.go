package writer

import (
	"errors"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/conn"
	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// ErrorKind tells a caller what to do about a failed write.
type ErrorKind int

const (
	// KindNone is the kind of a nil error.
	KindNone ErrorKind = iota
	// KindRetryable: the datastore was unreachable; the same call may succeed later.
	KindRetryable
	// KindInvalidRequest: the request conflicts with the stored state or is
	// malformed. Retrying it unchanged fails again.
	KindInvalidRequest
	// KindInternal: a database failure or a programming error.
	KindInternal
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRetryable:
		return "retryable"
	case KindInvalidRequest:
		return "invalid_request"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Classify maps an error returned by the Service to its kind. Wrapped
// errors are classified by the innermost known type.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case IsBadCoding(err):
		return KindInternal
	case IsInvalidRequest(err):
		return KindInvalidRequest
	case conn.IsTransient(err), errors.Is(err, conn.ErrPoolExhausted):
		return KindRetryable
	}
	return KindInternal
}

// IsInvalidRequest returns true if err is a domain error caused by the
// request: an existence conflict, a lock conflict, a malformed request or a
// list update on a non-list field.
func IsInvalidRequest(err error) bool {
	var (
		exists     *ir.ModelExistsError
		notExist   *ir.ModelDoesNotExistError
		notDeleted *ir.ModelNotDeletedError
		locked     *ir.ModelLockedError
		invalid    *ir.ValidationError
		listField  *ir.ListFieldError
	)
	return errors.As(err, &exists) ||
		errors.As(err, &notExist) ||
		errors.As(err, &notDeleted) ||
		errors.As(err, &locked) ||
		errors.As(err, &invalid) ||
		errors.As(err, &listField)
}

// IsModelLocked returns true if err is or wraps a *ir.ModelLockedError.
func IsModelLocked(err error) bool {
	var mle *ir.ModelLockedError
	return errors.As(err, &mle)
}

// IsBadCoding returns true if err is or wraps a *ir.BadCodingError.
func IsBadCoding(err error) bool {
	var bce *ir.BadCodingError
	return errors.As(err, &bce)
}
