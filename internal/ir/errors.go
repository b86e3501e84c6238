package ir

import (
	"fmt"
	"strings"
)

// ModelExistsError is returned when a create targets an FQID that is
// already present, deleted or not.
type ModelExistsError struct {
	FQID FQID
}

func (e *ModelExistsError) Error() string {
	return fmt.Sprintf("model %s already exists", e.FQID)
}

// ModelDoesNotExistError is returned when an update or delete targets an
// FQID that is absent or soft-deleted.
type ModelDoesNotExistError struct {
	FQID FQID
}

func (e *ModelDoesNotExistError) Error() string {
	return fmt.Sprintf("model %s does not exist", e.FQID)
}

// ModelNotDeletedError is returned when a restore targets an FQID that is
// absent or not soft-deleted.
type ModelNotDeletedError struct {
	FQID FQID
}

func (e *ModelNotDeletedError) Error() string {
	return fmt.Sprintf("model %s is not deleted", e.FQID)
}

// ModelLockedError lists the lock keys that changed after the caller
// observed them.
type ModelLockedError struct {
	Keys []string
}

func (e *ModelLockedError) Error() string {
	return fmt.Sprintf("locked fields changed: %s", strings.Join(e.Keys, ", "))
}

// ValidationError reports a malformed write request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Message
}

// NewValidationError formats a ValidationError.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ListFieldError is returned when a list update targets a field that does
// not hold a list.
type ListFieldError struct {
	FQID  FQID
	Field string
}

func (e *ListFieldError) Error() string {
	return fmt.Sprintf("field %s of %s is not a list", e.Field, e.FQID)
}

// BadCodingError marks a violated programming contract. It is never
// retried and should surface loudly.
type BadCodingError struct {
	Message string
}

func (e *BadCodingError) Error() string {
	return "bad coding: " + e.Message
}
