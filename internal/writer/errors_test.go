package writer

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/conn"
	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"model exists", &ir.ModelExistsError{FQID: "a/1"}, KindInvalidRequest},
		{"model does not exist", fmt.Errorf("request 0: %w", &ir.ModelDoesNotExistError{FQID: "a/1"}), KindInvalidRequest},
		{"model not deleted", &ir.ModelNotDeletedError{FQID: "a/1"}, KindInvalidRequest},
		{"model locked", &ir.ModelLockedError{Keys: []string{"a/1"}}, KindInvalidRequest},
		{"validation", ir.NewValidationError("bad"), KindInvalidRequest},
		{"list field", &ir.ListFieldError{FQID: "a/1", Field: "f"}, KindInvalidRequest},
		{"bad coding", &ir.BadCodingError{Message: "oops"}, KindInternal},
		{"connection lost", conn.Translate("commit", driver.ErrBadConn), KindRetryable},
		{"pool exhausted", fmt.Errorf("acquire: %w", conn.ErrPoolExhausted), KindRetryable},
		{"sql error", conn.Translate("transaction", &pq.Error{Code: "23505"}), KindInternal},
		{"unknown", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "none", KindNone.String())
	assert.Equal(t, "retryable", KindRetryable.String())
	assert.Equal(t, "invalid_request", KindInvalidRequest.String())
	assert.Equal(t, "internal", KindInternal.String())
	assert.Equal(t, "unknown", ErrorKind(42).String())
}

func TestIsModelLocked(t *testing.T) {
	assert.True(t, IsModelLocked(fmt.Errorf("wrap: %w", &ir.ModelLockedError{Keys: []string{"a/1"}})))
	assert.False(t, IsModelLocked(&ir.ModelExistsError{FQID: "a/1"}))
}
