package conn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"conn done", sql.ErrConnDone, true},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"wrapped bad conn", &DatabaseError{Op: "x", Err: driver.ErrBadConn}, true},
		{"postgres error", &pq.Error{Code: "40001", Message: "serialization failure"}, false},
		{"sqlite error", sqlite3.Error{Code: sqlite3.ErrBusy, ExtendedCode: sqlite3.ErrBusySnapshot}, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"domain", &ir.ModelExistsError{FQID: "a/1"}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTranslate(t *testing.T) {
	t.Run("postgres error gets code", func(t *testing.T) {
		err := Translate("commit", &pq.Error{Code: "23505", Message: "duplicate key"})

		var de *DatabaseError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "commit", de.Op)
		assert.Equal(t, "23505", de.Code)
		assert.Contains(t, err.Error(), "database connection error (commit, code 23505)")
	})

	t.Run("disconnect has no code", func(t *testing.T) {
		err := Translate("begin", driver.ErrBadConn)

		var de *DatabaseError
		require.True(t, errors.As(err, &de))
		assert.Empty(t, de.Code)
		assert.Contains(t, err.Error(), "code none")
		assert.True(t, IsTransient(err))
	})

	t.Run("domain errors pass through", func(t *testing.T) {
		orig := &ir.ModelLockedError{Keys: []string{"a/1"}}
		assert.Same(t, orig, Translate("transaction", orig))
	})

	t.Run("already translated", func(t *testing.T) {
		orig := &DatabaseError{Op: "begin", Err: driver.ErrBadConn}
		assert.Same(t, orig, Translate("transaction", orig))
	})

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, Translate("x", nil))
	})
}
