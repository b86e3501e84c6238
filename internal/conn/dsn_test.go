package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSQLiteDSN(t *testing.T) {
	got := SQLiteDSN("/tmp/data.db", 5*time.Second)

	assert.Equal(t, "file:/tmp/data.db?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL&_txlock=immediate", got)
}

func TestPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			name: "full",
			got:  PostgresDSN("db", 5432, "datastore", "openslides", "p@ss word", ""),
			want: "postgres://openslides:p%40ss%20word@db:5432/datastore?sslmode=disable",
		},
		{
			name: "no password",
			got:  PostgresDSN("localhost", 5433, "ds", "me", "", "require"),
			want: "postgres://me@localhost:5433/ds?sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}
