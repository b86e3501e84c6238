package conn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Options configures a Manager.
type Options struct {
	// Driver is DriverSQLite or DriverPostgres.
	Driver string

	// DSN is passed to sql.Open unchanged.
	DSN string

	// MinConnections are opened eagerly by Open.
	MinConnections int

	// MaxConnections bounds the number of physical connections.
	MaxConnections int

	// WaitTimeout bounds how long Acquire waits for a free connection.
	// Zero waits until the context is done.
	WaitTimeout time.Duration
}

// Manager is a bounded pool of dedicated connections.
//
// Waiters block on a gate channel that is closed and replaced on every
// release, so a release wakes all of them and they race for the freed slot.
// The mutex guards bookkeeping only; connections are never opened or closed
// while it is held.
type Manager struct {
	db          *sql.DB
	driver      string
	max         int
	waitTimeout time.Duration

	mu     sync.Mutex
	idle   []*sql.Conn
	open   int
	gate   chan struct{}
	closed bool
}

// Conn is a connection checked out of a Manager. It must be handed back
// with Release exactly once.
type Conn struct {
	raw      *sql.Conn
	released bool
}

// Raw returns the underlying dedicated connection.
func (c *Conn) Raw() *sql.Conn {
	return c.raw
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Open int
	Idle int
}

// Open creates a Manager and opens MinConnections connections.
func Open(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Driver != DriverSQLite && opts.Driver != DriverPostgres {
		return nil, fmt.Errorf("open pool: unsupported driver %q", opts.Driver)
	}
	if opts.MaxConnections < 1 {
		opts.MaxConnections = 1
	}
	if opts.MinConnections < 0 || opts.MinConnections > opts.MaxConnections {
		return nil, fmt.Errorf("open pool: min connections %d outside [0, %d]", opts.MinConnections, opts.MaxConnections)
	}

	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	// The bound is enforced by Acquire. Connections taken through DB() are
	// outside it.
	db.SetMaxIdleConns(opts.MaxConnections)
	db.SetConnMaxLifetime(0)

	m := &Manager{
		db:          db,
		driver:      opts.Driver,
		max:         opts.MaxConnections,
		waitTimeout: opts.WaitTimeout,
		gate:        make(chan struct{}),
	}

	for i := 0; i < opts.MinConnections; i++ {
		raw, err := db.Conn(ctx)
		if err == nil {
			err = raw.PingContext(ctx)
		}
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("open pool: %w", Translate("connect", err))
		}
		m.idle = append(m.idle, raw)
		m.open++
	}

	slog.Debug("connection pool opened",
		"driver", opts.Driver,
		"min_connections", opts.MinConnections,
		"max_connections", opts.MaxConnections,
	)
	return m, nil
}

// Driver returns the database/sql driver name.
func (m *Manager) Driver() string {
	return m.driver
}

// DB returns the underlying sql.DB. Use with caution: connections taken
// from it bypass the pool bound.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Stats returns the number of open and idle connections.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Open: m.open, Idle: len(m.idle)}
}

// Acquire checks out a connection, waiting for one to be released when the
// pool is at MaxConnections.
func (m *Manager) Acquire(ctx context.Context) (*Conn, error) {
	var deadline <-chan time.Time
	if m.waitTimeout > 0 {
		timer := time.NewTimer(m.waitTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if n := len(m.idle); n > 0 {
			raw := m.idle[n-1]
			m.idle = m.idle[:n-1]
			m.mu.Unlock()
			return &Conn{raw: raw}, nil
		}
		if m.open < m.max {
			m.open++
			m.mu.Unlock()
			return m.connect(ctx)
		}
		gate := m.gate
		m.mu.Unlock()

		select {
		case <-gate:
		case <-deadline:
			return nil, ErrPoolExhausted
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// connect opens a new physical connection for a slot already counted in open.
func (m *Manager) connect(ctx context.Context) (*Conn, error) {
	raw, err := m.db.Conn(ctx)
	if err != nil {
		m.mu.Lock()
		m.open--
		m.wakeLocked()
		m.mu.Unlock()
		return nil, Translate("connect", err)
	}
	return &Conn{raw: raw}, nil
}

// Release hands c back to the pool. With hasError the physical connection
// is closed and its slot freed; otherwise it is kept for reuse. Releasing a
// connection twice is a no-op.
func (m *Manager) Release(c *Conn, hasError bool) {
	if c == nil || c.released {
		return
	}
	c.released = true

	m.mu.Lock()
	keep := !hasError && !m.closed
	if keep {
		m.idle = append(m.idle, c.raw)
	} else {
		m.open--
	}
	m.wakeLocked()
	m.mu.Unlock()

	if !keep {
		discard(c.raw)
	}
}

// Close closes every idle connection and the underlying sql.DB. Connections
// still checked out are closed when released.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	idle := m.idle
	m.idle = nil
	m.open -= len(idle)
	m.wakeLocked()
	m.mu.Unlock()

	for _, raw := range idle {
		_ = raw.Close()
	}
	return m.db.Close()
}

// wakeLocked releases every goroutine waiting in Acquire. Must hold m.mu.
func (m *Manager) wakeLocked() {
	close(m.gate)
	m.gate = make(chan struct{})
}

// discard closes the physical connection behind raw instead of returning it
// to database/sql's idle list.
func discard(raw *sql.Conn) {
	err := raw.Raw(func(any) error { return driver.ErrBadConn })
	if err != nil && !errors.Is(err, driver.ErrBadConn) && !errors.Is(err, sql.ErrConnDone) {
		slog.Debug("discard connection", "error", err)
	}
	_ = raw.Close()
}
