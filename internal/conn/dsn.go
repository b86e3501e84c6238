package conn

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// SQLiteDSN builds a go-sqlite3 DSN for the database file at path.
//
// Every connection gets WAL journaling, NORMAL synchronous mode, foreign
// keys and the given busy timeout. Transactions begin IMMEDIATE so two
// writers serialize on BEGIN instead of failing on their first write.
func SQLiteDSN(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.FormatInt(busyTimeout.Milliseconds(), 10))
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// PostgresDSN builds a lib/pq connection URL.
func PostgresDSN(host string, port int, name, user, password, sslMode string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + name,
	}
	if password != "" {
		u.User = url.UserPassword(user, password)
	} else if user != "" {
		u.User = url.User(user)
	}
	if sslMode == "" {
		sslMode = "disable"
	}
	u.RawQuery = url.Values{"sslmode": {sslMode}}.Encode()
	return u.String()
}
