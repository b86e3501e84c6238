package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/conn"
)

// Environment variable names.
const (
	EnvDriver                = "DATASTORE_DATABASE_DRIVER"
	EnvHost                  = "DATASTORE_DATABASE_HOST"
	EnvPort                  = "DATASTORE_DATABASE_PORT"
	EnvName                  = "DATASTORE_DATABASE_NAME"
	EnvUser                  = "DATASTORE_DATABASE_USER"
	EnvPasswordFile          = "DATASTORE_DATABASE_PASSWORD_FILE"
	EnvSSLMode               = "DATASTORE_DATABASE_SSLMODE"
	EnvMinConnections        = "DATASTORE_MIN_CONNECTIONS"
	EnvMaxConnections        = "DATASTORE_MAX_CONNECTIONS"
	EnvRetryTimeout          = "DATASTORE_RETRY_TIMEOUT"
	EnvMaxRetries            = "DATASTORE_MAX_RETRIES"
	EnvConnectionWaitTimeout = "DATASTORE_CONNECTION_WAIT_TIMEOUT"
	EnvBusyTimeout           = "DATASTORE_BUSY_TIMEOUT"
)

// Config is the datastore configuration. Durations are milliseconds.
//
// For the sqlite3 driver Name is the database file path and the host,
// port, user and password settings are ignored.
type Config struct {
	Driver       string `yaml:"database_driver"`
	Host         string `yaml:"database_host"`
	Port         int    `yaml:"database_port"`
	Name         string `yaml:"database_name"`
	User         string `yaml:"database_user"`
	PasswordFile string `yaml:"database_password_file"`
	SSLMode      string `yaml:"database_sslmode"`

	MinConnections        int `yaml:"min_connections"`
	MaxConnections        int `yaml:"max_connections"`
	RetryTimeout          int `yaml:"retry_timeout"`
	MaxRetries            int `yaml:"max_retries"`
	ConnectionWaitTimeout int `yaml:"connection_wait_timeout"`
	BusyTimeout           int `yaml:"busy_timeout"`
}

// Error reports an invalid configuration value.
type Error struct {
	Key     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Key, e.Message, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Key, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsError returns true if err is or wraps a *Error.
func IsError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// LookupFunc looks up an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Driver:         conn.DriverSQLite,
		Port:           5432,
		Name:           "datastore.db",
		SSLMode:        "disable",
		MinConnections: 1,
		MaxConnections: 1,
		RetryTimeout:   10,
		MaxRetries:     conn.DefaultMaxRetries,
		BusyTimeout:    5000,
	}
}

// Load builds the configuration from the defaults, the YAML file at path
// (skipped if path is empty) and the environment, in that order of
// increasing precedence, then validates it.
func Load(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &Error{Key: "file", Message: "cannot read " + path, Err: err}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &Error{Key: "file", Message: "cannot parse " + path, Err: err}
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvDriver, &c.Driver},
		{EnvHost, &c.Host},
		{EnvName, &c.Name},
		{EnvUser, &c.User},
		{EnvPasswordFile, &c.PasswordFile},
		{EnvSSLMode, &c.SSLMode},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvPort, &c.Port},
		{EnvMinConnections, &c.MinConnections},
		{EnvMaxConnections, &c.MaxConnections},
		{EnvRetryTimeout, &c.RetryTimeout},
		{EnvMaxRetries, &c.MaxRetries},
		{EnvConnectionWaitTimeout, &c.ConnectionWaitTimeout},
		{EnvBusyTimeout, &c.BusyTimeout},
	}
	for _, i := range ints {
		v, ok := lookup(i.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &Error{Key: i.key, Message: fmt.Sprintf("%q is not an integer", v), Err: err}
		}
		*i.dst = n
	}
	return nil
}

// Validate checks that every value is usable.
func (c Config) Validate() error {
	switch c.Driver {
	case conn.DriverSQLite:
		if c.Name == "" {
			return &Error{Key: EnvName, Message: "database file path is required"}
		}
	case conn.DriverPostgres:
		if c.Host == "" {
			return &Error{Key: EnvHost, Message: "required for postgres"}
		}
		if c.Name == "" {
			return &Error{Key: EnvName, Message: "required for postgres"}
		}
		if c.User == "" {
			return &Error{Key: EnvUser, Message: "required for postgres"}
		}
		if c.Port <= 0 || c.Port > 65535 {
			return &Error{Key: EnvPort, Message: fmt.Sprintf("%d is not a valid port", c.Port)}
		}
	default:
		return &Error{Key: EnvDriver, Message: fmt.Sprintf("unsupported driver %q", c.Driver)}
	}

	if c.MaxConnections < 1 {
		return &Error{Key: EnvMaxConnections, Message: "must be at least 1"}
	}
	if c.MinConnections < 0 || c.MinConnections > c.MaxConnections {
		return &Error{Key: EnvMinConnections, Message: fmt.Sprintf("must be between 0 and %d", c.MaxConnections)}
	}
	if c.MaxRetries < 1 {
		return &Error{Key: EnvMaxRetries, Message: "must be at least 1"}
	}
	for key, v := range map[string]int{
		EnvRetryTimeout:          c.RetryTimeout,
		EnvConnectionWaitTimeout: c.ConnectionWaitTimeout,
		EnvBusyTimeout:           c.BusyTimeout,
	} {
		if v < 0 {
			return &Error{Key: key, Message: "must not be negative"}
		}
	}
	return nil
}

// Password reads the password file. A missing setting means no password.
func (c Config) Password() (string, error) {
	if c.PasswordFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.PasswordFile)
	if err != nil {
		return "", &Error{Key: EnvPasswordFile, Message: "cannot read password file", Err: err}
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// ConnOptions returns the connection pool options.
func (c Config) ConnOptions() (conn.Options, error) {
	opts := conn.Options{
		Driver:         c.Driver,
		MinConnections: c.MinConnections,
		MaxConnections: c.MaxConnections,
		WaitTimeout:    ms(c.ConnectionWaitTimeout),
	}
	switch c.Driver {
	case conn.DriverSQLite:
		opts.DSN = conn.SQLiteDSN(c.Name, ms(c.BusyTimeout))
	case conn.DriverPostgres:
		password, err := c.Password()
		if err != nil {
			return conn.Options{}, err
		}
		opts.DSN = conn.PostgresDSN(c.Host, c.Port, c.Name, c.User, password, c.SSLMode)
	default:
		return conn.Options{}, &Error{Key: EnvDriver, Message: fmt.Sprintf("unsupported driver %q", c.Driver)}
	}
	return opts, nil
}

// RetryPolicy returns the policy for transient database errors.
func (c Config) RetryPolicy() conn.RetryPolicy {
	return conn.RetryPolicy{
		MaxRetries: c.MaxRetries,
		Delay:      ms(c.RetryTimeout),
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
