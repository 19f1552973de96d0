// Package db opens the form database and creates its tables.
//
// Four drivers are supported. sqlite3 (cgo, the default) and sqlite (pure
// Go) store everything in one local file; mysql and postgres connect to a
// server through a DSN.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL syntax differences between database engines.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// Driver names accepted by Config.Driver.
const (
	DriverSQLite3  = "sqlite3"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

const (
	DefaultPath           = "basicforms.db"
	DefaultConnectTimeout = 30 * time.Second
	busyTimeoutMillis     = 5000
)

// Config describes how to reach the database.
type Config struct {
	Driver string
	// Path is the SQLite database file. Ignored by server drivers and when
	// DSN is set.
	Path string
	// DSN is passed to the driver as is.
	DSN string
	// ConnectTimeout bounds the retries of the initial ping.
	ConnectTimeout time.Duration
}

// DB is an open database handle together with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
	Driver  string
}

// Open connects to the database described by cfg, waits until it answers
// and creates the tables if they do not exist yet.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite3
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	sqlDB, dialect, err := open(cfg)
	if err != nil {
		return nil, err
	}

	if dialect == SQLite && isMemory(cfg) {
		// Every pooled connection would get its own private database.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := ping(ctx, sqlDB, cfg.ConnectTimeout); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &DB{DB: sqlDB, Dialect: dialect, Driver: cfg.Driver}
	if err := d.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	if dialect == SQLite && cfg.DSN == "" && !isMemory(cfg) {
		if err := os.Chmod(cfg.Path, 0600); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to set permissions: %w", err)
		}
	}
	return d, nil
}

func open(cfg Config) (*sql.DB, Dialect, error) {
	switch cfg.Driver {
	case DriverSQLite3:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d",
				cfg.Path, busyTimeoutMillis)
		}
		sqlDB, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open database: %w", err)
		}
		return sqlDB, SQLite, nil

	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
				cfg.Path, busyTimeoutMillis)
		}
		sqlDB, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open database: %w", err)
		}
		return sqlDB, SQLite, nil

	case DriverMySQL:
		mc, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		mc.MultiStatements = false
		// Report matched rather than changed rows from UPDATE.
		mc.ClientFoundRows = true
		connector, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create mysql connector: %w", err)
		}
		return sql.OpenDB(connector), MySQL, nil

	case DriverPostgres:
		connector, err := pq.NewConnector(cfg.DSN)
		if err != nil {
			return nil, "", fmt.Errorf("invalid postgres dsn: %w", err)
		}
		return sql.OpenDB(connector), Postgres, nil

	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func isMemory(cfg Config) bool {
	return cfg.DSN == "" && cfg.Path == ":memory:"
}

func ping(ctx context.Context, sqlDB *sql.DB, timeout time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = timeout
	return backoff.Retry(func() error {
		err := sqlDB.PingContext(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

// Migrate creates the tables and indexes if they are missing.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range Schema(d.Dialect) {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Rebind rewrites ? placeholders into the dialect's bind syntax.
func (d *DB) Rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
