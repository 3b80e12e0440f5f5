package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"reportbatch/internal/core"
)

// Dialect selects the SQL flavour and driver of a Repository.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

func (d Dialect) driverName() string {
	return string(d)
}

const (
	timeLayout = "2006-01-02 15:04:05.000000"
	dateLayout = "2006-01-02"
)

// Repository is the relational store for reports, dead letters, job
// executions and the transaction data the report job reads.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	clock   core.Clock
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock sets the clock used for created_at columns.
func WithClock(clock core.Clock) Option {
	return func(r *Repository) {
		r.clock = clock
	}
}

// NewSQLiteRepository opens (creating if needed) the SQLite database at
// dbPath and migrates it.
func NewSQLiteRepository(dbPath string, opts ...Option) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := sqliteDSN(dbPath)

	if err := RunMigrations(DialectSQLite, dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY between
	// the chunk transaction and dead-letter inserts.
	db.SetMaxOpenConns(1)

	return newRepository(db, DialectSQLite, opts...)
}

// NewMySQLRepository connects to MySQL with dsn and migrates the schema.
func NewMySQLRepository(dsn string, opts ...Option) (*Repository, error) {
	if err := RunMigrations(DialectMySQL, dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql database: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	return newRepository(db, DialectMySQL, opts...)
}

func newRepository(db *sql.DB, dialect Dialect, opts ...Option) (*Repository, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &Repository{db: db, dialect: dialect, clock: core.SystemClock{}}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

func sqliteDSN(dbPath string) string {
	if strings.Contains(dbPath, "?") {
		return dbPath
	}
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func (r *Repository) Dialect() Dialect {
	return r.dialect
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return classify(r.db.PingContext(ctx))
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	if err := fn(tx); err != nil {
		return rollbackWith(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func rollbackWith(tx *sql.Tx, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	dateLayout,
}

// scanTime converts a column value into UTC time. Drivers hand back
// time.Time, []byte or string depending on the dialect and DSN.
func scanTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value of type %T", v)
	}
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q", s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
