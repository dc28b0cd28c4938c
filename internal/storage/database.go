package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/jackc/pgx/v5/stdlib" // Registers the pgx driver
	_ "modernc.org/sqlite"             // Registers the sqlite driver
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn    *sql.DB
	dialect string
}

// Open creates a new database connection for driver ("sqlite" or "postgres")
// and ensures the schema is up to date.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var sqlDriver, d, ddl string
	switch driver {
	case DriverSQLite:
		sqlDriver, d, ddl = "sqlite", dialect.SQLite, sqliteSchema
	case DriverPostgres:
		sqlDriver, d, ddl = "pgx", dialect.Postgres, postgresSchema
	default:
		return nil, fmt.Errorf("failed to open database: unknown driver %q", driver)
	}

	conn, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite && strings.Contains(dsn, ":memory:") {
		// Every connection to :memory: is a separate database.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: conn, dialect: d}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) builder() *entsql.DialectBuilder {
	return entsql.Dialect(db.dialect)
}

// querier is satisfied by both an *sql.DB and an *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// exec runs a built statement.
func exec(ctx context.Context, q querier, b entsql.Querier) (sql.Result, error) {
	query, args := b.Query()
	return q.ExecContext(ctx, query, args...)
}

// inTx runs fn inside a transaction and commits when it returns nil.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// utc normalises stored timestamps so both drivers compare them the same way.
func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: utc(*t), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
