package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JonMunkholm/crashdb/internal/config"
	"github.com/JonMunkholm/crashdb/internal/core"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var sqliteDialect = &dialect{
	name:     config.DriverSQLite,
	noRows:   sql.ErrNoRows,
	classify: classifySQLite,
	// Stored as text so the value reads back exactly as hashed.
	timeArg: func(t time.Time) any { return t.Format(core.TimestampLayout) },
	types: columnTypes{
		text:       func(int) string { return "TEXT" },
		timestamp:  "TEXT",
		coordinate: "REAL",
		integer:    "INTEGER",
		bigint:     "INTEGER",
		float:      "REAL",
		boolean:    "INTEGER",
	},
}

// classifySQLite maps extended constraint result codes onto the core
// causes.
func classifySQLite(err error) error {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return err
	}
	switch sqlErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %w", core.ErrConflict, err)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %w", core.ErrForeignKey, err)
	}
	return err
}

// SQLite is the embedded store. It holds a single connection, so every
// transaction runs alone.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path with foreign
// keys enforced. MemoryPath gives a database that lives as long as the
// returned store.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = "crashdb.db"
	}

	dsn := "file::memory:?_pragma=foreign_keys(1)"
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	slog.Info("connected to database", "driver", config.DriverSQLite, "path", path)
	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Driver() string { return config.DriverSQLite }

// Path returns the configured database path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Begin(ctx context.Context) (core.Tx, error) {
	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &tx{c: sqlConn{tx: t}, d: sqliteDialect}, nil
}

func (s *SQLite) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(sqliteDialect, core.All()) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() {
	if err := s.db.Close(); err != nil {
		slog.Warn("close sqlite", "error", err)
	}
}

// sqlConn adapts *sql.Tx to conn.
type sqlConn struct {
	tx *sql.Tx
}

func (c sqlConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c sqlConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := c.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{r}, nil
}

func (c sqlConn) queryRow(ctx context.Context, query string, args ...any) row {
	return c.tx.QueryRowContext(ctx, query, args...)
}

func (c sqlConn) commit(context.Context) error {
	return c.tx.Commit()
}

// rollback is a no-op once the transaction has been committed.
func (c sqlConn) rollback(context.Context) error {
	err := c.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}
