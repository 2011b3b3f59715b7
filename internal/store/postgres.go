package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/crashdb/internal/config"
	"github.com/JonMunkholm/crashdb/internal/core"
)

// PostgreSQL error codes for constraint violations.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var postgresDialect = &dialect{
	name:      config.DriverPostgres,
	numbered:  true,
	byteOrder: `COLLATE "C"`,
	noRows:    pgx.ErrNoRows,
	classify:  classifyPostgres,
	timeArg:   func(t time.Time) any { return t },
	types: columnTypes{
		text:       func(n int) string { return "VARCHAR(" + strconv.Itoa(n) + ")" },
		timestamp:  "TIMESTAMP",
		coordinate: "NUMERIC(9,6)",
		integer:    "INTEGER",
		bigint:     "BIGINT",
		float:      "DOUBLE PRECISION",
		boolean:    "BOOLEAN",
	},
}

// classifyPostgres wraps unique and foreign key violations in the core
// causes, keeping the driver error in the chain.
func classifyPostgres(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %w", core.ErrConflict, err)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %w", core.ErrForeignKey, err)
	}
	return err
}

// Postgres is the pgxpool-backed store.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool sized from cfg and verifies it with a ping.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "driver", config.DriverPostgres, "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database", "driver", config.DriverPostgres)
	}

	return NewPostgres(pool), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Driver() string { return config.DriverPostgres }

func (p *Postgres) Begin(ctx context.Context) (core.Tx, error) {
	t, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &tx{c: pgConn{tx: t}, d: postgresDialect}, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(postgresDialect, core.All()) {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// pgConn adapts pgx.Tx to conn.
type pgConn struct {
	tx pgx.Tx
}

func (c pgConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c pgConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	return c.tx.Query(ctx, query, args...)
}

func (c pgConn) queryRow(ctx context.Context, query string, args ...any) row {
	return c.tx.QueryRow(ctx, query, args...)
}

func (c pgConn) commit(ctx context.Context) error {
	return c.tx.Commit(ctx)
}

// rollback is a no-op once the transaction has been committed.
func (c pgConn) rollback(ctx context.Context) error {
	err := c.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
