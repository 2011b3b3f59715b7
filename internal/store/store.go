// Package store implements core.Store on PostgreSQL (pgxpool) and SQLite
// (modernc.org/sqlite).
//
// Both backends share one set of queries written with '?' placeholders.
// A dialect rewrites them to $n for PostgreSQL, names the column types
// used by Migrate and classifies driver errors into core.ErrConflict and
// core.ErrForeignKey.
//
// Crashes, people and vehicles restrict deletes while children reference
// them. Detail rows are removed together with their parent.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/crashdb/internal/config"
	"github.com/JonMunkholm/crashdb/internal/core"
)

// Backend is a core.Store with lifecycle hooks for the binaries.
type Backend interface {
	core.Store

	// Driver names the backend ("postgres" or "sqlite").
	Driver() string

	// Migrate creates missing tables, including one per registered
	// detail table.
	Migrate(ctx context.Context) error

	Ping(ctx context.Context) error
	Close()
}

// Open connects the backend selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.Database)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.Store.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// dialect captures what differs between the backends.
type dialect struct {
	name string

	// numbered rewrites '?' placeholders to $1, $2, ...
	numbered bool

	// byteOrder forces a byte-wise ordering of text keys.
	byteOrder string

	// noRows is the driver's error for an empty single-row query.
	noRows error

	// classify maps constraint violations onto the core causes.
	classify func(error) error

	// timeArg converts a timestamp for binding.
	timeArg func(time.Time) any

	types columnTypes
}

// columnTypes names the SQL types used by Migrate.
type columnTypes struct {
	text       func(n int) string
	timestamp  string
	coordinate string
	integer    string
	bigint     string
	float      string
	boolean    string
}

func (d *dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	return rebindNumbered(query)
}

// rebindNumbered replaces each '?' with $1, $2, ... in order.
func rebindNumbered(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// quoteIdentifier safely quotes a SQL identifier (table or column name).
// Doubles any embedded double quotes to prevent SQL injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// dbTime scans a timestamp stored natively (postgres) or as text (sqlite).
type dbTime struct {
	t time.Time
}

func (d *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.t = core.WallClock(v)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	case nil:
		d.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (d *dbTime) parse(s string) error {
	t, err := core.ParseTimestamp(s)
	if err != nil {
		return err
	}
	d.t = t
	return nil
}
