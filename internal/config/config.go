// Package config loads crashdb settings from environment variables.
// Defaults come from struct tags and Validate fails fast on bad values.
package config

import (
	"strconv"
	"time"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Write    WriteConfig
	Geofence GeofenceConfig
	Ingest   IngestConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds the wait for in-flight writes on shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the per-request deadline, which also bounds each
	// write transaction (default: 30s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// StoreConfig selects the storage backend.
type StoreConfig struct {
	// Driver is postgres or sqlite (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// SQLitePath is the database file for the sqlite driver (default: crashdb.db)
	SQLitePath string `env:"SQLITE_PATH" default:"crashdb.db"`

	// AutoMigrate creates missing tables at startup (default: true)
	AutoMigrate bool `env:"STORE_AUTO_MIGRATE" default:"true"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required for the postgres
	// driver. Both DATABASE_URL and DB_URL are read.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// WriteConfig holds write serialization settings.
type WriteConfig struct {
	// MaxConcurrent is the number of write slots (default: 1, a single writer)
	MaxConcurrent int `env:"WRITE_MAX_CONCURRENT" default:"1"`

	// MaxWaitTime is how long a write waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"WRITE_MAX_WAIT_TIME" default:"30s"`

	// MaxBodyBytes caps JSON request bodies (default: 1MiB)
	MaxBodyBytes int64 `env:"WRITE_MAX_BODY_BYTES" default:"1048576"`
}

// GeofenceConfig is the narrow coordinate box checked before the
// structural latitude and longitude ranges.
type GeofenceConfig struct {
	Enabled bool    `env:"GEOFENCE_ENABLED" default:"true"`
	MinLat  float64 `env:"GEOFENCE_MIN_LAT" default:"-41"`
	MaxLat  float64 `env:"GEOFENCE_MAX_LAT" default:"43"`
	MinLon  float64 `env:"GEOFENCE_MIN_LON" default:"-88"`
	MaxLon  float64 `env:"GEOFENCE_MAX_LON" default:"-86"`
}

// IngestConfig holds CSV ingest settings.
type IngestConfig struct {
	// RowTimeout bounds the transaction of a single row (default: 10s)
	RowTimeout time.Duration `env:"INGEST_ROW_TIMEOUT" default:"10s"`

	// MaxFileSize is the largest accepted file in bytes (default: 100MiB)
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"104857600"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects /api requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" default:"true"`
	Path    string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
