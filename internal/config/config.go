// Package config provides centralized configuration management for the job
// service. It loads configuration from environment variables with sensible
// defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Backend names for StoreConfig.Backend and JobsConfig.Catalog.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Jobs     JobsConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
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

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 30s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds PostgreSQL connection settings. The URL is only
// needed when the job store or the catalog uses PostgreSQL.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StoreConfig selects and tunes the job store.
type StoreConfig struct {
	// Backend is one of memory, sqlite, postgres, redis (default: memory)
	Backend string `env:"JOB_STORE" default:"memory"`

	// TTL is how long an untouched job record lives (default: 24h)
	TTL time.Duration `env:"JOB_TTL" default:"24h"`

	// SweepInterval is how often expired records are deleted (default: 10m)
	SweepInterval time.Duration `env:"JOB_SWEEP_INTERVAL" default:"10m"`

	// LockTimeout is how long a step waits for a job held by another step (default: 2s)
	LockTimeout time.Duration `env:"JOB_LOCK_TIMEOUT" default:"2s"`

	SQLitePath string `env:"SQLITE_PATH" default:"chunkjob.db"`

	RedisAddr     string `env:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" default:"0"`
}

// JobsConfig holds chunking and file settings.
type JobsConfig struct {
	// DefaultLimit is the chunk size for jobs that do not set one (default: 100)
	DefaultLimit int `env:"JOBS_DEFAULT_LIMIT" default:"100"`

	// MaxLimit caps requested chunk sizes (default: 5000)
	MaxLimit int `env:"JOBS_MAX_LIMIT" default:"5000"`

	// StepTimeout bounds one chunk, below the platform's request ceiling (default: 25s)
	StepTimeout time.Duration `env:"JOBS_STEP_TIMEOUT" default:"25s"`

	// ErrorSampleSize is how many per-item error messages a job keeps (default: 10)
	ErrorSampleSize int `env:"JOBS_ERROR_SAMPLE_SIZE" default:"10"`

	ExportDir string `env:"JOBS_EXPORT_DIR" default:"data/exports"`
	ImportDir string `env:"JOBS_IMPORT_DIR" default:"data/imports"`

	// MaxUploadSize is the largest accepted import file in bytes (default: 100MB)
	MaxUploadSize int64 `env:"JOBS_MAX_UPLOAD_SIZE" default:"104857600"`

	// Catalog is where products and categories live: memory or postgres (default: memory)
	Catalog string `env:"CATALOG_BACKEND" default:"memory"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the sustained rate per IP (default: 600)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"600"`

	// Burst is how many requests may arrive at once (default: 50)
	Burst int `env:"RATE_LIMIT_BURST" default:"50"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey rejects API requests without a valid X-API-Key header
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

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NeedsDatabase reports whether any component is backed by PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.Store.Backend == BackendPostgres || c.Jobs.Catalog == BackendPostgres
}
