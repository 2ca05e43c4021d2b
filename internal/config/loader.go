package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from environment variables, applies defaults
// for unset values and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	var l loader
	l.load(reflect.ValueOf(cfg).Elem())
	if len(l.errs) > 0 {
		return nil, fmt.Errorf("config load: %s", strings.Join(l.errs, "; "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// loader fills tagged struct fields and collects every problem instead of
// stopping at the first one.
type loader struct {
	errs []string
}

func (l *loader) load(v reflect.Value) {
	t := v.Type()
	for i := range t.NumField() {
		field, val := t.Field(i), v.Field(i)
		if !val.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			l.load(val)
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := lookup(name, field.Tag.Get("envAlt"))
		if !ok {
			if field.Tag.Get("required") == "true" {
				l.errs = append(l.errs, fmt.Sprintf("required environment variable %s is not set", name))
				continue
			}
			raw = field.Tag.Get("default")
		}
		if raw == "" {
			continue
		}
		if err := set(val, raw); err != nil {
			l.errs = append(l.errs, fmt.Sprintf("invalid value for %s=%q: %v", name, raw, err))
		}
	}
}

// lookup returns the first non-empty of the primary and alternate variables.
func lookup(name, alt string) (string, bool) {
	if v := os.Getenv(name); v != "" {
		return v, true
	}
	if alt != "" {
		if v := os.Getenv(alt); v != "" {
			return v, true
		}
	}
	return "", false
}

// set parses raw into the field according to its type. Slices of strings
// are comma separated.
func set(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		var items []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.NeedsDatabase() && c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required when JOB_STORE or CATALOG_BACKEND is postgres")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Store validation
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite, BackendPostgres, BackendRedis:
	default:
		errs = append(errs, fmt.Sprintf("JOB_STORE (%q) must be one of: memory, sqlite, postgres, redis", c.Store.Backend))
	}
	if c.Store.TTL <= 0 {
		errs = append(errs, "JOB_TTL must be positive")
	}
	if c.Store.SweepInterval <= 0 {
		errs = append(errs, "JOB_SWEEP_INTERVAL must be positive")
	}
	if c.Store.LockTimeout < 0 {
		errs = append(errs, "JOB_LOCK_TIMEOUT must be non-negative")
	}
	if c.Store.Backend == BackendSQLite && c.Store.SQLitePath == "" {
		errs = append(errs, "SQLITE_PATH is required when JOB_STORE is sqlite")
	}
	if c.Store.Backend == BackendRedis && c.Store.RedisAddr == "" {
		errs = append(errs, "REDIS_ADDR is required when JOB_STORE is redis")
	}

	// Jobs validation
	if c.Jobs.DefaultLimit <= 0 {
		errs = append(errs, "JOBS_DEFAULT_LIMIT must be positive")
	}
	if c.Jobs.MaxLimit < c.Jobs.DefaultLimit {
		errs = append(errs, fmt.Sprintf("JOBS_MAX_LIMIT (%d) must be >= JOBS_DEFAULT_LIMIT (%d)",
			c.Jobs.MaxLimit, c.Jobs.DefaultLimit))
	}
	if c.Jobs.StepTimeout < 0 {
		errs = append(errs, "JOBS_STEP_TIMEOUT must be non-negative")
	}
	if c.Jobs.ErrorSampleSize < 0 {
		errs = append(errs, "JOBS_ERROR_SAMPLE_SIZE must be non-negative")
	}
	if c.Jobs.ExportDir == "" || c.Jobs.ImportDir == "" {
		errs = append(errs, "JOBS_EXPORT_DIR and JOBS_IMPORT_DIR must be set")
	}
	if c.Jobs.MaxUploadSize <= 0 {
		errs = append(errs, "JOBS_MAX_UPLOAD_SIZE must be positive")
	}
	if c.Jobs.Catalog != BackendMemory && c.Jobs.Catalog != BackendPostgres {
		errs = append(errs, fmt.Sprintf("CATALOG_BACKEND (%q) must be one of: memory, postgres", c.Jobs.Catalog))
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs, passwords and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: %s, MaxConns: %d, MinConns: %d}, ",
		mask(c.Database.URL), c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Store: {Backend: %q, TTL: %s, RedisAddr: %q, RedisPassword: %s}, ",
		c.Store.Backend, c.Store.TTL, c.Store.RedisAddr, mask(c.Store.RedisPassword))
	fmt.Fprintf(&b, "Jobs: {DefaultLimit: %d, MaxLimit: %d, StepTimeout: %s, Catalog: %q}, ",
		c.Jobs.DefaultLimit, c.Jobs.MaxLimit, c.Jobs.StepTimeout, c.Jobs.Catalog)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d configured}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
