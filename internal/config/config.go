// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// PlatformConfig holds the connection settings for the remote analytics
// platform: identity endpoint, SQL warehouse, and conversational service.
type PlatformConfig struct {
	Host          string // platform workspace URL (e.g. https://acme.cloud.example.com)
	ClientID      string // OAuth client id (service principal)
	ClientSecret  string // OAuth client secret
	WarehousePath string // SQL warehouse HTTP path (e.g. /sql/1.0/warehouses/abc123)
	Catalog       string // catalog holding the gold tables (default "lakehouse_inn")
	Schema        string // schema holding the gold tables (default "voc_gold")
	GenieSpaceID  string // conversational analytics space id (optional)

	// Token lifecycle. RefreshInterval must stay below TokenLifetime so a
	// scheduled refresh always lands before expiry.
	TokenLifetime   time.Duration // assumed platform token lifetime (default 1h)
	RefreshInterval time.Duration // proactive refresh cadence (default 59m)

	QueryTimeout time.Duration // per-statement execution budget (default 30s)
}

// Configured returns true when the settings needed to reach the SQL
// warehouse are all present. When false the service runs on fallback data.
func (p *PlatformConfig) Configured() bool {
	return p.Host != "" && p.ClientID != "" && p.ClientSecret != "" && p.WarehousePath != ""
}

// ConversationalConfigured returns true when conversational queries can be
// submitted.
func (p *PlatformConfig) ConversationalConfigured() bool {
	return p.Configured() && p.GenieSpaceID != ""
}

// SafetyMargin is the gap between the refresh cadence and the assumed token
// lifetime. Sessions are retired this long before their credential expires.
func (p *PlatformConfig) SafetyMargin() time.Duration {
	return p.TokenLifetime - p.RefreshInterval
}

// Config holds the configuration for the data-access core and its HTTP API.
type Config struct {
	Platform PlatformConfig

	// Cache
	CacheTTL        time.Duration // query cache freshness window (default 5m)
	CacheMaxEntries int           // recency-bounded cap, 0 = unbounded (default 256)

	// Connection pool
	PoolSize       int           // max concurrently checked-out sessions (default 3)
	AcquireTimeout time.Duration // bounded wait for a pooled session (default 5s)

	// Conversational polling
	PollInterval time.Duration // caller-driven poll cadence hint (default 2s)
	PollTimeout  time.Duration // max total wait from submission (default 90s)

	HistoryDBPath string // SQLite path for the query-history store

	ListenAddr string // HTTP listen address (default ":8080")
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables. Platform
// variables are optional: the server can start without them and serve
// fallback data, which is flagged as a warning.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Platform: PlatformConfig{
			Host:          strings.TrimRight(os.Getenv("DATABRICKS_HOST"), "/"),
			ClientID:      os.Getenv("DATABRICKS_CLIENT_ID"),
			ClientSecret:  os.Getenv("DATABRICKS_CLIENT_SECRET"),
			WarehousePath: os.Getenv("DATABRICKS_SQL_WAREHOUSE_PATH"),
			Catalog:       os.Getenv("VOC_CATALOG"),
			Schema:        os.Getenv("VOC_SCHEMA"),
			GenieSpaceID:  os.Getenv("GENIE_SPACE_ID"),
		},
		HistoryDBPath: os.Getenv("HISTORY_DB_PATH"),
		ListenAddr:    os.Getenv("LISTEN_ADDR"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		Env:           os.Getenv("ENV"),
	}

	var err error
	if cfg.Platform.TokenLifetime, err = durationEnv("TOKEN_LIFETIME", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Platform.RefreshInterval, err = durationEnv("TOKEN_REFRESH_INTERVAL", 59*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Platform.QueryTimeout, err = durationEnv("QUERY_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = durationEnv("CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AcquireTimeout, err = durationEnv("POOL_ACQUIRE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = durationEnv("GENIE_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollTimeout, err = durationEnv("GENIE_POLL_TIMEOUT", 90*time.Second); err != nil {
		return nil, err
	}

	cfg.CacheMaxEntries = intEnvDefault("CACHE_MAX_ENTRIES", 256)
	cfg.PoolSize = intEnvDefault("POOL_SIZE", 3)

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, parseErr := strconv.ParseFloat(v, 64); parseErr == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, parseErr := strconv.Atoi(v); parseErr == nil {
			cfg.RateLimitBurst = n
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Defaults
	if cfg.Platform.Catalog == "" {
		cfg.Platform.Catalog = "lakehouse_inn"
	}
	if cfg.Platform.Schema == "" {
		cfg.Platform.Schema = "voc_gold"
	}
	if cfg.HistoryDBPath == "" {
		cfg.HistoryDBPath = "voc_history.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	// Consistency checks
	if cfg.Platform.RefreshInterval >= cfg.Platform.TokenLifetime {
		return nil, fmt.Errorf("TOKEN_REFRESH_INTERVAL (%s) must be shorter than TOKEN_LIFETIME (%s)",
			cfg.Platform.RefreshInterval, cfg.Platform.TokenLifetime)
	}
	if cfg.PollInterval >= cfg.PollTimeout {
		return nil, fmt.Errorf("GENIE_POLL_INTERVAL (%s) must be shorter than GENIE_POLL_TIMEOUT (%s)",
			cfg.PollInterval, cfg.PollTimeout)
	}
	if cfg.PoolSize < 1 {
		return nil, fmt.Errorf("POOL_SIZE must be at least 1")
	}

	if !cfg.Platform.Configured() {
		cfg.Warnings = append(cfg.Warnings,
			"platform connection is not configured, serving fallback data (set DATABRICKS_HOST, DATABRICKS_CLIENT_ID, DATABRICKS_CLIENT_SECRET, DATABRICKS_SQL_WAREHOUSE_PATH)")
	} else if cfg.Platform.GenieSpaceID == "" {
		cfg.Warnings = append(cfg.Warnings,
			"GENIE_SPACE_ID not set, conversational queries are disabled")
	}

	// Production mode: running on placeholder data is a fatal error.
	if cfg.IsProduction() {
		if !cfg.Platform.Configured() {
			return nil, fmt.Errorf("platform connection must be configured in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

func durationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func intEnvDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return defaultVal
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
