// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        // e.g. "8080"
	AdminPort       string        // e.g. "8081"
	Env             string        // "development" | "production"
	ReadTimeout     time.Duration // default 10s
	WriteTimeout    time.Duration // default 10s
	AllowedOrigins  string        // comma-separated CORS origins; "" = dev wildcard
	AdminAllowedIPs string        // comma-separated IPs; "" = allow all
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// JWTConfig holds token settings. The access token is a signed JWT; the
// refresh token is opaque and only its TTL is configured here.
type JWTConfig struct {
	Secret     string        // HS256 signing key, at least 32 chars
	Issuer     string        // "iss" claim, validated on parse
	Audience   string        // "aud" claim, validated on parse
	AccessTTL  time.Duration // default 15m
	RefreshTTL time.Duration // default 168h (7 days)
}

// LockConfig holds per-auction lock settings. When Distributed is false the
// in-process locker is used and the Redis fields are ignored.
type LockConfig struct {
	Distributed   bool          // true → Redis-backed lock across instances
	RedisAddr     string        // default "localhost:6379"
	RedisPassword string        // default ""
	RedisDB       int           // default 0
	WaitBudget    time.Duration // max time a bidder waits for the lock, default 5s
	HoldTTL       time.Duration // lock expiry for crashed holders, default 10s
	RetryInterval time.Duration // pause between acquire attempts, default 10ms
}

// SchedulerConfig holds the background loop intervals.
type SchedulerConfig struct {
	SweepInterval     time.Duration // settlement sweep, default 1s
	SweepConcurrency  int           // auctions settled in parallel per sweep, default 4
	TimerSyncInterval time.Duration // per-room countdown broadcast, default 15s
	LiveStatsInterval time.Duration // global stats broadcast, default 10s
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	JWT       JWTConfig
	Lock      LockConfig
	Scheduler SchedulerConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// All violations are reported at once via errors.Join.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be set and at least 32 characters"))
	}
	if c.JWT.Issuer == "" {
		errs = append(errs, errors.New("JWT_ISSUER must be set"))
	}
	if c.JWT.Audience == "" {
		errs = append(errs, errors.New("JWT_AUDIENCE must be set"))
	}

	// In production, DB DSN must be explicit
	if c.IsProd() && c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
	}

	if c.Lock.Distributed && c.Lock.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR must be set when LOCK_DISTRIBUTED=true"))
	}
	if c.Lock.WaitBudget <= 0 {
		errs = append(errs, fmt.Errorf("LOCK_WAIT_BUDGET must be positive, got %v", c.Lock.WaitBudget))
	}
	if c.Lock.HoldTTL <= 0 {
		errs = append(errs, fmt.Errorf("LOCK_HOLD_TTL must be positive, got %v", c.Lock.HoldTTL))
	}
	if c.Lock.HoldTTL <= c.Lock.WaitBudget {
		errs = append(errs, fmt.Errorf(
			"LOCK_HOLD_TTL (%v) should exceed LOCK_WAIT_BUDGET (%v) so a slow critical section outlives waiting bidders",
			c.Lock.HoldTTL, c.Lock.WaitBudget))
	}

	if c.Scheduler.SweepConcurrency < 1 {
		errs = append(errs, fmt.Errorf("SWEEP_CONCURRENCY must be at least 1, got %d", c.Scheduler.SweepConcurrency))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:            getEnv("SERVER_PORT", "8080"),
		AdminPort:       getEnv("ADMIN_PORT", "8081"),
		Env:             getEnv("ENVIRONMENT", "development"),
		ReadTimeout:     getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", ""),
		AdminAllowedIPs: getEnv("ADMIN_ALLOWED_IPS", ""),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "openlot_auction"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── JWT ───────────────────────────────────────────────────────────────────
	cfg.JWT = JWTConfig{
		Secret:     getEnv("JWT_SECRET", ""),
		Issuer:     getEnv("JWT_ISSUER", "openlot-auction"),
		Audience:   getEnv("JWT_AUDIENCE", "openlot-clients"),
		AccessTTL:  getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL: getDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
	}

	// ── Lock ──────────────────────────────────────────────────────────────────
	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB: %w", err)
	}
	cfg.Lock = LockConfig{
		Distributed:   getBool("LOCK_DISTRIBUTED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,
		WaitBudget:    getDuration("LOCK_WAIT_BUDGET", 5*time.Second),
		HoldTTL:       getDuration("LOCK_HOLD_TTL", 10*time.Second),
		RetryInterval: getDuration("LOCK_RETRY_INTERVAL", 10*time.Millisecond),
	}

	// ── Scheduler ─────────────────────────────────────────────────────────────
	sweepN, err := getInt("SWEEP_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("SWEEP_CONCURRENCY: %w", err)
	}
	cfg.Scheduler = SchedulerConfig{
		SweepInterval:     getDuration("SWEEP_INTERVAL", time.Second),
		SweepConcurrency:  sweepN,
		TimerSyncInterval: getDuration("TIMER_SYNC_INTERVAL", 15*time.Second),
		LiveStatsInterval: getDuration("LIVE_STATS_INTERVAL", 10*time.Second),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Fall back to default; do not crash on parse error
		return defaultVal
	}
	return d
}
