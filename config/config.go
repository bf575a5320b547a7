package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session store backends.
const (
	SessionBackendMemory   = "memory"
	SessionBackendPostgres = "postgres"
	SessionBackendRedis    = "redis"
)

// Catalog sources.
const (
	CatalogSourceStatic   = "static"
	CatalogSourcePostgres = "postgres"
)

type Config struct {
	DB       DBConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Telegram TelegramConfig
	Session  SessionConfig
	Catalog  CatalogConfig
	Poller   PollerConfig
	Payment  PaymentConfig
	Log      LogConfig
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	URL string // empty disables the fulfillment bridge
}

type TelegramConfig struct {
	Token             string
	StaffToken        string // token for the staff console bot
	StaffPasswordHash string // bcrypt hash checked by /staff
}

type SessionConfig struct {
	Backend string
	TTL     time.Duration // redis key expiry; 0 keeps sessions forever
	// SwitchConfirmTimeout bounds the wait for a discard-or-keep answer; no answer keeps the cart.
	SwitchConfirmTimeout time.Duration
}

type CatalogConfig struct {
	Source string
	Path   string // YAML file; empty uses the built-in directory
}

type PollerConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

type PaymentConfig struct {
	Timeout time.Duration
	Latency time.Duration // simulated gateway round trip
	// DeclineAbove makes the mock gateway decline orders whose total exceeds it. Empty means never.
	DeclineAbove string
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "scan_order"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL: getEnv("AMQP_URL", ""),
		},
		Telegram: TelegramConfig{
			Token:             getEnv("TOKEN", ""),
			StaffToken:        getEnv("STAFF_TOKEN", ""),
			StaffPasswordHash: getEnv("STAFF_PASSWORD_HASH", ""),
		},
		Session: SessionConfig{
			Backend:              strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendPostgres)),
			TTL:                  getEnvDuration("SESSION_TTL", 30*24*time.Hour),
			SwitchConfirmTimeout: getEnvDuration("SWITCH_CONFIRM_TIMEOUT", time.Minute),
		},
		Catalog: CatalogConfig{
			Source: strings.ToLower(getEnv("CATALOG_SOURCE", CatalogSourceStatic)),
			Path:   getEnv("CATALOG_PATH", ""),
		},
		Poller: PollerConfig{
			BaseDelay:   getEnvDuration("POLL_BASE_DELAY", time.Second),
			MaxDelay:    getEnvDuration("POLL_MAX_DELAY", 8*time.Second),
			MaxAttempts: getEnvInt("POLL_MAX_ATTEMPTS", 10),
		},
		Payment: PaymentConfig{
			Timeout:      getEnvDuration("PAYMENT_TIMEOUT", 5*time.Second),
			Latency:      getEnvDuration("PAYMENT_LATENCY", 300*time.Millisecond),
			DeclineAbove: getEnv("PAYMENT_DECLINE_ABOVE", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendPostgres, SessionBackendRedis:
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.Session.Backend)
	}
	switch c.Catalog.Source {
	case CatalogSourceStatic, CatalogSourcePostgres:
	default:
		return fmt.Errorf("unknown CATALOG_SOURCE %q", c.Catalog.Source)
	}
	if c.Poller.BaseDelay <= 0 || c.Poller.MaxDelay < c.Poller.BaseDelay {
		return fmt.Errorf("poll delays must satisfy 0 < POLL_BASE_DELAY <= POLL_MAX_DELAY")
	}
	if c.Poller.MaxAttempts < 1 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be at least 1")
	}
	if c.Session.SwitchConfirmTimeout <= 0 {
		return fmt.Errorf("SWITCH_CONFIRM_TIMEOUT must be positive")
	}
	if c.Payment.Timeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	return nil
}

// NeedsPostgres reports whether Postgres must be reachable. Orders live in Postgres unless the
// whole service runs in memory (memory sessions with the static catalog).
func (c *Config) NeedsPostgres() bool {
	return c.Session.Backend != SessionBackendMemory || c.Catalog.Source == CatalogSourcePostgres
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return def
	}
	return n
}

// getEnvDuration accepts Go durations ("1500ms") or plain seconds ("2").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
