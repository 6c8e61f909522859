package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser    string
	DBPass    string
	DBHost    string
	DBPort    string
	DBName    string
	SSLMode   string
	RedisHost string
	RedisPort string
	NatsHost  string
	NatsPort  string
	ApiPort   string

	// IdempotencyTTL is how long a resolved idempotency record is replayed
	// before a resubmission of the same key counts as a fresh request.
	IdempotencyTTL time.Duration

	// ReapInterval is how often the reaper reclaims expired idempotency rows.
	ReapInterval time.Duration
}

// New loads and validates configuration from environment variables.
// A .env file is honored when present but never required.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:         os.Getenv("TALLY_POSTGRES_USER"),
		DBPass:         os.Getenv("TALLY_POSTGRES_PASSWORD"),
		DBHost:         os.Getenv("TALLY_POSTGRES_HOST"),
		DBPort:         os.Getenv("TALLY_POSTGRES_PORT"),
		DBName:         os.Getenv("TALLY_POSTGRES_DB"),
		SSLMode:        os.Getenv("TALLY_POSTGRES_SSLMODE"),
		RedisHost:      os.Getenv("TALLY_REDIS_HOST"),
		RedisPort:      os.Getenv("TALLY_REDIS_PORT"),
		NatsHost:       os.Getenv("TALLY_NATS_HOST"),
		NatsPort:       os.Getenv("TALLY_NATS_PORT"),
		ApiPort:        getEnvDefault("TALLY_API_PORT", "8080"),
		IdempotencyTTL: time.Duration(getEnvInt("TALLY_IDEMPOTENCY_TTL_HOURS", 24)) * time.Hour,
		ReapInterval:   time.Duration(getEnvInt("TALLY_REAP_INTERVAL_MINUTES", 10)) * time.Minute,
	}

	// Required: database
	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: TALLY_POSTGRES_USER/HOST/DB/SSLMODE")
	}

	// Required: redis (rate-limit counters live there)
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: TALLY_REDIS_HOST/PORT")
	}

	// Required: nats (transaction event bus)
	if cfg.NatsHost == "" || cfg.NatsPort == "" {
		return nil, fmt.Errorf("missing required env for nats: TALLY_NATS_HOST/PORT")
	}

	if cfg.IdempotencyTTL <= 0 {
		return nil, fmt.Errorf("TALLY_IDEMPOTENCY_TTL_HOURS must be positive")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}

func getEnvDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}
