package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the global PostgreSQL connection pool
var DB *pgxpool.Pool

// PGConfig holds the PostgreSQL configuration
type PGConfig struct {
	URL          string
	DefaultLimit int
	MaxLimit     int
}

// cfg holds the parsed configuration
var cfg PGConfig

// DefaultLimit returns the row limit applied when a request does not specify one.
func DefaultLimit() int {
	return cfg.DefaultLimit
}

// MaxLimit returns the hard cap on rows a single request may return.
func MaxLimit() int {
	return cfg.MaxLimit
}

// SetLimits overrides the limit configuration (for testing)
func SetLimits(defaultLimit, maxLimit int) {
	cfg.DefaultLimit = defaultLimit
	cfg.MaxLimit = maxLimit
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return parsed
}

// DatabaseURL builds the connection string from DATABASE_URL, falling back to
// the individual DB_* variables.
func DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := os.Getenv("DB_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	user := os.Getenv("DB_USER")
	if user == "" {
		user = "postgres"
	}
	password := os.Getenv("DB_PASSWORD")
	name := os.Getenv("DB_NAME")
	if name == "" {
		name = "wifi_test"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
}

// Load initializes configuration from environment variables and creates the
// connection pool
func Load() error {
	cfg.URL = DatabaseURL()
	cfg.DefaultLimit = envInt("API_DEFAULT_LIMIT", 1000)
	cfg.MaxLimit = envInt("API_MAX_LIMIT", 5000)

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConns = int32(envInt("DB_POOL_SIZE", 10))
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	DB = pool
	log.Printf("Connected to PostgreSQL successfully")

	return nil
}

// Close closes the PostgreSQL connection pool
func Close() {
	if DB != nil {
		DB.Close()
	}
}
