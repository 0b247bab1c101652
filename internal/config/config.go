// Package config loads application configuration from environment
// variables. A .env file in the working directory is read first when present.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env            string // APP_ENV (dev, test, prod)
	Port           string // APP_PORT
	DBDriver       string // DB_DRIVER: mysql or sqlite
	DBUser         string // DB_USER (mysql)
	DBPass         string // DB_PASS (mysql, empty allowed)
	DBHost         string // DB_HOST (mysql)
	DBPort         string // DB_PORT (mysql)
	DBName         string // DB_NAME (mysql)
	SQLitePath     string // SQLITE_PATH (sqlite)
	JWTSecret      string // JWT_SECRET
	AccessTTLMin   int    // ACCESS_TOKEN_TTL_MIN
	RefreshTTLDays int    // REFRESH_TOKEN_TTL_DAYS
	BcryptCost     int    // BCRYPT_COST
	BodyLimit      string // BODY_LIMIT, e.g. "60M"; must fit a full image batch
	LogLevel       string // LOG_LEVEL
	LogFormat      string // LOG_FORMAT
	RabbitURL      string // RABBITMQ_URL; empty disables event publishing
	WorkerConcur   int    // WORKER_CONCURRENCY

	Redis     RedisConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
}

// Load reads configuration values from the environment. Required variables
// are enforced by must() and a missing value exits the program.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Env:            getenv("APP_ENV", "dev"),
		Port:           must("APP_PORT"),
		DBDriver:       strings.ToLower(getenv("DB_DRIVER", "mysql")),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),
		BodyLimit:      getenv("BODY_LIMIT", "60M"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      getenv("LOG_FORMAT", "text"),
		RabbitURL:      os.Getenv("RABBITMQ_URL"),
		WorkerConcur:   envInt("WORKER_CONCURRENCY", 4),
		Redis:          LoadRedisConfig(),
		Cache:          LoadCacheConfig(),
		RateLimit:      LoadRateLimitConfig(),
		Storage:        LoadStorageConfig(),
	}
	switch cfg.DBDriver {
	case "sqlite":
		cfg.SQLitePath = getenv("SQLITE_PATH", "listings.db")
	case "mysql":
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	default:
		log.Fatalf("unsupported DB_DRIVER: %q", cfg.DBDriver)
	}
	return cfg
}

// LoadDatabase reads only the database settings. The CLI uses it so that
// maintenance commands do not need the HTTP secrets.
func LoadDatabase() Config {
	_ = godotenv.Load()
	cfg := Config{DBDriver: strings.ToLower(getenv("DB_DRIVER", "mysql"))}
	if cfg.DBDriver == "sqlite" {
		cfg.SQLitePath = getenv("SQLITE_PATH", "listings.db")
		return cfg
	}
	cfg.DBUser = must("DB_USER")
	cfg.DBPass = os.Getenv("DB_PASS")
	cfg.DBHost = must("DB_HOST")
	cfg.DBPort = must("DB_PORT")
	cfg.DBName = must("DB_NAME")
	return cfg
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the value into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
