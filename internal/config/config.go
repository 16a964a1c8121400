package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Port                   string
	AllowedOrigins         []string
	StoreBackend           string
	DatabaseURL            string
	SQLitePath             string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	CatalogCacheTTLSeconds int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	SaleCommitFallback     string
	OutboxPath             string
	OutboxRetrySeconds     int
	RateLimitRPS           float64
	RateLimitBurst         int
	SeedDemoData           bool
}

// Load reads the process environment. Values from a .env file in the working
// directory fill in variables that are not already set.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] WARN could not read .env: %v", err)
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	rps, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "20"), 64)
	if err != nil || rps <= 0 {
		rps = 20
	}

	databaseURL := os.Getenv("DATABASE_URL")
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))
	if backend == "" {
		backend = BackendMemory
		if databaseURL != "" {
			backend = BackendPostgres
		}
	}

	return Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigins:         splitList(getEnv("ALLOWED_ORIGINS", "http://127.0.0.1:3000,http://localhost:5173")),
		StoreBackend:           backend,
		DatabaseURL:            databaseURL,
		SQLitePath:             getEnv("SQLITE_PATH", "data/jewelpos.db"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		CatalogCacheTTLSeconds: positiveInt("CATALOG_CACHE_TTL_SECONDS", 30),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		SaleCommitFallback:     strings.ToLower(getEnv("SALE_COMMIT_FALLBACK", "outbox")),
		OutboxPath:             getEnv("OUTBOX_PATH", "data/outbox.db"),
		OutboxRetrySeconds:     positiveInt("OUTBOX_RETRY_SECONDS", 30),
		RateLimitRPS:           rps,
		RateLimitBurst:         positiveInt("RATE_LIMIT_BURST", 40),
		SeedDemoData:           getEnv("SEED_DEMO_DATA", "true") == "true",
	}
}

// Validate checks the settings that have no safe default.
func (c Config) Validate() error {
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite, BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.StoreBackend == BackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("STORE_BACKEND=redis requires REDIS_ADDR")
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
