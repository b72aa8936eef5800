package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	DefaultUnidade        string
	BaixaCacheTTLSeconds  int
	LockTTLSeconds        int
	BulkConcurrency       int
	AuthSecret            string
	AccessTokenTTLMinutes int
	LogLevel              string
	MetricsEnabled        bool
}

// Load reads the process environment. A .env file in the working directory,
// when present, fills in keys that are not already set.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	metricsEnabled, err := strconv.ParseBool(getEnv("METRICS_ENABLED", "true"))
	if err != nil {
		metricsEnabled = true
	}

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		DefaultUnidade:        getEnv("DEFAULT_UNIDADE", "matriz"),
		BaixaCacheTTLSeconds:  getPositiveInt("BAIXA_CACHE_TTL_SECONDS", 60),
		LockTTLSeconds:        getPositiveInt("LOCK_TTL_SECONDS", 30),
		BulkConcurrency:       getPositiveInt("BULK_CONCURRENCY", 4),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled:        metricsEnabled,
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) BaixaCacheTTL() time.Duration {
	return time.Duration(c.BaixaCacheTTLSeconds) * time.Second
}

func (c Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
