package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL string
	DBMaxConns  int

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Matchmaking
	BucketStep     int      // rating bucket width
	SearchMaxRange int      // half-width of the bucket-expansion search
	DefaultRating  int      // fallback when the profile store has no rating
	TimeControls   []string // closed set of accepted time-control tags
	MatcherShards  int      // change-stream shards / matcher workers

	// Security
	JWTSecret         string
	SessionTimeoutMin int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/playchess?sslmode=disable"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 25),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Matchmaking
		BucketStep:     getEnvInt("BUCKET_STEP", 50),
		SearchMaxRange: getEnvInt("SEARCH_MAX_RANGE", 500),
		DefaultRating:  getEnvInt("DEFAULT_RATING", 1200),
		TimeControls:   getEnvList("TIME_CONTROLS", "bullet,blitz,rapid"),
		MatcherShards:  getEnvInt("MATCHER_SHARDS", 4),

		// Security
		JWTSecret:         getEnv("JWT_SECRET", "change-me-in-production"),
		SessionTimeoutMin: getEnvInt("SESSION_TIMEOUT_MINUTES", 30),
	}
}

// AllowsTimeControl reports whether tc is in the configured closed set.
func (c *Config) AllowsTimeControl(tc string) bool {
	for _, t := range c.TimeControls {
		if t == tc {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
