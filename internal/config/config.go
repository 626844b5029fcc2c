// Package config loads the comparison service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/shotcmp/pkg/similarity"
)

// Config holds every tunable of the service.
type Config struct {
	HTTPAddr         string
	GRPCHealthAddr   string
	DatabaseDriver   string
	DatabaseDSN      string
	RedisAddr        string
	JWTSecret        string
	JWTAudience      string
	DefaultThreshold float64
	LogLevel         string
	ShutdownTimeout  time.Duration
}

// Load reads the configuration, falling back to defaults for unset or
// malformed values.
func Load() *Config {
	return &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		GRPCHealthAddr:   getEnv("GRPC_HEALTH_ADDR", ":8081"),
		DatabaseDriver:   strings.ToLower(getEnv("DATABASE_DRIVER", "postgres")),
		DatabaseDSN:      getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=shotcmp port=5432 sslmode=disable"),
		RedisAddr:        getEnv("REDIS_ADDR", "redis:6379"),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret"),
		JWTAudience:      os.Getenv("JWT_AUDIENCE"),
		DefaultThreshold: getEnvThreshold("DEFAULT_THRESHOLD", similarity.DefaultThreshold),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout:  getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvThreshold(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
