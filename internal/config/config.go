package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// DATABASE_URL empty selects the in-memory store.
	DatabaseURL string

	APIJWTSecret   string
	AllowedOrigins []string

	DefaultAppointmentMinutes int
	BookingRetryMaxAttempts   int
	BookingRatePerSecond      float64
	BookingBurst              int

	// REDIS_ADDR empty disables cross-replica reservation leases.
	RedisAddr     string
	RedisPassword string
	LeaseTTL      time.Duration

	OutboxPollInterval time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		APIJWTSecret:   getEnv("API_JWT_SECRET", ""),
		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "")),

		DefaultAppointmentMinutes: getEnvAsInt("DEFAULT_APPOINTMENT_MINUTES", 20),
		BookingRetryMaxAttempts:   getEnvAsInt("BOOKING_RETRY_MAX_ATTEMPTS", 3),
		BookingRatePerSecond:      getEnvAsFloat("BOOKING_RATE_PER_SECOND", 0),
		BookingBurst:              getEnvAsInt("BOOKING_BURST", 10),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		LeaseTTL:      getEnvAsDuration("LEASE_TTL", 5*time.Second),

		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
	}
}

// DefaultAppointmentDuration converts the configured minutes.
func (c *Config) DefaultAppointmentDuration() time.Duration {
	return time.Duration(c.DefaultAppointmentMinutes) * time.Minute
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
