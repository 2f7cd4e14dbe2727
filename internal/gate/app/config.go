package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	LoginURL     string // Platform authorization server (default: https://login.salesforce.com)
	ClientID     string // Required: connected app client id
	ClientSecret string // Required: connected app client secret
	RedirectURI  string // Required: this service's public callback URL

	MasterSecret string // Required: key material for token encryption at rest
	DatabaseFile string // Optional: SQLite file for the durable store; empty runs memory-only
	APIVersion   string // Optional: platform REST API version (default: v60.0)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownTimeout      time.Duration // Overall shutdown budget (default: 30s)
	DrainTimeout         time.Duration // In-flight drain budget inside the overall one (default: 20s)
	HousekeepingInterval time.Duration // Stale connection cleanup interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		LoginURL:     getEnvOrDefault("GATE_LOGIN_URL", "https://login.salesforce.com"),
		ClientID:     os.Getenv("GATE_CLIENT_ID"),
		ClientSecret: os.Getenv("GATE_CLIENT_SECRET"),
		RedirectURI:  getEnvOrDefault("GATE_REDIRECT_URI", "http://localhost:8080/v1/auth/callback"),

		MasterSecret: os.Getenv("GATE_MASTER_SECRET"),
		DatabaseFile: getEnvOrDefault("GATE_DATABASE_FILE", "gate.db"),
		APIVersion:   os.Getenv("GATE_API_VERSION"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownTimeout:      getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
		DrainTimeout:         getEnvDurationOrDefault("DRAIN_TIMEOUT", DefaultDrainTimeout),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are read as seconds.
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultValue
}
