package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey       string
	GeminiModel        string
	DatabaseURL        string
	HTTPPort           string
	LogLevel           string
	RemoteFetchTimeout time.Duration // zero leaves the transport default in place
	MaxUploadBytes     int64
	RemoteMaxBytes     int64
	SessionIdleTTL     time.Duration // zero keeps idle sessions in memory forever
}

// Load reads the optional .env file and the process environment. The returned
// bool reports whether a .env file was found.
func Load() (Config, bool) {
	foundDotEnv := godotenv.Load() == nil

	cfg := Config{
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		DatabaseURL:        getEnv("DATABASE_URL", "airr_analytics.db"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		RemoteFetchTimeout: getEnvAsDuration("REMOTE_FETCH_TIMEOUT", 0),
		MaxUploadBytes:     int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),
		RemoteMaxBytes:     int64(getEnvAsInt("REMOTE_MAX_BYTES", 10<<20)),
		SessionIdleTTL:     getEnvAsDuration("SESSION_IDLE_TTL", 2*time.Hour),
	}
	return cfg, foundDotEnv
}

// Validate checks the settings the HTTP server cannot run without.
func (c Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.RemoteMaxBytes <= 0 {
		return fmt.Errorf("REMOTE_MAX_BYTES must be positive, got %d", c.RemoteMaxBytes)
	}
	if c.SessionIdleTTL < 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must not be negative, got %s", c.SessionIdleTTL)
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
