// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Durable store (libsql/Turso DSN)
	DatabaseURL string

	// Fast cache tier (Redis DSN)
	RedisURL string

	// Authentication: the shared secret clients present in X-API-Key
	APIKey string

	// LLM provider
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAITimeout time.Duration

	// Scraping
	ScrapeConcurrency int
	BrowserPoolSize   int
	CacheTTLScraping  time.Duration
	BrowserAcquireTimeout time.Duration

	// HTTP surface
	RateLimitMax   int
	RequestTimeout time.Duration
	CORSOrigins    []string

	// Runs
	RunExpiration time.Duration

	// Retention for the api_metrics request log
	MetricsRetention time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		APIKey:      getEnv("API_KEY", ""),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		OpenAITimeout: time.Duration(getEnvInt("OPENAI_TIMEOUT", 60)) * time.Second,

		ScrapeConcurrency:     getEnvInt("SCRAPE_CONCURRENCY", 5),
		BrowserPoolSize:       getEnvInt("BROWSER_POOL_SIZE", 3),
		CacheTTLScraping:      time.Duration(getEnvInt("CACHE_TTL_SCRAPING", 86400)) * time.Second,
		BrowserAcquireTimeout: getEnvDuration("BROWSER_ACQUIRE_TIMEOUT", 30*time.Second),

		RateLimitMax:   getEnvInt("RATE_LIMIT_MAX", 20),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT", 120000)) * time.Millisecond,
		CORSOrigins:    getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		RunExpiration: time.Duration(getEnvInt("RUN_EXPIRATION_DAYS", 7)) * 24 * time.Hour,

		MetricsRetention: getEnvDuration("METRICS_RETENTION", 30*24*time.Hour),
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.ScrapeConcurrency < 1 {
		return nil, fmt.Errorf("SCRAPE_CONCURRENCY must be at least 1")
	}
	if cfg.BrowserPoolSize < 1 {
		return nil, fmt.Errorf("BROWSER_POOL_SIZE must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
