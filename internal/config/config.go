// Package config provides application configuration.
package config

import (
	"errors"
	"os"
	"strconv"
)

// Config holds the application configuration.
type Config struct {
	// Server settings
	Port string
	Host string

	// Kite Connect credentials
	APIKey      string
	APISecret   string
	RedirectURI string

	// Session settings
	SessionSecret string
	SessionMaxAge int // in seconds

	// Optional durable session store (Redis). Empty Addr disables it.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Optional persistence cache (SQLite). Empty path disables it.
	CacheDBPath string

	// Environment
	IsDevelopment bool
}

// New creates a new Config with values from environment variables or defaults.
func New() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Host:          getEnv("HOST", "localhost"),
		APIKey:        os.Getenv("KITE_API_KEY"),
		APISecret:     os.Getenv("KITE_API_SECRET"),
		RedirectURI:   getEnv("KITE_REDIRECT_URI", "http://localhost:8080/kite-redirect"),
		SessionSecret: getEnv("SESSION_SECRET", "change-me-in-production-please"),
		SessionMaxAge: 86400, // 24 hours, matches the Kite access token lifetime
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheDBPath:   os.Getenv("CACHE_DB_PATH"),
		IsDevelopment: getEnv("ENV", "development") == "development",
	}
}

// Validate checks that required settings are present.
// Missing broker credentials are unrecoverable and must fail at startup.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("KITE_API_KEY is not set")
	}
	if c.APISecret == "" {
		return errors.New("KITE_API_SECRET is not set")
	}
	return nil
}

// Address returns the full address to bind the server to.
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
