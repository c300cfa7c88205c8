// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingRequired indicates a required environment variable is unset.
// Startup aborts when Load returns an error wrapping it.
var ErrMissingRequired = errors.New("missing required configuration")

// Config holds all application configuration. It is loaded once at
// startup and passed to components explicitly; nothing reads the
// environment after Load returns.
type Config struct {
	Host             string
	Port             string
	DBPath           string
	AgentBaseURL     string
	APIKey           string
	CORSOrigins      []string
	MaxMessageLength int
	HistoryLimit     int
	SessionTTL       time.Duration
	GatewayTimeout   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Host:             getEnv("HOST", "0.0.0.0"),
		Port:             getEnv("PORT", "8000"),
		DBPath:           getEnv("DB_PATH", "./data/agent_studio.db"),
		AgentBaseURL:     strings.TrimRight(getEnv("AGENT_BASE_URL", ""), "/"),
		APIKey:           getEnv("RAGWALLA_API_KEY", ""),
		CORSOrigins:      splitAndTrim(getEnv("CORS_ORIGINS", "*")),
		MaxMessageLength: getEnvInt("MAX_MESSAGE_LENGTH", 4000),
		HistoryLimit:     getEnvInt("HISTORY_LIMIT", 50),
		SessionTTL:       getEnvDuration("SESSION_TTL", 30*24*time.Hour),
		GatewayTimeout:   getEnvDuration("GATEWAY_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.AgentBaseURL == "" {
		return fmt.Errorf("%w: AGENT_BASE_URL", ErrMissingRequired)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: RAGWALLA_API_KEY", ErrMissingRequired)
	}
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be > 0")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be > 0")
	}
	return nil
}

// Addr returns the host:port the HTTP server should listen on.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}
