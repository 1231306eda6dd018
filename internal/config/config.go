// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds all terminal client configuration.
type Config struct {
	// Backend
	APIURL        string
	APIPath       string
	RootID        string
	Timeout       time.Duration
	RetryAttempts int

	// Identity
	Token          string
	UID            string
	OIDCIssuerURL  string
	OIDCClientID   string
	IdentityURL    string
	IdentityAPIKey string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// Metrics (optional; empty disables the listener)
	MetricsAddr string

	// Suggestions
	AIAPIKey        string
	AIBaseURL       string
	AIModel         string
	SuggestDebounce time.Duration
	HistoryLimit    int

	// Network test
	SpeedTestURL string

	// Commands
	EchoImplicitWrite bool
	MaxUploadSize     int64
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		APIURL:            envOr("BETTERMUX_API_URL", "http://localhost:3000"),
		APIPath:           envOr("BETTERMUX_API_PATH", "/api/fs"),
		RootID:            envOr("BETTERMUX_ROOT_ID", "root"),
		Timeout:           envDuration("BETTERMUX_TIMEOUT", 30*time.Second),
		RetryAttempts:     envInt("BETTERMUX_RETRY_ATTEMPTS", 3),
		Token:             envOr("BETTERMUX_TOKEN", ""),
		UID:               envOr("BETTERMUX_UID", ""),
		OIDCIssuerURL:     envOr("BETTERMUX_OIDC_ISSUER", ""),
		OIDCClientID:      envOr("BETTERMUX_OIDC_CLIENT_ID", ""),
		IdentityURL:       envOr("BETTERMUX_IDENTITY_URL", "https://identitytoolkit.googleapis.com/v1"),
		IdentityAPIKey:    envOr("BETTERMUX_IDENTITY_API_KEY", ""),
		LogLevel:          envOr("LOG_LEVEL", "warn"),
		LogFormat:         envOr("LOG_FORMAT", "console"),
		LogFile:           envOr("LOG_FILE", ""),
		MetricsAddr:       envOr("METRICS_ADDR", ""),
		AIAPIKey:          envOr("BETTERMUX_AI_API_KEY", ""),
		AIBaseURL:         envOr("BETTERMUX_AI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
		AIModel:           envOr("BETTERMUX_AI_MODEL", "gemini-2.0-flash"),
		SuggestDebounce:   envDuration("BETTERMUX_SUGGEST_DEBOUNCE", 500*time.Millisecond),
		HistoryLimit:      envInt("BETTERMUX_HISTORY_LIMIT", 500),
		SpeedTestURL:      envOr("BETTERMUX_SPEEDTEST_URL", "https://speed.cloudflare.com"),
		EchoImplicitWrite: envBool("BETTERMUX_ECHO_IMPLICIT_WRITE", true),
		MaxUploadSize:     envInt64("BETTERMUX_UPLOAD_MAX_SIZE", 10*1024*1024), // 10MB default
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later in confusing ways.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BETTERMUX_API_URL must be an absolute URL, got %q", c.APIURL)
	}
	if c.RootID == "" {
		return fmt.Errorf("BETTERMUX_ROOT_ID must not be empty")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("BETTERMUX_RETRY_ATTEMPTS must be at least 1, got %d", c.RetryAttempts)
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("BETTERMUX_HISTORY_LIMIT must be at least 1, got %d", c.HistoryLimit)
	}
	return nil
}

// SuggestionsEnabled reports whether an AI key is configured.
func (c *Config) SuggestionsEnabled() bool {
	return c.AIAPIKey != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
