package httpapi

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr         = ":5000"
	defaultAllowedOrigin      = "*"
	defaultMaxBodyBytes int64 = 50 << 20
	defaultLoginRate          = 10
	defaultRequestTimeout     = 10 * time.Second
	defaultShutdownTimeout    = 5 * time.Second
)

// Config aggregates runtime settings for the HTTP API.
type Config struct {
	ListenAddr         string
	AllowedOrigins     []string
	StaticDir          string
	MaxBodyBytes       int64
	LoginRatePerMinute int
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
}

// Validate fills defaults and rejects values the server cannot run with.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.LoginRatePerMinute == 0 {
		cfg.LoginRatePerMinute = defaultLoginRate
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	cfg.StaticDir = strings.TrimSpace(cfg.StaticDir)
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen addr is required")
	}
	if cfg.MaxBodyBytes < 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", cfg.MaxBodyBytes)
	}
	if cfg.LoginRatePerMinute < 0 {
		return fmt.Errorf("login rate must be positive, got %d", cfg.LoginRatePerMinute)
	}
	return nil
}

func (cfg Config) allowsAllOrigins() bool {
	for _, origin := range cfg.AllowedOrigins {
		if origin == defaultAllowedOrigin {
			return true
		}
	}
	return false
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
