package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/prepadmin/pkg/httpx"
)

// MemorySession keeps the session in process memory instead of on disk.
const MemorySession = ":memory:"

type Config struct {
	APIURL         string        // Base URL of the admin API (default: http://localhost:3000/api)
	SessionFile    string        // SQLite file holding the session, or ":memory:" (default: ./prepadmin.db)
	MasterKeyPath  string        // Key file sealing stored tokens (default: <SessionFile>.key)
	TunnelHeader   bool          // Send ngrok-skip-browser-warning on every request (default: true)
	HTTPTimeout    time.Duration // Per-request timeout (default: 30s)
	RefreshTimeout time.Duration // Token refresh timeout (default: 15s)
	Env            string        // Environment (dev, staging, prod) (default: prod)
	LogLevel       string        // Log level (debug, info, warn, error) (default: warn)
	LogFormat      string        // Log format (json, text) (default: text)

	RateLimit httpx.RateLimitConfig
}

func LoadConfig() Config {
	cfg := Config{
		APIURL:         getEnvOrDefault("PREPADMIN_API_URL", "http://localhost:3000/api"),
		SessionFile:    getEnvOrDefault("PREPADMIN_SESSION_FILE", "prepadmin.db"),
		MasterKeyPath:  os.Getenv("PREPADMIN_MASTER_KEY_PATH"), // Optional
		TunnelHeader:   getEnvBoolOrDefault("PREPADMIN_TUNNEL_HEADER", true),
		HTTPTimeout:    getEnvDurationOrDefault("PREPADMIN_HTTP_TIMEOUT", 30*time.Second),
		RefreshTimeout: getEnvDurationOrDefault("PREPADMIN_REFRESH_TIMEOUT", 15*time.Second),
		// A CLI should be quiet unless asked; logs go to stderr
		Env:       getEnvOrDefault("ENV", "prod"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
		RateLimit: httpx.ParseRateLimitFromEnv("OUTBOUND", httpx.OutboundLimit),
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if cfg.MasterKeyPath == "" && cfg.SessionFile != MemorySession {
		cfg.MasterKeyPath = cfg.SessionFile + ".key"
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "30s", "2m")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
