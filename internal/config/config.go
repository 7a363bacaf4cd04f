// Package config loads and validates process environment configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration for the server.
type Config struct {
	// Required
	Port          string
	SupabaseURL   string
	SupabaseKey   string
	DatabaseURL   string
	JWKSURL       string
	JWTIssuer     string
	JWTAudienceOK bool // sanity flag, always true once validated

	// Identity provider (Google OAuth, out-of-core HTTP surface)
	GoogleClientID     string
	GoogleClientSecret string

	// Shared cache (Upstash Redis REST, or a plain host:port Redis addr for local dev)
	UpstashRedisURL   string
	UpstashRedisToken string
	RedisAddr         string
	RedisPassword     string
	RedisEnabled      bool

	// CORS / misc
	CORSOrigins []string
	Debug       bool
	GoEnv       string
	LogLevel    string

	// WebSocket timing
	WSHeartbeatInterval time.Duration
	WSConnectionTimeout time.Duration

	// Rate limits (ulule/limiter formatted strings, e.g. "100-M")
	RateLimitAPIGlobal string
	RateLimitAPIPublic string
	RateLimitAPIRooms  string
	RateLimitWsIP      string
}

// Load validates all required environment variables and returns a Config.
// All violations are accumulated and returned together, matching the
// fail-fast-but-report-everything convention used throughout this service.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be between 1 and 65535 (got %q)", cfg.Port))
	}

	cfg.SupabaseURL = os.Getenv("SUPABASE_URL")
	if cfg.SupabaseURL == "" {
		errs = append(errs, "SUPABASE_URL is required")
	}
	cfg.SupabaseKey = os.Getenv("SUPABASE_API_KEY")
	if cfg.SupabaseKey == "" {
		errs = append(errs, "SUPABASE_API_KEY is required")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	cfg.JWKSURL = os.Getenv("JWKS_URL")
	if cfg.JWKSURL == "" {
		errs = append(errs, "JWKS_URL is required")
	} else if !strings.HasPrefix(cfg.JWKSURL, "https://") && !strings.HasPrefix(cfg.JWKSURL, "http://") {
		errs = append(errs, "JWKS_URL must be an http(s) URL")
	}
	cfg.JWTIssuer = os.Getenv("JWT_ISSUER")

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")

	cfg.UpstashRedisURL = os.Getenv("UPSTASH_REDIS_REST_URL")
	cfg.UpstashRedisToken = os.Getenv("UPSTASH_REDIS_REST_TOKEN")
	if cfg.UpstashRedisURL != "" && !strings.HasPrefix(cfg.UpstashRedisURL, "https://") {
		errs = append(errs, "UPSTASH_REDIS_REST_URL must start with https://")
	}
	if cfg.UpstashRedisURL != "" && cfg.UpstashRedisToken == "" {
		errs = append(errs, "UPSTASH_REDIS_REST_TOKEN is required when UPSTASH_REDIS_REST_URL is set")
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisEnabled = cfg.RedisAddr != "" || cfg.UpstashRedisURL != ""
	if cfg.RedisAddr != "" && !isValidHostPort(cfg.RedisAddr) {
		errs = append(errs, fmt.Sprintf("REDIS_ADDR must be host:port (got %q)", cfg.RedisAddr))
	}

	originsStr := os.Getenv("CORS_ORIGINS")
	if originsStr == "" {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	} else {
		cfg.CORSOrigins = strings.Split(originsStr, ",")
	}

	cfg.Debug = os.Getenv("DEBUG") == "true"
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.WSHeartbeatInterval = durationSecondsOrDefault("WS_HEARTBEAT_INTERVAL", 30*time.Second, &errs)
	cfg.WSConnectionTimeout = durationSecondsOrDefault("WS_CONNECTION_TIMEOUT", 120*time.Second, &errs)

	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitAPIPublic = getEnvOrDefault("RATE_LIMIT_API_PUBLIC", "100-M")
	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "100-M")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	cfg.JWTAudienceOK = true
	logValidated(cfg)
	return cfg, nil
}

func durationSecondsOrDefault(key string, def time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be a positive integer number of seconds (got %q)", key, v))
		return def
	}
	return time.Duration(secs) * time.Second
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port >= 1 && port <= 65535
}

func logValidated(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"redis_enabled", cfg.RedisEnabled,
		"supabase_url", cfg.SupabaseURL,
		"supabase_api_key", redactSecret(cfg.SupabaseKey),
		"jwks_url", cfg.JWKSURL,
		"ws_heartbeat_interval", cfg.WSHeartbeatInterval,
		"ws_connection_timeout", cfg.WSConnectionTimeout,
	)
}

func getEnvOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
