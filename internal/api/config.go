package api

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the API configuration
type Config struct {
	// Server configuration
	Host string
	Port int

	// API configuration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	BodyLimit       int

	// Per-IP rate limiting; RateLimitRPS <= 0 disables it
	RateLimitRPS   float64
	RateLimitBurst int

	// ResponseCacheTTL bounds how long upstream reads are served from cache
	ResponseCacheTTL time.Duration

	CORSOrigins string
	Environment string

	// Map widget configuration
	NaverMapClientID string

	// Telemetry configuration
	TelemetryEnabled bool
	MetricsPath      string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	requestTimeout, err := strconv.Atoi(getEnvOrDefault("REQUEST_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := strconv.Atoi(getEnvOrDefault("SHUTDOWN_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	bodyLimit, err := strconv.Atoi(getEnvOrDefault("BODY_LIMIT", "1048576"))
	if err != nil {
		return nil, fmt.Errorf("invalid BODY_LIMIT: %w", err)
	}

	rps, err := strconv.ParseFloat(getEnvOrDefault("RATE_LIMIT_RPS", "20"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := strconv.Atoi(getEnvOrDefault("RATE_LIMIT_BURST", "40"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	cacheTTL, err := strconv.Atoi(getEnvOrDefault("RESPONSE_CACHE_TTL", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESPONSE_CACHE_TTL: %w", err)
	}

	telemetryEnabled := getEnvOrDefault("TELEMETRY_ENABLED", "true") == "true"

	return &Config{
		Host:             getEnvOrDefault("HOST", "0.0.0.0"),
		Port:             port,
		RequestTimeout:   time.Duration(requestTimeout) * time.Second,
		ShutdownTimeout:  time.Duration(shutdownTimeout) * time.Second,
		BodyLimit:        bodyLimit,
		RateLimitRPS:     rps,
		RateLimitBurst:   burst,
		ResponseCacheTTL: time.Duration(cacheTTL) * time.Second,
		CORSOrigins:      getEnvOrDefault("CORS_ORIGINS", "*"),
		Environment:      getEnvOrDefault("ENVIRONMENT", "development"),
		NaverMapClientID: os.Getenv("NAVER_MAP_CLIENT_ID"),
		TelemetryEnabled: telemetryEnabled,
		MetricsPath:      getEnvOrDefault("METRICS_PATH", "/metrics"),
	}, nil
}

// Address returns the listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether the server runs in production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
