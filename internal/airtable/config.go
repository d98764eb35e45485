package airtable

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public Airtable REST root
const DefaultBaseURL = "https://api.airtable.com/v0"

// Config holds the upstream record resource settings
type Config struct {
	BaseURL string
	BaseID  string
	Table   string
	APIKey  string

	Timeout time.Duration
	Retry   int

	// ForwardAuth sends the caller's bearer token upstream instead of
	// APIKey whenever the caller presented one
	ForwardAuth bool
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() (*Config, error) {
	timeout, err := strconv.Atoi(getEnvOrDefault("REQUEST_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	retry, err := strconv.Atoi(getEnvOrDefault("UPSTREAM_RETRY", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_RETRY: %w", err)
	}

	forward, err := strconv.ParseBool(getEnvOrDefault("FORWARD_AUTH", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid FORWARD_AUTH: %w", err)
	}

	return &Config{
		BaseURL:     getEnvOrDefault("AIRTABLE_BASE_URL", DefaultBaseURL),
		BaseID:      os.Getenv("AIRTABLE_BASE_ID"),
		Table:       getEnvOrDefault("AIRTABLE_TABLE_NAME", "Table1"),
		APIKey:      os.Getenv("AIRTABLE_API_KEY"),
		Timeout:     time.Duration(timeout) * time.Second,
		Retry:       retry,
		ForwardAuth: forward,
	}, nil
}

// ResourceRoot is the base URL every table path is resolved against
func (c *Config) ResourceRoot() string {
	root := strings.TrimRight(c.BaseURL, "/")
	if c.BaseID != "" {
		root += "/" + c.BaseID
	}
	return root
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
