package events

import (
	"os"
	"time"
)

// Config holds NATS connection settings
type Config struct {
	URL           string
	Name          string
	User          string
	Password      string
	SubjectPrefix string
	// Source identifies this process in published events
	Source        string
	ReconnectWait time.Duration
}

// NewConfigFromEnv creates a new Config from environment variables. An empty
// URL means events are disabled.
func NewConfigFromEnv() *Config {
	host, _ := os.Hostname()
	return &Config{
		URL:           os.Getenv("NATS_URL"),
		Name:          getEnvOrDefault("NATS_NAME", "pinch-api"),
		User:          os.Getenv("NATS_USER"),
		Password:      os.Getenv("NATS_PASSWORD"),
		SubjectPrefix: getEnvOrDefault("NATS_SUBJECT_PREFIX", DefaultSubjectPrefix),
		Source:        getEnvOrDefault("NATS_SOURCE", host),
		ReconnectWait: 2 * time.Second,
	}
}

// Enabled reports whether a NATS URL is configured
func (c *Config) Enabled() bool {
	return c.URL != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
