package sdk

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.BaseURL != "" {
		t.Errorf("BaseURL = %q, want empty", config.BaseURL)
	}
	if config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", config.Timeout)
	}
	if config.Retry != 2 {
		t.Errorf("Retry = %d, want 2", config.Retry)
	}
	if config.RetryConfig.InitialInterval != 300*time.Millisecond {
		t.Errorf("InitialInterval = %v, want 300ms", config.RetryConfig.InitialInterval)
	}
	if config.RetryConfig.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", config.RetryConfig.Multiplier)
	}
	if config.Headers == nil {
		t.Error("Headers should be initialized")
	}
	if config.Observer == nil {
		t.Error("Observer should default to NoopObserver")
	}
}

func TestConfig_Chaining(t *testing.T) {
	obs := NewMetricsCollector()
	config := DefaultConfig().
		WithBaseURL("https://api.airtable.com/v0/app1").
		WithTimeout(5*time.Second).
		WithRetries(4).
		WithHeader("X-A", "1").
		WithTokenSource(StaticToken("t")).
		WithObserver(obs)

	if config.BaseURL != "https://api.airtable.com/v0/app1" {
		t.Errorf("BaseURL = %q", config.BaseURL)
	}
	if config.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", config.Timeout)
	}
	if config.Retry != 4 {
		t.Errorf("Retry = %d", config.Retry)
	}
	if config.Headers["X-A"] != "1" {
		t.Errorf("header not set")
	}
	if config.TokenSource == nil || config.Observer != obs {
		t.Error("token source or observer not set")
	}
}

func TestConfig_WithHeaderNilMap(t *testing.T) {
	config := &Config{}
	config.WithHeader("X-Key", "v")
	if config.Headers["X-Key"] != "v" {
		t.Error("WithHeader should initialize the map")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name:   "zero values get defaults",
			config: &Config{},
			check: func(t *testing.T, c *Config) {
				if c.Timeout != 30*time.Second {
					t.Errorf("Timeout = %v", c.Timeout)
				}
				if c.RetryConfig.MaxInterval != 10*time.Second {
					t.Errorf("MaxInterval = %v", c.RetryConfig.MaxInterval)
				}
				if c.Observer == nil {
					t.Error("Observer not defaulted")
				}
			},
		},
		{
			name:   "negative retry clamps to zero",
			config: &Config{Retry: -3},
			check: func(t *testing.T, c *Config) {
				if c.Retry != 0 {
					t.Errorf("Retry = %d, want 0", c.Retry)
				}
			},
		},
		{
			name:    "jitter out of range",
			config:  &Config{RetryConfig: RetryConfig{Jitter: 1.5}},
			wantErr: true,
		},
		{
			name:    "negative pool size",
			config:  &Config{TransportConfig: TransportConfig{MaxIdleConns: -1}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err != ErrInvalidConfig {
					t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v", err)
			}
			if tt.check != nil {
				tt.check(t, tt.config)
			}
		})
	}
}

func TestConfig_Clone(t *testing.T) {
	original := DefaultConfig().WithHeader("X-A", "1")
	cp := original.clone()
	cp.Headers["X-A"] = "2"
	cp.Timeout = time.Second

	if original.Headers["X-A"] != "1" {
		t.Error("clone shares the header map")
	}
	if original.Timeout != 30*time.Second {
		t.Error("clone shares scalar fields")
	}
}
