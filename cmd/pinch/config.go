package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyAPIBaseURL   = "api_base_url"
	cfgKeyStoragePath  = "storage_path"
	cfgKeyStateBackend = "state_backend"
	cfgKeyStateName    = "state_name"
	cfgKeyEnvironment  = "environment"
	cfgKeyNATSURL      = "nats_url"
	cfgKeyLogLevel     = "log_level"

	cfgKeySpacesEndpoint  = "spaces.endpoint"
	cfgKeySpacesRegion    = "spaces.region"
	cfgKeySpacesBucket    = "spaces.bucket"
	cfgKeySpacesAccessKey = "spaces.access_key"
	cfgKeySpacesSecretKey = "spaces.secret_key"

	defaultAPIBaseURL  = "http://localhost:8080/api"
	defaultStateName   = "pinch-cli"
	defaultConfigDir   = "~/.pinch"
	defaultStorageFile = "local.db"
)

// defaultConfigYAML is written to config.yaml on first run
const defaultConfigYAML = `# pinch CLI configuration

# Backend-for-frontend root
api_base_url: http://localhost:8080/api

# Where CLI state is persisted: sqlite, memory, redis, postgres or spaces
state_backend: sqlite

# Local storage database (token and sqlite state)
# storage_path: ~/.pinch/local.db

# NATS server for "records watch"
# nats_url: nats://localhost:4222
`

// loadConfig reads config.yaml from configDir, creating the directory and a
// default file on first run. Every key can be overridden by a PINCH_
// environment variable, e.g. PINCH_API_BASE_URL.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyAPIBaseURL, defaultAPIBaseURL)
	v.SetDefault(cfgKeyStoragePath, filepath.Join(configDir, defaultStorageFile))
	v.SetDefault(cfgKeyStateBackend, "sqlite")
	v.SetDefault(cfgKeyStateName, defaultStateName)
	v.SetDefault(cfgKeyEnvironment, "development")
	v.SetDefault(cfgKeyLogLevel, "warn")

	v.SetEnvPrefix("PINCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o600)
}

// expandHome resolves a leading "~/" against the user's home directory
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
