package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig holds the CLI and sync-layer settings.
type ClientConfig struct {
	APIURL               string        `yaml:"apiURL"`
	HTTPTimeout          time.Duration `yaml:"httpTimeout"`
	MessagePollInterval  time.Duration `yaml:"messagePollInterval"`
	RoomListPollInterval time.Duration `yaml:"roomListPollInterval"`
	RateLimit            float64       `yaml:"rateLimit"`
	RateBurst            int           `yaml:"rateBurst"`
	LogLevel             string        `yaml:"logLevel"`
	LogFormat            string        `yaml:"logFormat"`
}

// DefaultClientConfig mirrors the mobile client: 3s room polling, 10s list polling.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		APIURL:               "http://localhost:8000/api/v1",
		HTTPTimeout:          15 * time.Second,
		MessagePollInterval:  3 * time.Second,
		RoomListPollInterval: 10 * time.Second,
		RateLimit:            5,
		RateBurst:            10,
		LogLevel:             "warn",
		LogFormat:            "text",
	}
}

// DefaultClientConfigPath is ~/.bookswap/config.yaml.
func DefaultClientConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bookswap", "config.yaml")
}

// LoadClientConfig layers defaults, the optional YAML file at path and the
// environment, in that order. A missing file is not an error unless the path
// was given explicitly.
func LoadClientConfig(path string, explicit bool) (ClientConfig, error) {
	LoadEnvFile()
	cfg := DefaultClientConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	// environment overrides the file
	if v := os.Getenv("BOOKSWAP_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if err := overrideDuration(&cfg.HTTPTimeout, "HTTP_TIMEOUT"); err != nil {
		return cfg, err
	}
	if err := overrideDuration(&cfg.MessagePollInterval, "MESSAGE_POLL_INTERVAL"); err != nil {
		return cfg, err
	}
	if err := overrideDuration(&cfg.RoomListPollInterval, "ROOM_LIST_POLL_INTERVAL"); err != nil {
		return cfg, err
	}
	if err := loadEnvFloat(&cfg.RateLimit, "API_RATE_LIMIT", cfg.RateLimit); err != nil {
		return cfg, err
	}
	if err := loadEnvInt(&cfg.RateBurst, "API_RATE_BURST", cfg.RateBurst); err != nil {
		return cfg, err
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func overrideDuration(target *time.Duration, key string) error {
	return loadEnvDuration(target, key, *target)
}

// Validate checks the client settings.
func (c ClientConfig) Validate() error {
	var errors []string
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		errors = append(errors, "BOOKSWAP_API_URL must be an http(s) URL")
	}
	if c.HTTPTimeout <= 0 {
		errors = append(errors, "HTTP_TIMEOUT must be positive")
	}
	if c.MessagePollInterval <= 0 || c.RoomListPollInterval <= 0 {
		errors = append(errors, "poll intervals must be positive")
	}
	if c.RateLimit <= 0 || c.RateBurst < 1 {
		errors = append(errors, "API_RATE_LIMIT and API_RATE_BURST must be positive")
	}
	errors = append(errors, validateLogging(c.LogLevel, c.LogFormat)...)

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}
