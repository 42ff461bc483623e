// Package config loads daemon configuration: environment variables first,
// with an optional YAML profile overlaying the defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds daemon configuration.
type Config struct {
	ListenAddr   string `yaml:"listen_addr"`
	DatabasePath string `yaml:"database_path"`
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	RateLimit    int    `yaml:"rate_limit"`
	RateBurst    int    `yaml:"rate_burst"`
}

// Load loads configuration from environment variables. When UTR_PROFILE names
// a YAML file, its values overlay the defaults before the environment is read,
// so the environment always wins.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:   ":8080",
		DatabasePath: "utr.db",
		LogLevel:     "INFO",
		RateLimit:    50,
		RateBurst:    100,
	}

	if path := os.Getenv("UTR_PROFILE"); path != "" {
		if err := cfg.applyProfile(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("UTR_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("UTR_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("UTR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("UTR_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := os.Getenv("UTR_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse UTR_RATE_LIMIT %q: %w", v, err)
		}
		cfg.RateLimit = n
	}
	if v := os.Getenv("UTR_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse UTR_RATE_BURST %q: %w", v, err)
		}
		cfg.RateBurst = n
	}

	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", cfg.RateLimit)
	}
	return cfg, nil
}

func (c *Config) applyProfile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load profile %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse profile %q: %w", path, err)
	}
	return nil
}
