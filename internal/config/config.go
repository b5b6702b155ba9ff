// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `json:"host" yaml:"host"`
		Port int    `json:"port" yaml:"port"`
	} `json:"server" yaml:"server"`

	Database struct {
		Path     string `json:"path" yaml:"path"`
		InMemory bool   `json:"in_memory" yaml:"in_memory"`
	} `json:"database" yaml:"database"`

	Conflict struct {
		RequireExpectedVersion bool   `json:"require_expected_version" yaml:"require_expected_version"`
		PendingPolicy          string `json:"pending_policy" yaml:"pending_policy"` // reject, overwrite
		HistoryLimit           int    `json:"history_limit" yaml:"history_limit"`
		MaxHistory             int    `json:"max_history" yaml:"max_history"`
	} `json:"conflict" yaml:"conflict"`

	Storage struct {
		SnapshotCacheSize int `json:"snapshot_cache_size" yaml:"snapshot_cache_size"`
		CompressMinSize   int `json:"compress_min_size" yaml:"compress_min_size"`
	} `json:"storage" yaml:"storage"`

	Environment string `json:"environment" yaml:"environment"` // development, production
	LogLevel    string `json:"log_level" yaml:"log_level"`     // debug, info, warn, error
}

// Path returns the config file for the environment named by CONCORD_ENV
func Path() string {
	env := os.Getenv("CONCORD_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads a JSON or YAML (by .yaml/.yml extension) config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parsing yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parsing json config: %w", err)
		}
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Path == "" {
		c.Database.Path = ".concord"
	}
	if c.Conflict.PendingPolicy == "" {
		c.Conflict.PendingPolicy = "reject"
	}
	if c.Conflict.HistoryLimit == 0 {
		c.Conflict.HistoryLimit = 50
	}
	if c.Storage.SnapshotCacheSize == 0 {
		c.Storage.SnapshotCacheSize = 256
	}
	if c.Storage.CompressMinSize == 0 {
		c.Storage.CompressMinSize = 1024
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) Validate() error {
	switch c.Conflict.PendingPolicy {
	case "reject", "overwrite":
	default:
		return fmt.Errorf("invalid conflict.pending_policy: %q", c.Conflict.PendingPolicy)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Conflict.MaxHistory < 0 {
		return fmt.Errorf("conflict.max_history cannot be negative")
	}
	return nil
}
