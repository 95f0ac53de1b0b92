/*
Package config loads server configuration from a YAML file.

Every field has a usable default, so a missing file yields a working
development setup (SQLite file next to the binary, moderate rate limit,
short read cache).
*/
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port   int    `yaml:"port"`
	DBPath string `yaml:"db_path"`

	LogLevel string `yaml:"log_level"`

	RateLimit float64 `yaml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst int     `yaml:"rate_burst"`

	CacheTTL       time.Duration `yaml:"cache_ttl"`       // read endpoint response cache
	IndexCacheTTL  time.Duration `yaml:"index_cache_ttl"` // hierarchy index cache
	WorkerInterval time.Duration `yaml:"worker_interval"` // round-close sweep period
}

func Default() Config {
	return Config{
		Port:           8080,
		DBPath:         "allocation.db",
		LogLevel:       "info",
		RateLimit:      20,
		RateBurst:      40,
		CacheTTL:       5 * time.Second,
		IndexCacheTTL:  5 * time.Minute,
		WorkerInterval: time.Minute,
	}
}

// Load reads the YAML file at path over the defaults. A missing file is
// not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.WorkerInterval <= 0 {
		return fmt.Errorf("worker_interval must be positive")
	}
	return nil
}
