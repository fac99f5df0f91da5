// Package config loads the TOML configuration used by the example binaries
// to stand up a Redis-bridged window pair.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// RedisConfig selects the Redis instance bridging the two contexts.
type RedisConfig struct {
	Addr           string `toml:"addr"`
	DB             int    `toml:"db"`
	PoolSize       int    `toml:"poolSize"`
	ReadTimeoutMS  int    `toml:"readTimeoutMs"`
	WriteTimeoutMS int    `toml:"writeTimeoutMs"`
}

func (r RedisConfig) ReadTimeout() time.Duration {
	return time.Duration(r.ReadTimeoutMS) * time.Millisecond
}

func (r RedisConfig) WriteTimeout() time.Duration {
	return time.Duration(r.WriteTimeoutMS) * time.Millisecond
}

// WindowConfig names this context and its peer on the bridge.
type WindowConfig struct {
	Address       string `toml:"address"`
	ParentAddress string `toml:"parentAddress"`
}

// Config aggregates everything one end of a channel needs.
type Config struct {
	Origin  string       `toml:"origin"`
	Channel string       `toml:"channel"`
	Redis   RedisConfig  `toml:"redis"`
	Window  WindowConfig `toml:"window"`
}

// Load reads and validates a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Origin == "" {
		return fmt.Errorf("origin required")
	}
	if cfg.Channel == "" {
		return fmt.Errorf("channel required")
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Window.Address == "" {
		return fmt.Errorf("window.address required")
	}
	return nil
}
