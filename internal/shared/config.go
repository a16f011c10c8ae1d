package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

const (
	DefaultWorkers   = 8
	MaxWorkers       = 32
	DefaultRateLimit = 10.0
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Tidal    TidalConfig    `toml:"tidal"`
	Session  SessionConfig  `toml:"session"`
	Pool     PoolConfig     `toml:"pool"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// TidalConfig contains TIDAL API credentials and endpoints.
type TidalConfig struct {
	ClientID       string        `toml:"client_id"`
	ClientSecret   string        `toml:"client_secret"`
	APIURL         string        `toml:"api_url"`
	AuthURL        string        `toml:"auth_url"`
	Scopes         []string      `toml:"scopes"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// SessionConfig locates the persisted credential file.
type SessionConfig struct {
	Path string `toml:"path"`
}

// PoolConfig sizes the worker pool that runs upstream calls.
type PoolConfig struct {
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Enabled      bool   `toml:"enabled"`
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig sets the log level name (debug, info, warn, error).
type LogConfig struct {
	Level string `toml:"level"`
}

// Addr joins host and port into a listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys absent from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %w", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %w", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate clamps pool settings into range and rejects unusable endpoints.
func (c *Config) Validate() error {
	if c.Tidal.APIURL == "" || c.Tidal.AuthURL == "" {
		return fmt.Errorf("%w: tidal.api_url and tidal.auth_url are required", ErrInvalidConfig)
	}
	if c.Tidal.RequestTimeout < 0 {
		return fmt.Errorf("%w: tidal.request_timeout must not be negative", ErrInvalidConfig)
	}

	switch {
	case c.Pool.Workers <= 0:
		c.Pool.Workers = DefaultWorkers
	case c.Pool.Workers > MaxWorkers:
		c.Pool.Workers = MaxWorkers
	}
	if c.Pool.RateLimit <= 0 {
		c.Pool.RateLimit = DefaultRateLimit
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path, replacing any existing file.
func SaveConfig(config *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	return WriteFileAtomic(path, buf.Bytes(), 0644)
}
