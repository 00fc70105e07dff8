// Package config provides configuration types for the policy store service.
package config

import (
	"fmt"
	"strings"
	"time"

	"casbin-mongodb-adapter/internal/adapters/driven/persistence/mongodb"
)

// Storage drivers.
const (
	DriverMongoDB = "mongodb"
	DriverSQLite  = "sqlite"
	DriverMemory  = "memory"
)

// Config is the top-level configuration.
type Config struct {
	Server  ServerConfig    `yaml:"server" mapstructure:"server"`
	Log     LogConfig       `yaml:"log" mapstructure:"log"`
	Storage StorageConfig   `yaml:"storage" mapstructure:"storage"`
	MongoDB mongodb.Options `yaml:"mongodb" mapstructure:"mongodb"`
	SQLite  SQLiteConfig    `yaml:"sqlite" mapstructure:"sqlite"`
	Model   ModelConfig     `yaml:"model" mapstructure:"model"`
	Watcher WatcherConfig   `yaml:"watcher" mapstructure:"watcher"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" mapstructure:"http_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	// AllowedOrigin is sent as Access-Control-Allow-Origin.
	AllowedOrigin string `yaml:"allowed_origin" mapstructure:"allowed_origin"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// StorageConfig selects and tunes the rule repository.
type StorageConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	// Timeout bounds storage calls made without a caller context.
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	EnsureIndexes bool          `yaml:"ensure_indexes" mapstructure:"ensure_indexes"`
	// Transactions runs batch removals in a MongoDB transaction.
	Transactions  bool `yaml:"transactions" mapstructure:"transactions"`
	ReplaceOnSave bool `yaml:"replace_on_save" mapstructure:"replace_on_save"`
}

// SQLiteConfig configures the SQLite repository.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ModelConfig points at the casbin model file. The built-in
// RBAC-with-domains model is used when Path is empty.
type ModelConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// WatcherConfig configures the Redis policy watcher.
type WatcherConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Channel  string `yaml:"channel" mapstructure:"channel"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigin:   "*",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Driver:        DriverMongoDB,
			Timeout:       10 * time.Second,
			EnsureIndexes: true,
		},
		MongoDB: *mongodb.NewOptions(),
		SQLite: SQLiteConfig{
			Path: "casbin.db",
		},
		Watcher: WatcherConfig{
			Addr:    "127.0.0.1:6379",
			Channel: "casbin:policy:update",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}

	if c.Storage.Timeout <= 0 {
		return fmt.Errorf("storage.timeout must be positive")
	}
	switch c.Storage.Driver {
	case DriverMongoDB:
		if err := c.MongoDB.Validate(); err != nil {
			return err
		}
	case DriverSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q is not one of %s, %s, %s",
			c.Storage.Driver, DriverMongoDB, DriverSQLite, DriverMemory)
	}

	if c.Watcher.Enabled && c.Watcher.Addr == "" {
		return fmt.Errorf("watcher.addr is required when the watcher is enabled")
	}
	return nil
}
