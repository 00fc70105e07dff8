package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const configName = "casbin-mongo"

// NewViper returns a viper instance reading configFile, or the first
// casbin-mongo.yaml/.yml found in the standard locations, with
// CASBIN_MONGO_* environment overrides.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		v.SetConfigFile(found)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
	}

	// CASBIN_MONGO_STORAGE_DRIVER overrides storage.driver
	v.SetEnvPrefix("CASBIN_MONGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)
	return v
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	return findConfigFileInPaths([]string{
		".",
		filepath.Join(home, "."+configName),
		"/etc/" + configName,
	})
}

func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindEnvKeys registers the keys that may be set only through the
// environment, so Unmarshal sees them.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.http_addr",
		"server.read_timeout",
		"server.write_timeout",
		"server.shutdown_timeout",
		"server.allowed_origin",
		"log.level",
		"log.format",
		"storage.driver",
		"storage.timeout",
		"storage.ensure_indexes",
		"storage.transactions",
		"storage.replace_on_save",
		"mongodb.uri",
		"mongodb.host",
		"mongodb.port",
		"mongodb.username",
		"mongodb.password",
		"mongodb.database",
		"mongodb.collection",
		"mongodb.replica-set",
		"mongodb.auth-source",
		"mongodb.direct",
		"sqlite.path",
		"model.path",
		"watcher.enabled",
		"watcher.addr",
		"watcher.password",
		"watcher.db",
		"watcher.channel",
	} {
		_ = v.BindEnv(key)
	}
}

// Load reads the configuration file if there is one, applies environment
// overrides on top of the defaults and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.MongoDB.Complete()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
