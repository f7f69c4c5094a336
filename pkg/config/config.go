// Package config loads server configuration, including declarative
// resource manifests, from YAML files and FLASH_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ocervell/flash/pkg/schema"
)

// Config holds application-wide configuration.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	PG        PGConfig         `mapstructure:"pg"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Resources []ResourceConfig `mapstructure:"resources"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listenAddr"`
	Prefix     string `mapstructure:"prefix"`
}

// PGConfig selects the storage backend: with an empty ConnString the
// server keeps records in memory.
type PGConfig struct {
	ConnString string `mapstructure:"connString"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// ResourceConfig is one declarative resource manifest: the model, its
// validation contract, and per-resource options.
type ResourceConfig struct {
	Model  schema.Model   `mapstructure:"model"`
	Schema *schema.Schema `mapstructure:"schema"`
	Path   string         `mapstructure:"path"`
	Cached bool           `mapstructure:"cached"`
}

func Default() Config {
	return Config{
		Server:  ServerConfig{ListenAddr: ":8080"},
		Metrics: MetricsConfig{Addr: ":9100", Path: "/metrics"},
	}
}

// Load reads config from file or environment.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("flash")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("FLASH")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	for i := range cfg.Resources {
		if err := cfg.Resources[i].Model.Validate(); err != nil {
			return nil, fmt.Errorf("resource %d: %w", i, err)
		}
	}
	return &cfg, nil
}
