// Package config loads matchcore's runtime configuration, grounded on
// _examples/abdoElHodaky-tradSys/internal/config/config.go's viper-backed
// struct-with-mapstructure-tags shape (here returning an instance per call
// rather than a process-wide singleton, since cmd/matchcore's subcommands
// each load their own).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable the server, matcher, and metrics exporter
// need at startup.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Metrics struct {
		Addr            string `mapstructure:"addr"`
		IntervalSeconds int    `mapstructure:"interval_seconds"`
	} `mapstructure:"metrics"`

	Pool struct {
		SlabBits uint `mapstructure:"slab_bits"`
	} `mapstructure:"pool"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":9000")
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.interval_seconds", 5)
	v.SetDefault("pool.slab_bits", 22)
	v.SetDefault("logging.level", "info")
}

// Load builds a Config from, in ascending priority: built-in defaults, a
// YAML file at configPath (if non-empty), and MATCHCORE_-prefixed
// environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("MATCHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
