// Package config defines the trading core's service configuration.
// Config is loaded from a YAML file (default: configs/config.yaml)
// with every field overridable via FRACTIONFI_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML
// file structure.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// StoreConfig selects the persistence backend. An empty DSN runs the
// in-memory store, which is only suitable for development.
type StoreConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// FeedConfig tunes the subscriber fan-out.
type FeedConfig struct {
	// SendTimeout bounds each frame write; a subscriber that exceeds
	// it is evicted.
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from path (or the default location when
// empty), applying env overrides of the form FRACTIONFI_SERVER_LISTEN_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("feed.send_timeout", 10*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("FRACTIONFI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine: defaults plus env
		// cover it. An explicitly named file must exist.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
