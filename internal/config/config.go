// Package config defines all configuration for the matching engine
// process. Config is loaded from a YAML file with environment variable
// overrides, following the teacher's viper-backed pattern exactly:
// SetEnvPrefix + SetEnvKeyReplacer(".", "_"), AutomaticEnv, a Load(path)
// constructor, and a Validate() pass run before the process starts
// serving.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Markets     MarketsConfig     `mapstructure:"markets"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	API         APIConfig         `mapstructure:"api"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// MarketsConfig controls which markets the engine will accept
// submissions for and whether they are warm-loaded at startup.
//
//   - KnownMarketIDs: if non-empty, Submit is restricted to this set;
//     if empty, any market id lazily creates a book on first reference.
//   - WarmLoad: if true, every id in KnownMarketIDs is loaded from
//     persistence at startup (spec.md §4.6).
type MarketsConfig struct {
	KnownMarketIDs []string `mapstructure:"known_market_ids"`
	WarmLoad       bool     `mapstructure:"warm_load"`
}

// PersistenceConfig selects the C5 implementation and, for the file
// backing, where its data directory lives.
//
//   - Backing: "file" or "memory". "memory" is intended for tests and
//     ephemeral deployments; it discards all state on process exit.
type PersistenceConfig struct {
	Backing string `mapstructure:"backing"`
	DataDir string `mapstructure:"data_dir"`
}

// APIConfig controls the host's thin HTTP + streaming surface
// (spec.md §6).
type APIConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig selects the slog handler and level.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides. Environment
// variables use the ENGINE_ prefix with "." replaced by "_", e.g.
// ENGINE_API_LISTEN_ADDR overrides api.listen_addr.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("persistence.backing", "file")
	v.SetDefault("persistence.data_dir", "data")
	v.SetDefault("api.listen_addr", ":8090")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	switch c.Persistence.Backing {
	case "file", "memory":
	default:
		return fmt.Errorf("persistence.backing must be one of: file, memory")
	}
	if c.Persistence.Backing == "file" && c.Persistence.DataDir == "" {
		return fmt.Errorf("persistence.data_dir is required when persistence.backing is file")
	}
	if c.API.ListenAddr == "" {
		return fmt.Errorf("api.listen_addr is required")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	return nil
}
