// Package config loads cartosync configuration from defaults, an optional
// YAML file, environment variables, and runtime overrides, in that order of
// increasing precedence.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/dataviz-jp/cartosync/pkg/projectstore"
)

// envPrefix namespaces environment overrides, e.g. CARTOSYNC_LOG_LEVEL.
const envPrefix = "CARTOSYNC"

// Config is the full runtime configuration.
type Config struct {
	// Backend selects the persistence strategy: "gateway" or "direct".
	Backend string `mapstructure:"backend"`

	App      AppConfig      `mapstructure:"app"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig scopes projects and carries the caller's credentials.
type AppConfig struct {
	// Scope partitions projects per application under one account.
	Scope string `mapstructure:"scope"`

	// AccessToken is the bearer token for the session. Usually supplied
	// via CARTOSYNC_APP_ACCESS_TOKEN rather than a file.
	AccessToken string `mapstructure:"access_token"`
}

// GatewayConfig configures the gateway backend strategy.
type GatewayConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// SupabaseConfig configures the direct backend strategy.
type SupabaseConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	Bucket string `mapstructure:"bucket"`
	Table  string `mapstructure:"table"`
}

// ServerConfig configures the dev gateway server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// DataDir is where the dev server keeps project blobs on disk.
	DataDir string `mapstructure:"data_dir"`

	// RateLimit is requests per second per client; Burst is the bucket
	// size. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load builds the configuration. file is an optional YAML config path;
// empty means defaults plus environment only. overrides apply last.
func Load(ctx context.Context, file string, overrides ...map[string]any) (*Config, error) {
	_ = ctx

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	for _, override := range overrides {
		if err := v.MergeConfigMap(override); err != nil {
			return nil, fmt.Errorf("merge overrides: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", projectstore.BackendDirect.String())

	v.SetDefault("app.scope", "cartogram-japan")
	v.SetDefault("app.access_token", "")

	// Empty defaults register the keys so environment overrides reach
	// Unmarshal.
	v.SetDefault("gateway.base_url", "")
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.api_key", "")
	v.SetDefault("supabase.bucket", "user_projects")
	v.SetDefault("supabase.table", "projects")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.burst", 40)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
}

func (c *Config) validate() error {
	switch projectstore.BackendType(c.Backend) {
	case projectstore.BackendGateway, projectstore.BackendDirect:
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)",
			c.Backend, projectstore.BackendGateway, projectstore.BackendDirect)
	}
	if c.App.Scope == "" {
		return fmt.Errorf("%w: app scope", projectstore.ErrConfigMissing)
	}
	return nil
}
