// Package config holds the knot CLI settings and how they are read from
// flags, environment and config files.
package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/aretw0/knot/internal/logging"
	"github.com/aretw0/knot/pkg/observability"
)

// EnvPrefix namespaces environment overrides, e.g. KNOT_REDIS_ADDR.
const EnvPrefix = "KNOT"

// Config holds all configuration options for knot.
type Config struct {
	Log      LogConfig                   `mapstructure:"log"`
	Redis    RedisConfig                 `mapstructure:"redis"`
	Inspect  InspectConfig               `mapstructure:"inspect"`
	Tracing  observability.TracingConfig `mapstructure:"tracing"`
	Bindings string                      `mapstructure:"bindings"` // path to the bindings file
	Watch    bool                        `mapstructure:"watch"`    // reload bindings when the file changes
}

// LogConfig selects level and handler of the application logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" (default) or "json"
}

// RedisConfig points the Redis provider at a server.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	// EncryptionKey is a base64 AES-256 key; when set every field is stored sealed.
	EncryptionKey string `mapstructure:"encryption_key"`
	// Mask lists patterns of fields that are read as "***" and never written.
	Mask []string `mapstructure:"mask"`
}

// InspectConfig configures the inspection HTTP API. An empty Addr disables it.
type InspectConfig struct {
	Addr string `mapstructure:"addr"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: string(logging.FormatText)},
		Redis:    RedisConfig{Addr: "localhost:6379", Prefix: "knot:"},
		Inspect:  InspectConfig{Addr: ":8080"},
		Tracing:  observability.DefaultTracingConfig(),
		Bindings: "bindings.yaml",
	}
}

// SetDefaults registers Defaults on v and enables KNOT_ environment overrides.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.prefix", d.Redis.Prefix)
	v.SetDefault("redis.encryption_key", d.Redis.EncryptionKey)
	v.SetDefault("redis.mask", d.Redis.Mask)
	v.SetDefault("inspect.addr", d.Inspect.Addr)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("bindings", d.Bindings)
	v.SetDefault("watch", d.Watch)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the config file (when set or found) and unmarshals v.
// A missing default config file is not an error.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("knot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(".knot")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values that cannot be checked by decoding alone.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return err
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis db %d", c.Redis.DB)
	}
	if _, err := c.Redis.Key(); err != nil {
		return err
	}
	return nil
}

// Key decodes EncryptionKey. It returns nil when encryption is disabled.
func (r RedisConfig) Key() ([]byte, error) {
	if r.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(r.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid redis encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid redis encryption key: got %d bytes, want 32", len(key))
	}
	return key, nil
}

// Logger builds the application logger. debug forces the debug level.
func (c Config) Logger(debug bool) *slog.Logger {
	level, _ := logging.ParseLevel(c.Log.Level)
	if debug {
		level = slog.LevelDebug
	}
	format, _ := logging.ParseFormat(c.Log.Format)
	return logging.NewWithWriter(os.Stderr, level, format)
}
