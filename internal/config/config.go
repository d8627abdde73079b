// Package config loads veridicalql settings from defaults, an optional YAML
// file and VERIDICALQL_ environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JayabrataBasu/veridicalql/pkg/engine"
	"github.com/JayabrataBasu/veridicalql/pkg/lock"
)

// EnvPrefix prefixes every environment override, e.g.
// VERIDICALQL_ENGINE_QUERY_TIMEOUT_MS.
const EnvPrefix = "VERIDICALQL"

// Config holds all configuration.
type Config struct {
	Engine EngineConfig `mapstructure:"engine"`
	Lock   LockConfig   `mapstructure:"lock"`
	Remote RemoteConfig `mapstructure:"remote"`
	Log    LogConfig    `mapstructure:"log"`
	Data   DataConfig   `mapstructure:"data"`
}

// EngineConfig controls query execution.
type EngineConfig struct {
	DefaultDatabase string `mapstructure:"default_database"`
	QueryTimeoutMS  int    `mapstructure:"query_timeout_ms"` // 0 disables
	SystemSources   bool   `mapstructure:"system_sources"`
}

// LockConfig controls the lock manager.
type LockConfig struct {
	ReaderCap int `mapstructure:"reader_cap"` // 0 means unbounded
	WriterCap int `mapstructure:"writer_cap"`
	TimeoutMS int `mapstructure:"timeout_ms"`
}

// RemoteConfig controls retries of remote source fetches.
type RemoteConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
	BackoffMS  int `mapstructure:"backoff_ms"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// DataConfig names the fixture loaded at startup.
type DataConfig struct {
	Fixture string `mapstructure:"fixture"`
}

func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{QueryTimeoutMS: 30000, SystemSources: true},
		Lock:   LockConfig{WriterCap: 1, TimeoutMS: 5000},
		Remote: RemoteConfig{MaxRetries: 3, BackoffMS: 100},
		Log:    LogConfig{Level: "info", Format: "text", Output: "stderr"},
	}
}

// Load reads configuration. An empty path searches the working directory and
// $HOME/.veridicalql for veridicalql.yaml; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	cfg := defaultConfig()
	v.SetDefault("engine.default_database", cfg.Engine.DefaultDatabase)
	v.SetDefault("engine.query_timeout_ms", cfg.Engine.QueryTimeoutMS)
	v.SetDefault("engine.system_sources", cfg.Engine.SystemSources)
	v.SetDefault("lock.reader_cap", cfg.Lock.ReaderCap)
	v.SetDefault("lock.writer_cap", cfg.Lock.WriterCap)
	v.SetDefault("lock.timeout_ms", cfg.Lock.TimeoutMS)
	v.SetDefault("remote.max_retries", cfg.Remote.MaxRetries)
	v.SetDefault("remote.backoff_ms", cfg.Remote.BackoffMS)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.output", cfg.Log.Output)
	v.SetDefault("data.fixture", cfg.Data.Fixture)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("veridicalql")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.veridicalql")
		_ = v.ReadInConfig()
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configuration values are in range.
func (c *Config) Validate() error {
	if c.Engine.QueryTimeoutMS < 0 {
		return fmt.Errorf("engine.query_timeout_ms must not be negative")
	}
	if c.Lock.ReaderCap < 0 {
		return fmt.Errorf("lock.reader_cap must not be negative")
	}
	if c.Lock.WriterCap < 1 {
		return fmt.Errorf("lock.writer_cap must be at least 1")
	}
	if c.Lock.TimeoutMS < 0 {
		return fmt.Errorf("lock.timeout_ms must not be negative")
	}
	if c.Remote.MaxRetries < 0 || c.Remote.MaxRetries > 10 {
		return fmt.Errorf("remote.max_retries must be between 0 and 10")
	}
	if c.Remote.BackoffMS < 0 {
		return fmt.Errorf("remote.backoff_ms must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}
	return nil
}

// EngineOptions converts the configuration into engine options. The logger
// is left for the caller to set.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		DefaultDatabase: c.Engine.DefaultDatabase,
		QueryTimeout:    time.Duration(c.Engine.QueryTimeoutMS) * time.Millisecond,
		SystemSources:   c.Engine.SystemSources,
		Lock: lock.Options{
			ReaderCap: c.Lock.ReaderCap,
			WriterCap: c.Lock.WriterCap,
			Timeout:   time.Duration(c.Lock.TimeoutMS) * time.Millisecond,
		},
		RemoteRetries: uint64(c.Remote.MaxRetries),
		RemoteBackoff: time.Duration(c.Remote.BackoffMS) * time.Millisecond,
	}
}

// CreateDefaultConfig writes a commented default configuration file that
// loads fixture and resolves unqualified tables against database.
func CreateDefaultConfig(path, fixture, database string) error {
	content := fmt.Sprintf(`# veridicalql configuration

engine:
  default_database: %q     # database used when a query names none
  query_timeout_ms: 30000  # 0 disables the timeout
  system_sources: true     # register the sys_* remote sources

lock:
  reader_cap: 0            # concurrent readers per resource, 0 = unbounded
  writer_cap: 1            # writers admitted to wait per resource
  timeout_ms: 5000         # lock wait timeout, 0 disables

remote:
  max_retries: 3           # retries of a failed remote fetch
  backoff_ms: 100          # initial exponential backoff

log:
  level: info              # debug, info, warn, error
  format: text             # text or json
  output: stderr           # stderr, stdout, or file path

data:
  fixture: %q
`, database, fixture)

	return os.WriteFile(path, []byte(content), 0644)
}
