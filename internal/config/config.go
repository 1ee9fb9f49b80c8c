// Package config loads the optional settings file of the validatecache
// command. The command line itself is never configurable; settings cover
// logging, cache file permissions, run history and metrics export.
package config

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jacoelho/validatecache/errors"
)

// EnvConfigPath names the variable holding the settings file path.
const EnvConfigPath = "VALIDATECACHE_CONFIG"

// Config holds every section of the settings file.
type Config struct {
	Log     LogConfig     `toml:"log"`
	Cache   CacheConfig   `toml:"cache"`
	Schema  SchemaConfig  `toml:"schema"`
	History HistoryConfig `toml:"history"`
	Metrics MetricsConfig `toml:"metrics"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// CacheConfig controls how the grammar cache file is written and how
// documents are parsed.
type CacheConfig struct {
	// FileMode is the octal permission used when a cache file is created.
	FileMode      string `toml:"file_mode"`
	HugeDocuments bool   `toml:"huge_documents"`
}

// SchemaConfig controls how schema documents are fetched.
type SchemaConfig struct {
	// HTTPTimeout bounds each http or https schema fetch. Zero means 30s.
	HTTPTimeout time.Duration `toml:"http_timeout"`
}

// HistoryConfig enables the SQLite run history.
type HistoryConfig struct {
	Enabled     bool          `toml:"enabled"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	// Textfile receives the metrics in Prometheus text format after each
	// run. Empty disables the export.
	Textfile string `toml:"textfile"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a TOML settings file, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfig, "read config", path)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfig, "decode config", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, errors.Newf(errors.CodeConfig, "decode config", path, "unknown keys: %s", strings.Join(keys, ", "))
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfig, "validate config", path)
	}
	return &cfg, nil
}

// LoadFromEnv loads the file named by VALIDATECACHE_CONFIG, or the defaults
// when it is unset, then applies environment overrides. It returns the
// override variables that were applied.
func LoadFromEnv() (*Config, []string, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	applied, err := ApplyEnvOverrides(cfg)
	if err != nil {
		return nil, applied, err
	}
	if err := validate(cfg); err != nil {
		return nil, applied, errors.Wrap(err, errors.CodeConfig, "validate config", "environment")
	}
	return cfg, applied, nil
}

func applyDefaults(cfg *Config) {
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if strings.TrimSpace(cfg.Cache.FileMode) == "" {
		cfg.Cache.FileMode = "0644"
	}
	if cfg.Schema.HTTPTimeout == 0 {
		cfg.Schema.HTTPTimeout = 30 * time.Second
	}
	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = "validatecache-history.db"
	}
	if cfg.History.BusyTimeout == 0 {
		cfg.History.BusyTimeout = 5 * time.Second
	}
}

func validate(cfg *Config) error {
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	if _, err := cfg.Cache.Mode(); err != nil {
		return err
	}
	if cfg.Schema.HTTPTimeout < 0 {
		return fmt.Errorf("schema.http_timeout must not be negative")
	}
	if cfg.History.Enabled && strings.TrimSpace(cfg.History.Path) == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if cfg.History.BusyTimeout < 0 {
		return fmt.Errorf("history.busy_timeout must not be negative")
	}
	return nil
}

// Mode parses FileMode as an octal permission.
func (c CacheConfig) Mode() (fs.FileMode, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(c.FileMode), "0o")
	v, err := strconv.ParseUint(raw, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("cache.file_mode %q is not an octal permission", c.FileMode)
	}
	if v > 0o777 {
		return 0, fmt.Errorf("cache.file_mode %q has bits outside 0777", c.FileMode)
	}
	return fs.FileMode(v), nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
}
