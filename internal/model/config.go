package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix is prepended to every environment override,
// e.g. MAILROOM_API_BASE_URL for api.base_url.
const envPrefix = "MAILROOM"

// APIConfig holds the remote mail API connection settings.
type APIConfig struct {
	// BaseURL is the root URL of the mail API (e.g., http://localhost:8080).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// RequestTimeout bounds a single HTTP round trip.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// MailboxConfig holds paging and filter defaults for the mailbox view.
type MailboxConfig struct {
	PerPage int `mapstructure:"per_page" yaml:"per_page"`

	// Recipient is the default recipient filter; empty means all.
	Recipient string `mapstructure:"recipient" yaml:"recipient"`
}

// SyncConfig controls server-side ingestion triggers.
type SyncConfig struct {
	// Interval is the period of the background poller. Zero disables it.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// OnStart triggers one sync when the client starts.
	OnStart bool `mapstructure:"on_start" yaml:"on_start"`
}

// ComposeConfig holds defaults for outgoing mail.
type ComposeConfig struct {
	// FromAddress is used when a send does not name one.
	FromAddress string `mapstructure:"from_address" yaml:"from_address"`
}

// CacheConfig controls the local SQLite page cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // "console" or "json"
}

// SessionConfig controls where the bearer token is kept.
type SessionConfig struct {
	KeyringService string `mapstructure:"keyring_service" yaml:"keyring_service"`
	KeyringDir     string `mapstructure:"keyring_dir" yaml:"keyring_dir"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Mailbox MailboxConfig `mapstructure:"mailbox" yaml:"mailbox"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Compose ComposeConfig `mapstructure:"compose" yaml:"compose"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
}

// configDir returns ~/.config/mailroom, or the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mailroom")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailroom/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// setDefaults registers every known key so that missing keys resolve to
// sensible values and environment overrides apply to all of them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.request_timeout", 30*time.Second)
	v.SetDefault("mailbox.per_page", DefaultPerPage)
	v.SetDefault("mailbox.recipient", "")
	v.SetDefault("sync.interval", time.Duration(0))
	v.SetDefault("sync.on_start", true)
	v.SetDefault("compose.from_address", "")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", filepath.Join(configDir(), "cache.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("session.keyring_service", "mailroom")
	v.SetDefault("session.keyring_dir", filepath.Join(configDir(), "credentials"))
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory is loaded first, and MAILROOM_*
// environment variables override file values. A missing file is not an
// error; defaults apply.
func LoadConfig(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Mailbox.PerPage <= 0 {
		cfg.Mailbox.PerPage = DefaultPerPage
	}
	if cfg.API.RequestTimeout <= 0 {
		cfg.API.RequestTimeout = 30 * time.Second
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")

	return &cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.request_timeout", cfg.API.RequestTimeout.String())
	v.Set("mailbox", cfg.Mailbox)
	v.Set("sync.interval", cfg.Sync.Interval.String())
	v.Set("sync.on_start", cfg.Sync.OnStart)
	v.Set("compose", cfg.Compose)
	v.Set("cache", cfg.Cache)
	v.Set("log", cfg.Log)
	v.Set("session", cfg.Session)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
