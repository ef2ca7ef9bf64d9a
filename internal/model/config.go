package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ProviderConfig holds the settings for the remote mail provider.
type ProviderConfig struct {
	// BaseURL is the root URL of the mail.tm compatible API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds a single HTTP round trip.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// RequestsPerSecond paces outgoing requests to stay under the
	// provider's rate limit.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`

	// FallbackDomain is used when no active domain can be discovered.
	FallbackDomain string `mapstructure:"fallback_domain" yaml:"fallback_domain"`
}

// StorageConfig selects and locates the local key-value store.
type StorageConfig struct {
	// Driver is "sqlite" or "bolt".
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Path is the database file location.
	Path string `mapstructure:"path" yaml:"path"`

	// UseKeyring keeps account passwords and tokens in the system keyring
	// instead of the database file.
	UseKeyring bool `mapstructure:"use_keyring" yaml:"use_keyring"`
}

// SessionConfig holds lifecycle defaults.
type SessionConfig struct {
	DefaultExpirationMinutes  int  `mapstructure:"default_expiration_minutes" yaml:"default_expiration_minutes"`
	DefaultPollingIntervalSec int  `mapstructure:"default_polling_interval_sec" yaml:"default_polling_interval_sec"`
	DeleteOnExpiry            bool `mapstructure:"delete_on_expiry" yaml:"delete_on_expiry"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// ServerConfig holds the local JSON API settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

// DefaultSettings returns the settings used when nothing is persisted yet,
// falling back to the built-in defaults for out-of-range config values.
func (c *AppConfig) DefaultSettings() Settings {
	return Settings{
		ExpirationMinutes:      c.Session.DefaultExpirationMinutes,
		PollingIntervalSeconds: c.Session.DefaultPollingIntervalSec,
	}.Normalize(DefaultSettings())
}

// ConfigDir returns ~/.config/dragonmail, or the working directory when
// the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dragonmail")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/dragonmail/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		Provider: ProviderConfig{
			BaseURL:           "https://api.mail.tm",
			TimeoutSec:        30,
			RequestsPerSecond: 8,
			FallbackDomain:    "mail.tm",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   filepath.Join(dir, "dragonmail.db"),
		},
		Session: SessionConfig{
			DefaultExpirationMinutes:  DefaultExpirationMinutes,
			DefaultPollingIntervalSec: DefaultPollingIntervalSeconds,
			DeleteOnExpiry:            true,
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "dragonmail.log"),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8025",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with DRAGONMAIL_ override file values.
// If the file does not exist, it returns the defaults (with overrides).
func LoadConfig(path string) (*AppConfig, error) {
	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("dragonmail")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values and so
	// AutomaticEnv can see every key.
	v.SetDefault("provider.base_url", def.Provider.BaseURL)
	v.SetDefault("provider.timeout_sec", def.Provider.TimeoutSec)
	v.SetDefault("provider.requests_per_second", def.Provider.RequestsPerSecond)
	v.SetDefault("provider.fallback_domain", def.Provider.FallbackDomain)
	v.SetDefault("storage.driver", def.Storage.Driver)
	v.SetDefault("storage.path", def.Storage.Path)
	v.SetDefault("storage.use_keyring", def.Storage.UseKeyring)
	v.SetDefault("session.default_expiration_minutes", def.Session.DefaultExpirationMinutes)
	v.SetDefault("session.default_polling_interval_sec", def.Session.DefaultPollingIntervalSec)
	v.SetDefault("session.delete_on_expiry", def.Session.DeleteOnExpiry)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("server.addr", def.Server.Addr)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Storage.Driver != "sqlite" && cfg.Storage.Driver != "bolt" {
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Provider.TimeoutSec <= 0 {
		cfg.Provider.TimeoutSec = def.Provider.TimeoutSec
	}

	return cfg, nil
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

	v.Set("provider", cfg.Provider)
	v.Set("storage", cfg.Storage)
	v.Set("session", cfg.Session)
	v.Set("log", cfg.Log)
	v.Set("server", cfg.Server)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
