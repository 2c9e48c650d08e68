package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultVAPIDKey is the public key the dashboard ships with when no
// VAPID_PUBLIC_KEY is configured server-side.
const DefaultVAPIDKey = "BEl62iUYgUivxIkv69yViEuiBIa40HI0DLI5kz5Fs0cEiw7MrKp9t0pNDhLRCb7cWfpVRYvx3VfP-J3LNlLBxL4"

// ServerConfig points the client at a dashboard instance.
type ServerConfig struct {
	// BaseURL is the root URL of the dashboard (e.g., https://itrax.example.com).
	BaseURL string `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`

	// Username is the dashboard login. The password lives in the keyring.
	Username string `mapstructure:"username" yaml:"username"`
}

// PushConfig controls the push-enabled build variant.
type PushConfig struct {
	// Enabled selects the push-enabled variant. When false the client only polls.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// RelayURL is the websocket URL of the push service.
	RelayURL string `mapstructure:"relay_url" yaml:"relay_url" validate:"omitempty,url"`

	// FallbackVAPIDKey is used when the key endpoint cannot be reached.
	// Empty turns a key fetch failure into a subscription error.
	FallbackVAPIDKey string `mapstructure:"fallback_vapid_key" yaml:"fallback_vapid_key"`
}

// PollConfig controls the unread-count polling loop.
type PollConfig struct {
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec" validate:"gte=5"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme     string `mapstructure:"theme" yaml:"theme"`
	ListLimit int    `mapstructure:"list_limit" yaml:"list_limit" validate:"gte=1,lte=100"`
	PageLimit int    `mapstructure:"page_limit" yaml:"page_limit" validate:"gte=1,lte=100"`
}

// AgentConfig describes the push agent's scope and install-time cache.
type AgentConfig struct {
	Scope         string   `mapstructure:"scope" yaml:"scope" validate:"required,startswith=/"`
	CacheManifest []string `mapstructure:"cache_manifest" yaml:"cache_manifest" validate:"dive,startswith=/"`
}

// LogConfig selects where and how verbosely the client logs.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	File  string `mapstructure:"file" yaml:"file"`
}

// StoreConfig locates the local SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Push    PushConfig    `mapstructure:"push" yaml:"push"`
	Poll    PollConfig    `mapstructure:"poll" yaml:"poll"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// PushSupported reports whether the push-enabled variant can run at all.
func (c *AppConfig) PushSupported() bool {
	return c.Push.Enabled && c.Push.RelayURL != ""
}

// configDir returns ~/.config/itrax, falling back to the working directory.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "itrax")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/itrax/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultCacheManifest lists the static assets needed for minimal offline use.
var DefaultCacheManifest = []string{
	"/",
	"/static/css/style.css",
	"/static/js/app.js",
	"/static/js/notifications.js",
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := configDir()
	return &AppConfig{
		Server: ServerConfig{
			BaseURL: "http://localhost:5000",
		},
		Push: PushConfig{
			Enabled:          true,
			FallbackVAPIDKey: DefaultVAPIDKey,
		},
		Poll: PollConfig{
			IntervalSec: 30,
		},
		Display: DisplayConfig{
			Theme:     "default",
			ListLimit: 10,
			PageLimit: 50,
		},
		Agent: AgentConfig{
			Scope:         "/",
			CacheManifest: append([]string(nil), DefaultCacheManifest...),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "itrax-notify.log"),
		},
		Store: StoreConfig{
			Path: filepath.Join(dir, "itrax-notify.db"),
		},
	}
}

// newViper builds a Viper instance with every default registered so that
// missing keys and ITRAX_* environment overrides resolve consistently.
func newViper(path string) *viper.Viper {
	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("itrax")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.base_url", def.Server.BaseURL)
	v.SetDefault("server.username", def.Server.Username)
	v.SetDefault("push.enabled", def.Push.Enabled)
	v.SetDefault("push.relay_url", def.Push.RelayURL)
	v.SetDefault("push.fallback_vapid_key", def.Push.FallbackVAPIDKey)
	v.SetDefault("poll.interval_sec", def.Poll.IntervalSec)
	v.SetDefault("display.theme", def.Display.Theme)
	v.SetDefault("display.list_limit", def.Display.ListLimit)
	v.SetDefault("display.page_limit", def.Display.PageLimit)
	v.SetDefault("agent.scope", def.Agent.Scope)
	v.SetDefault("agent.cache_manifest", def.Agent.CacheManifest)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("store.path", def.Store.Path)

	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, defaults (plus environment overrides) apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks field constraints declared in struct tags.
func (c *AppConfig) Validate() error {
	return validator.New().Struct(c)
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

	v.Set("server", cfg.Server)
	v.Set("push", cfg.Push)
	v.Set("poll", cfg.Poll)
	v.Set("display", cfg.Display)
	v.Set("agent", cfg.Agent)
	v.Set("log", cfg.Log)
	v.Set("store", cfg.Store)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
