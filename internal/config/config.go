// Package config loads questlog settings.
//
// Settings come from, in increasing precedence: built-in defaults, the
// config.toml file, .env files, and QL_-prefixed environment variables
// (QL_API_BASE_URL overrides api.base_url).
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/questlog/questlog/internal/sync"
)

// AppName names the config and data directories.
const AppName = "questlog"

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "QL"

// Config holds every setting.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Store     StoreConfig     `mapstructure:"store"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Merge     MergeConfig     `mapstructure:"merge"`
	UI        UIConfig        `mapstructure:"ui"`

	// File is the config file that was read, empty if none
	File string `mapstructure:"-"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	CredentialsPath string `mapstructure:"credentials_path"`
	// Token overrides the saved credential when set
	Token string `mapstructure:"token"`
}

type LogConfig struct {
	// File enables a rotating log file; empty logs to stderr
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type DaemonConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

type MergeConfig struct {
	Strategy string `mapstructure:"strategy"`
}

type UIConfig struct {
	// Color is auto, always or never
	Color string `mapstructure:"color"`
}

// Options control where Load looks.
type Options struct {
	// ConfigFile is an explicit config path (default: Dir()/config.toml)
	ConfigFile string

	// EnvFiles are loaded into the environment before reading it
	// (default: .env in the working directory and in Dir())
	EnvFiles []string
}

// Dir returns the config directory, $XDG_CONFIG_HOME/questlog or the
// platform equivalent.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "."+AppName)
	}
	return filepath.Join(base, AppName)
}

// DataDir returns the data directory, $XDG_DATA_HOME/questlog or
// ~/.local/share/questlog.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+AppName)
	}
	return filepath.Join(home, ".local", "share", AppName)
}

// DefaultPath is the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:3001")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("store.path", filepath.Join(DataDir(), AppName+".db"))
	v.SetDefault("auth.credentials_path", filepath.Join(Dir(), "credentials.json"))
	v.SetDefault("auth.token", "")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
	v.SetDefault("daemon.interval", 5*time.Minute)
	v.SetDefault("daemon.debounce", 2*time.Second)
	v.SetDefault("dashboard.port", 7420)
	v.SetDefault("merge.strategy", string(sync.BackendWins))
	v.SetDefault("ui.color", "auto")
}

// Default returns the built-in settings.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	// Defaults always decode.
	_ = v.Unmarshal(&c)
	return &c
}

// Load reads settings. A missing config file is not an error unless it was
// named explicitly.
func Load(opts Options) (*Config, error) {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env", filepath.Join(Dir(), ".env")}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := opts.ConfigFile
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	file := ""
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		file = path
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	c.File = file
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that would otherwise fail later.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url cannot be empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %v", c.API.Timeout)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	if _, err := sync.ParseStrategy(c.Merge.Strategy); err != nil {
		return fmt.Errorf("merge.strategy: %w", err)
	}
	switch c.UI.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("ui.color must be auto, always or never, got %q", c.UI.Color)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port)
	}
	return nil
}

// Strategy returns the parsed merge strategy.
func (c *Config) Strategy() sync.Strategy {
	s, err := sync.ParseStrategy(c.Merge.Strategy)
	if err != nil {
		return sync.BackendWins
	}
	return s
}

// tree renders the settings as nested tables for TOML output.
func (c *Config) tree() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"api": {
			"base_url": c.API.BaseURL,
			"timeout":  c.API.Timeout.String(),
		},
		"store": {
			"path": c.Store.Path,
		},
		"auth": {
			"credentials_path": c.Auth.CredentialsPath,
			"token":            c.Auth.Token,
		},
		"log": {
			"file":         c.Log.File,
			"max_size_mb":  c.Log.MaxSizeMB,
			"max_backups":  c.Log.MaxBackups,
			"max_age_days": c.Log.MaxAgeDays,
			"compress":     c.Log.Compress,
		},
		"daemon": {
			"interval": c.Daemon.Interval.String(),
			"debounce": c.Daemon.Debounce.String(),
		},
		"dashboard": {
			"port": c.Dashboard.Port,
		},
		"merge": {
			"strategy": c.Merge.Strategy,
		},
		"ui": {
			"color": c.UI.Color,
		},
	}
}

// Encode writes the settings as TOML. The token is masked unless
// showSecrets is set.
func (c *Config) Encode(w io.Writer, showSecrets bool) error {
	tree := c.tree()
	if !showSecrets && c.Auth.Token != "" {
		tree["auth"]["token"] = "********"
	}
	if err := toml.NewEncoder(w).Encode(tree); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// WriteDefault writes the default config file to path. An existing file is
// only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "# questlog configuration\n# Every key can be overridden with a %s_ environment variable, e.g. %s_API_BASE_URL.\n\n", EnvPrefix, EnvPrefix); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := Default().Encode(f, true); err != nil {
		return err
	}
	return f.Close()
}
