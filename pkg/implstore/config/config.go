package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/jamesainslie/implstore/pkg/implstore/logging"
	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/jamesainslie/implstore/pkg/implstore/types"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. IMPLSTORE_STORE_PATH.
const EnvPrefix = "IMPLSTORE"

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Daily      bool   `mapstructure:"daily" yaml:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level"`
	Path       string            `mapstructure:"path" yaml:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
	Components map[string]string `mapstructure:"components" yaml:"components"`
}

// StoreConfig locates and tunes the store.
type StoreConfig struct {
	Path          string        `mapstructure:"path" yaml:"path"`
	ReadOnly      bool          `mapstructure:"read_only" yaml:"read_only"`
	DefaultFormat string        `mapstructure:"default_format" yaml:"default_format"`
	TempMaxAge    time.Duration `mapstructure:"temp_max_age" yaml:"temp_max_age"`
}

// WorkersConfig overrides the tuned worker counts. Zero means auto.
type WorkersConfig struct {
	Hash  int `mapstructure:"hash" yaml:"hash"`
	Audit int `mapstructure:"audit" yaml:"audit"`
}

// Config represents the application configuration.
type Config struct {
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Workers WorkersConfig `mapstructure:"workers" yaml:"workers"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.read_only", DefaultReadOnly)
	v.SetDefault("store.default_format", DefaultFormat)
	v.SetDefault("store.temp_max_age", DefaultTempMaxAge)

	v.SetDefault("workers.hash", DefaultHashWorkers)
	v.SetDefault("workers.audit", DefaultAuditWorkers)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", "") // Empty means use logging.DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", DefaultComponents)
}

// NewViper returns a viper instance with defaults, environment binding and
// search paths configured. configFile, when set, replaces the search.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	return v, nil
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - configFile, when not empty
//   - $XDG_CONFIG_HOME/implstore/config.yaml
//   - $HOME/.config/implstore/config.yaml
//
// Environment variables are prefixed with IMPLSTORE_ (e.g.,
// IMPLSTORE_STORE_PATH). A missing default config file is not an error.
func Load(configFile string) (*Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	path, err := ExpandPath(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	cfg.Store.Path = path

	if cfg.Logging.Path != "" {
		if cfg.Logging.Path, err = ExpandPath(cfg.Logging.Path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if _, err := manifest.ParseFormat(c.Store.DefaultFormat); err != nil {
		return fmt.Errorf("store.default_format: %w", err)
	}
	if c.Store.TempMaxAge < 0 {
		return fmt.Errorf("store.temp_max_age must not be negative, got %s", c.Store.TempMaxAge)
	}
	if c.Workers.Hash < 0 || c.Workers.Audit < 0 {
		return errors.New("worker counts must not be negative")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	for comp, lvl := range c.Logging.Components {
		if _, err := logging.ParseLevel(lvl); err != nil {
			return fmt.Errorf("logging.components.%s: %w", comp, err)
		}
	}
	if c.Logging.Rotation.MaxSize != "" {
		if _, err := types.ParseSize(c.Logging.Rotation.MaxSize); err != nil {
			return fmt.Errorf("logging.rotation.max_size: %w", err)
		}
	}
	return nil
}

// Format returns the parsed default manifest format.
func (c *Config) Format() manifest.Format {
	f, err := manifest.ParseFormat(c.Store.DefaultFormat)
	if err != nil {
		return manifest.DefaultFormat
	}
	return f
}

// LogConfig converts the logging section for logging.Init. consoleLevel
// enables stderr output when not empty.
func (c *Config) LogConfig(consoleLevel string) logging.Config {
	return logging.Config{
		Level:        c.Logging.Level,
		Path:         c.Logging.Path,
		Rotation:     ParseRotation(c.Logging.Rotation),
		Components:   c.Logging.Components,
		ConsoleLevel: consoleLevel,
	}
}

// ParseRotation converts the configured rotation, falling back to the
// logging defaults for a missing or invalid size.
func ParseRotation(r RotationConfig) logging.RotationConfig {
	out := logging.RotationConfig{
		MaxSize:    logging.DefaultRotationConfig().MaxSize,
		MaxAge:     r.MaxAge,
		MaxBackups: r.MaxBackups,
		Daily:      r.Daily,
	}
	if r.MaxSize != "" {
		if size, err := types.ParseSize(r.MaxSize); err == nil && size > 0 {
			out.MaxSize = size
		}
	}
	return out
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "implstore"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "implstore"), nil
}

// ConfigPath returns the default configuration file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	if err := EnsureConfigDir(); err != nil {
		return "", err
	}
	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# Implementation store configuration

store:
  # Directory holding committed implementations
  path: %s
  # Remove write permission from committed entries
  read_only: %t
  # Manifest algorithm used when none is given: sha1, sha1new, sha256, sha256new
  default_format: %s
  # purge-temp only removes staging directories older than this
  temp_max_age: %s

# Worker pool sizes (0 means tune to this machine)
workers:
  hash: %d
  audit: %d

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: %s
  # Log file path (empty means use default: $XDG_STATE_HOME/implstore/implstore.log)
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  # Per-component log levels
  components:
    store: info
    manifest: info
    archive: info
    cli: info
`, DefaultStorePath(), DefaultReadOnly, DefaultFormat, DefaultTempMaxAge,
		DefaultHashWorkers, DefaultAuditWorkers, DefaultLogLevel)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return configPath, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// StateDir returns $XDG_STATE_HOME/implstore/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "implstore")
}

// CacheDir returns $XDG_CACHE_HOME/implstore/.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "implstore")
}
