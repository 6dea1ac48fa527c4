// Package config loads taskflow settings from defaults, an optional YAML file
// and TASKFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/abatilo/taskflow/internal/directory"
	"github.com/abatilo/taskflow/internal/storage"
)

// FileName is the config file looked up in the data directory.
const FileName = "taskflow.yaml"

// Storage drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config is the full taskflow configuration.
type Config struct {
	Storage     StorageConfig     `mapstructure:"storage"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Log         LogConfig         `mapstructure:"log"`
	Directory   DirectoryConfig   `mapstructure:"directory"`
	// Tenant is stamped on tasks created from the CLI.
	Tenant string `mapstructure:"tenant"`
}

// StorageConfig selects and locates the task store.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	// Path is the data directory. Empty means ~/.taskflow/<project>.
	Path string `mapstructure:"path"`
}

// ConcurrencyConfig tunes optimistic-concurrency retries.
type ConcurrencyConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DirectoryConfig lists the users and cases tasks may reference.
// An empty user list accepts any user.
type DirectoryConfig struct {
	Users []string             `mapstructure:"users"`
	Cases []directory.CaseInfo `mapstructure:"cases"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage:     StorageConfig{Driver: DriverFile},
		Concurrency: ConcurrencyConfig{MaxRetries: 3},
		Log:         LogConfig{Level: "warn", Format: "text"},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("concurrency.max_retries", d.Concurrency.MaxRetries)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("tenant", d.Tenant)
}

// Load reads configuration. An explicit path must exist; with an empty path
// the data directory's taskflow.yaml is read when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TASKFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	if path == "" {
		path = defaultPath(v.GetString("storage.path"))
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultPath returns the config file inside the data directory, or "" when
// there is no such file.
func defaultPath(dataDir string) string {
	if dataDir == "" {
		var err error
		if dataDir, err = storage.DefaultDataDir(); err != nil {
			return ""
		}
	}
	path := filepath.Join(dataDir, FileName)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	drivers := []string{DriverFile, DriverSQLite, DriverMemory}
	if !slices.Contains(drivers, c.Storage.Driver) {
		return fmt.Errorf("storage.driver must be one of %s, got %q", strings.Join(drivers, ", "), c.Storage.Driver)
	}
	if c.Concurrency.MaxRetries < 1 {
		return fmt.Errorf("concurrency.max_retries must be at least 1, got %d", c.Concurrency.MaxRetries)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// DataDir returns the configured data directory or the per-project default.
func (c *Config) DataDir() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	return storage.DefaultDataDir()
}

// UserDirectory builds the directory of known users and cases.
func (c *Config) UserDirectory() *directory.Static {
	return directory.NewStatic(c.Directory.Users, c.Directory.Cases)
}

// NewLogger builds a slog logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// WriteDefault writes a commented default configuration to path.
func WriteDefault(path string) error {
	content := `# taskflow configuration

storage:
  driver: file  # file, sqlite or memory
  # path: ""    # defaults to ~/.taskflow/<project>

concurrency:
  max_retries: 3

log:
  level: warn   # debug, info, warn, error
  format: text  # text or json

# Tenant stamped on tasks created from the CLI
# tenant: firm

# Known users and cases. An empty user list accepts anyone.
# directory:
#   users: [alice, bob]
#   cases:
#     - id: c1
#       tenant: firm
#       number: 2025-017
#       title: Acme v. Widget
`
	return os.WriteFile(path, []byte(content), 0o644) //nolint:gosec // config file is not secret
}
