// Package config handles scriptdeck configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (SCRIPTDECK_*)
//  2. Config file (<config root>/config.yaml)
//  3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/musher-dev/scriptdeck/internal/paths"
)

const (
	// DefaultCols is the default PTY width.
	DefaultCols = 80
	// DefaultRows is the default PTY height.
	DefaultRows = 24
	// DefaultDrainGrace is how long the coordinator waits for output after exit
	// before closing a channel that never reports end-of-stream on its own.
	DefaultDrainGrace = 250 * time.Millisecond
	// DefaultDrainTimeout bounds the wait for natural end-of-stream after exit.
	DefaultDrainTimeout = 5 * time.Second
	// DefaultHistoryLimit is the default number of runs listed per script.
	DefaultHistoryLimit = 50
	// DefaultHistoryRetention is how long raw journals are kept by prune.
	DefaultHistoryRetention = 30 * 24 * time.Hour
)

// Config holds the scriptdeck configuration.
type Config struct {
	v *viper.Viper
}

// Load reads configuration from all sources.
func Load() *Config {
	v := viper.New()

	// Set defaults
	v.SetDefault("database.path", "")
	v.SetDefault("history.dir", "")
	v.SetDefault("history.limit", DefaultHistoryLimit)
	v.SetDefault("history.retention", DefaultHistoryRetention.String())
	v.SetDefault("runner.cols", DefaultCols)
	v.SetDefault("runner.rows", DefaultRows)
	v.SetDefault("runner.force_pipes", false)
	v.SetDefault("runner.drain_grace", DefaultDrainGrace.String())
	v.SetDefault("runner.drain_timeout", DefaultDrainTimeout.String())

	// Config file location
	if configDir, err := paths.ConfigRoot(); err == nil {
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Environment variables
	v.SetEnvPrefix("SCRIPTDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found, but warn on other errors)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
		}
	}

	return &Config{v: v}
}

// Get returns a configuration value.
func (c *Config) Get(key string) interface{} {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns a configuration value as int.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// Set sets a configuration value and persists it.
func (c *Config) Set(key string, value interface{}) error {
	c.v.Set(key, value)

	configDir, err := paths.ConfigRoot()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return err
	}

	configFile := filepath.Join(configDir, "config.yaml")
	return c.v.WriteConfigAs(configFile)
}

// ConfigFile returns the config file that was read, or "" when running on
// defaults and environment only.
func (c *Config) ConfigFile() string {
	return c.v.ConfigFileUsed()
}

// All returns all configuration as a map.
func (c *Config) All() map[string]interface{} {
	return c.v.AllSettings()
}

// DatabasePath returns the SQLite database path, falling back to the data root.
func (c *Config) DatabasePath() string {
	if p := strings.TrimSpace(c.GetString("database.path")); p != "" {
		return p
	}

	p, err := paths.DatabaseFile()
	if err != nil {
		return "scriptdeck.db"
	}

	return p
}

// JournalDir returns the raw output journal directory.
func (c *Config) JournalDir() string {
	if p := strings.TrimSpace(c.GetString("history.dir")); p != "" {
		return p
	}

	p, err := paths.JournalDir()
	if err != nil {
		return ""
	}

	return p
}

// HistoryLimit returns how many runs to list per script.
func (c *Config) HistoryLimit() int {
	if n := c.GetInt("history.limit"); n > 0 {
		return n
	}

	return DefaultHistoryLimit
}

// HistoryRetention returns how long raw journals are kept.
func (c *Config) HistoryRetention() time.Duration {
	return c.duration("history.retention", DefaultHistoryRetention)
}

// TerminalSize returns the default PTY dimensions for new runs.
func (c *Config) TerminalSize() (cols, rows int) {
	cols, rows = c.GetInt("runner.cols"), c.GetInt("runner.rows")
	if cols <= 0 {
		cols = DefaultCols
	}

	if rows <= 0 {
		rows = DefaultRows
	}

	return cols, rows
}

// ForcePipes reports whether runs should skip PTY allocation.
func (c *Config) ForcePipes() bool {
	return c.v.GetBool("runner.force_pipes")
}

// DrainGrace returns the post-exit grace period before closing a channel
// that does not signal end-of-stream.
func (c *Config) DrainGrace() time.Duration {
	return c.duration("runner.drain_grace", DefaultDrainGrace)
}

// DrainTimeout returns the maximum post-exit wait for natural end-of-stream.
func (c *Config) DrainTimeout() time.Duration {
	return c.duration("runner.drain_timeout", DefaultDrainTimeout)
}

// Interpreters returns user-configured extension overrides, keyed by
// lower-case extension including the dot (".py": ["python3", "-u"]).
func (c *Config) Interpreters() map[string][]string {
	raw := c.v.GetStringMapStringSlice("runner.interpreters")
	if len(raw) == 0 {
		return nil
	}

	out := make(map[string][]string, len(raw))
	for ext, argv := range raw {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || len(argv) == 0 {
			continue
		}

		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		out[ext] = argv
	}

	return out
}

func (c *Config) duration(key string, fallback time.Duration) time.Duration {
	d := c.v.GetDuration(key)
	if d <= 0 {
		return fallback
	}

	return d
}
