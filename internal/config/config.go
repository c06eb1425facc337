// Package config loads controltape's TOML configuration, with a
// system -> user -> environment precedence chain.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// stripANSI removes ANSI escape codes from a string
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// Config is the top-level controltape configuration.
type Config struct {
	Tapes   TapesConfig   `toml:"tapes"`
	Session SessionConfig `toml:"session"`
	Nats    NatsConfig    `toml:"nats"`
	DB      DBConfig      `toml:"db"`
}

// TapesConfig locates the tape store on disk.
type TapesConfig struct {
	Path   string `toml:"path"`
	Redact bool   `toml:"redact"`
}

// SessionConfig holds the defaults a CLI entry point hands to
// session.New and registry.New.
type SessionConfig struct {
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxSessions    int    `toml:"max_sessions"`
	AppName        string `toml:"app_name"`
}

// Timeout returns the configured session timeout as a time.Duration.
func (s SessionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// NatsConfig configures the optional lifecycle event bus.
type NatsConfig struct {
	URL string `toml:"url"`
}

// DBConfig configures the optional Postgres audit trail.
type DBConfig struct {
	URL string `toml:"url"`
}

// DefaultConfig returns controltape's built-in defaults before any
// config file or environment variable is applied.
func DefaultConfig() *Config {
	tapesPath := filepath.Join(os.TempDir(), "controltape", "tapes")
	if home, err := os.UserHomeDir(); err == nil {
		tapesPath = filepath.Join(home, ".local", "share", "controltape", "tapes")
	}

	return &Config{
		Tapes: TapesConfig{
			Path:   tapesPath,
			Redact: true,
		},
		Session: SessionConfig{
			TimeoutSeconds: 30,
			MaxSessions:    0,
			AppName:        "controltape",
		},
	}
}

// Load builds a Config from defaults, then /etc/controltape/config.toml,
// then ~/.config/controltape/config.toml, then CONTROLTAPE_* environment
// variables, each overriding the previous layer.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat("/etc/controltape/config.toml"); err == nil {
		if _, err := toml.DecodeFile("/etc/controltape/config.toml", cfg); err != nil {
			return nil, err
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		userConfig := filepath.Join(home, ".config", "controltape", "config.toml")
		if _, err := os.Stat(userConfig); err == nil {
			if _, err := toml.DecodeFile(userConfig, cfg); err != nil {
				return nil, err
			}
		}
	}

	if v := os.Getenv("CONTROLTAPE_TAPES_PATH"); v != "" {
		cfg.Tapes.Path = v
	}

	if v := os.Getenv("CONTROLTAPE_REDACT"); v != "" {
		cfg.Tapes.Redact = v != "0" && strings.ToLower(v) != "false"
	}

	if v := os.Getenv("CONTROLTAPE_MAX_SESSIONS"); v != "" {
		v = stripANSI(v)
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CONTROLTAPE_MAX_SESSIONS: %q", v)
		}
		cfg.Session.MaxSessions = n
	}

	if v := os.Getenv("CONTROLTAPE_SESSION_TIMEOUT"); v != "" {
		v = stripANSI(v)
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CONTROLTAPE_SESSION_TIMEOUT: %q", v)
		}
		cfg.Session.TimeoutSeconds = secs
	}

	if v := os.Getenv("CONTROLTAPE_NATS_URL"); v != "" {
		cfg.Nats.URL = v
	}

	if v := os.Getenv("CONTROLTAPE_DATABASE_URL"); v != "" {
		cfg.DB.URL = v
	} else if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DB.URL = v
	}

	return cfg, nil
}

// EnsureDirs creates the tapes path and the app's support directories
// (sessions, saved program configs).
func (c *Config) EnsureDirs() error {
	appDir := c.appDir()
	dirs := []string{
		c.Tapes.Path,
		appDir,
		filepath.Join(appDir, "sessions"),
		c.ConfigsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) appDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, "."+c.Session.AppName)
}

// ConfigsDir returns the directory saved program configs live under.
func (c *Config) ConfigsDir() string {
	return filepath.Join(c.appDir(), "configs")
}
