// Package config assembles the daemon's configuration from, in increasing
// precedence: built-in defaults, the optional ~/.agent-browser/config.yaml
// file, a local .env file, and the process environment. Session labels are
// validated here, at the boundary where external input first enters the
// system; invalid values are construction errors, never sanitized.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/mstoykov/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/browserd/pkg/session"
	"github.com/entrhq/browserd/pkg/state"
)

const (
	// DefaultSession is the isolation label used when none is configured.
	DefaultSession = "default"

	// DefaultMaxAgeDays is the expiration threshold applied when the
	// max-age variable is unset.
	DefaultMaxAgeDays = 30
)

// Config holds every option the daemon core consumes.
type Config struct {
	// Session is the isolation label separating concurrent daemons.
	Session string `yaml:"session" envconfig:"AGENT_BROWSER_SESSION"`

	// SessionName is the persistence label naming saved authentication
	// state. Empty disables auto save/load entirely.
	SessionName string `yaml:"session_name" envconfig:"AGENT_BROWSER_SESSION_NAME"`

	// StateKey is a 64-character hex AEAD key. Empty means plaintext
	// persistence.
	StateKey string `yaml:"state_key" envconfig:"AGENT_BROWSER_STATE_KEY"`

	// StateMaxAge is the expiration threshold in days, kept as a string
	// so an unparsable value degrades to a disabled sweep instead of a
	// startup failure. See MaxAgeDays.
	StateMaxAge string `yaml:"state_max_age_days" envconfig:"AGENT_BROWSER_STATE_MAX_AGE_DAYS"`

	// Debug toggles diagnostic emission. Never affects control flow.
	Debug bool `yaml:"debug" envconfig:"AGENT_BROWSER_DEBUG"`

	// Headed launches a visible browser window instead of headless.
	Headed bool `yaml:"headed" envconfig:"AGENT_BROWSER_HEADED"`

	// ExecutablePath points at a custom Chromium binary.
	ExecutablePath string `yaml:"executable_path" envconfig:"AGENT_BROWSER_EXECUTABLE_PATH"`
}

// Load assembles and validates the configuration.
func Load() (*Config, error) {
	cfg := &Config{Session: DefaultSession}

	if path, err := defaultConfigPath(); err == nil {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// .env fills in variables that are not already exported; the real
	// environment always wins.
	_ = godotenv.Load()

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.Session == "" {
		cfg.Session = DefaultSession
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the session labels and key format.
func (c *Config) Validate() error {
	if err := session.Validate(c.Session); err != nil {
		return fmt.Errorf("AGENT_BROWSER_SESSION: %w", err)
	}
	if c.SessionName != "" {
		if err := session.Validate(c.SessionName); err != nil {
			return fmt.Errorf("AGENT_BROWSER_SESSION_NAME: %w", err)
		}
	}
	if _, err := c.Key(); err != nil {
		return err
	}
	return nil
}

// Key returns the parsed 32-byte AEAD key, or nil when encryption is not
// configured. A malformed key is a configuration error, not a silent
// fallback to plaintext.
func (c *Config) Key() ([]byte, error) {
	if c.StateKey == "" {
		return nil, nil
	}
	key, err := state.ParseKey(c.StateKey)
	if err != nil {
		return nil, fmt.Errorf("AGENT_BROWSER_STATE_KEY: %w", err)
	}
	return key, nil
}

// MaxAgeDays returns the expiration threshold: the default when unset, zero
// (sweep disabled) for unparsable or negative values.
func (c *Config) MaxAgeDays() int {
	if c.StateMaxAge == "" {
		return DefaultMaxAgeDays
	}
	days, err := strconv.Atoi(c.StateMaxAge)
	if err != nil || days < 0 {
		return 0
	}
	return days
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".agent-browser", "config.yaml"), nil
}

// loadFile merges a YAML config file into cfg. A missing file is fine; a
// malformed one is an error rather than a silent skip.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
