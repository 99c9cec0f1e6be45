// Package config loads favsync settings from a YAML file, a .env file and
// FAVSYNC_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/setlistfan/favsync/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config holds all client configuration.
type Config struct {
	// BaseURL is the root of the favorites REST API.
	BaseURL string `yaml:"base_url"`

	// StreamURL is the live sync endpoint. Derived from BaseURL when empty.
	StreamURL string `yaml:"stream_url,omitempty"`

	// Timeout bounds every remote call.
	Timeout time.Duration `yaml:"timeout"`

	// DataDir holds the token file and the favorites cache.
	DataDir string `yaml:"data_dir"`

	// LiveSync enables the cross-device change feed in long-running commands.
	LiveSync bool `yaml:"live_sync"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 5 * time.Second,
		DataDir: "~/.favsync",
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// DefaultPath returns the config file location inside the default data dir.
func DefaultPath() string {
	return filepath.Join(ExpandHome(Default().DataDir), "config.yaml")
}

// Load reads configuration from path (optional), then .env, then environment
// variables, and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}

	cfg.DataDir = ExpandHome(cfg.DataDir)
	if cfg.StreamURL == "" {
		cfg.StreamURL = DeriveStreamURL(cfg.BaseURL)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	if v := os.Getenv("FAVSYNC_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("FAVSYNC_STREAM_URL"); v != "" {
		c.StreamURL = v
	}
	if v := os.Getenv("FAVSYNC_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("FAVSYNC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FAVSYNC_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("FAVSYNC_LIVE_SYNC"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FAVSYNC_LIVE_SYNC: %w", err)
		}
		c.LiveSync = b
	}
	if v := os.Getenv("FAVSYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("FAVSYNC_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	return nil
}

// Validate checks that all required configuration is present and valid
func (c Config) Validate() error {
	var problems []string

	if u, err := url.Parse(c.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		problems = append(problems, "base_url must be an absolute http(s) URL")
	}
	if c.StreamURL != "" {
		if u, err := url.Parse(c.StreamURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			problems = append(problems, "stream_url must be a ws(s) URL")
		}
	}
	if c.Timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if c.DataDir == "" {
		problems = append(problems, "data_dir is required")
	}
	if !slices.Contains(logging.ValidLevels, c.Logging.Level) {
		problems = append(problems, "logging.level must be one of: "+strings.Join(logging.ValidLevels, ", "))
	}
	if !slices.Contains(logging.ValidFormats, c.Logging.Format) {
		problems = append(problems, "logging.format must be one of: "+strings.Join(logging.ValidFormats, ", "))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	content, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DeriveStreamURL maps http(s)://host/base to ws(s)://host/base/favorites/stream.
func DeriveStreamURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return ""
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/favorites/stream"
	return u.String()
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
