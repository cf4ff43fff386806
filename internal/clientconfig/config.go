// Package clientconfig holds the settings of the ocrpdf command line client.
package clientconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the client configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Output OutputConfig `toml:"output"`
	TUI    TUIConfig    `toml:"tui"`

	path string
}

type ServerConfig struct {
	URL        string   `toml:"url"`
	APIKey     string   `toml:"api_key"`
	APIKeyFile string   `toml:"api_key_file"`
	Timeout    duration `toml:"timeout"`
}

// OutputConfig controls where downloaded PDFs are written. An empty
// directory means next to the input file.
type OutputConfig struct {
	Directory string `toml:"directory"`
	Overwrite bool   `toml:"overwrite"`
}

type TUIConfig struct {
	Enabled bool `toml:"enabled"`
}

// duration wraps time.Duration for TOML (un)marshaling.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(dur)
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "ocrpdf", "client.toml")
}

// Load reads the client configuration from the default location.
func Load() (*Config, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom reads the client configuration from a specific file. A missing
// file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Load API key from file if specified
	if cfg.Server.APIKeyFile != "" && cfg.Server.APIKey == "" {
		keyData, err := os.ReadFile(expandPath(cfg.Server.APIKeyFile))
		if err != nil {
			return nil, fmt.Errorf("read api key file: %w", err)
		}
		cfg.Server.APIKey = strings.TrimSpace(string(keyData))
	}

	return cfg, nil
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:     "http://localhost:8080",
			Timeout: duration(10 * time.Minute),
		},
	}
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	if c.path == "" {
		return DefaultPath()
	}
	return c.path
}

// Save writes the configuration back to the file it was loaded from.
func (c *Config) Save() error {
	path := c.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to a specific file.
func (c *Config) SaveTo(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	// The file may hold an API key.
	return os.WriteFile(path, data, 0o600)
}

// Set updates a configuration value by dotted key path.
func (c *Config) Set(key, value string) error {
	switch key {
	case "server.url":
		c.Server.URL = strings.TrimRight(value, "/")
	case "server.api_key":
		c.Server.APIKey = value
	case "server.api_key_file":
		c.Server.APIKeyFile = value
	case "server.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("server.timeout: %w", err)
		}
		c.Server.Timeout = duration(d)
	case "output.directory":
		c.Output.Directory = value
	case "output.overwrite":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("output.overwrite: %w", err)
		}
		c.Output.Overwrite = b
	case "tui.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("tui.enabled: %w", err)
		}
		c.TUI.Enabled = b
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// Get returns a configuration value by dotted key path.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "server.url":
		return c.Server.URL, nil
	case "server.api_key":
		return c.Server.APIKey, nil
	case "server.api_key_file":
		return c.Server.APIKeyFile, nil
	case "server.timeout":
		return c.Server.Timeout.Duration().String(), nil
	case "output.directory":
		return c.Output.Directory, nil
	case "output.overwrite":
		return strconv.FormatBool(c.Output.Overwrite), nil
	case "tui.enabled":
		return strconv.FormatBool(c.TUI.Enabled), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// Keys lists every key accepted by Get and Set.
func Keys() []string {
	return []string{
		"server.url",
		"server.api_key",
		"server.api_key_file",
		"server.timeout",
		"output.directory",
		"output.overwrite",
		"tui.enabled",
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
