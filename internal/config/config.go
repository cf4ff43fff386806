package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Wojt3kW/ocrpdf/internal/ocr"
	"github.com/Wojt3kW/ocrpdf/internal/platform"
)

// Config holds the complete server configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Assets  AssetsConfig  `toml:"assets"`
	OCR     OCRConfig     `toml:"ocr"`
	Page    PageConfig    `toml:"page"`
	Upload  UploadConfig  `toml:"upload"`
	Logging LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Host         string     `toml:"host"`
	Port         int        `toml:"port"`
	ReadTimeout  duration   `toml:"read_timeout"`
	WriteTimeout duration   `toml:"write_timeout"`
	IdleTimeout  duration   `toml:"idle_timeout"`
	Auth         AuthConfig `toml:"auth"`
	TLS          TLSConfig  `toml:"tls"`
}

type AuthConfig struct {
	Enabled           bool     `toml:"enabled"`
	APIKeys           []string `toml:"api_keys"`
	APIKeysFile       string   `toml:"api_keys_file"`
	BasicAuthUser     string   `toml:"basic_auth_user"`
	BasicAuthPassHash string   `toml:"basic_auth_password_hash"`
}

type TLSConfig struct {
	Enabled  bool   `toml:"enabled"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

// AssetsConfig locates the static assets root holding the OCR data.
type AssetsConfig struct {
	WebRoot string `toml:"web_root"`
	// Platform overrides OS detection: windows, linux or mac.
	Platform string `toml:"platform"`
}

type OCRConfig struct {
	Mode          string   `toml:"mode"`
	Languages     []string `toml:"languages"`
	DPI           int      `toml:"dpi"`
	TempDirectory string   `toml:"temp_directory"`
}

// PageConfig is the synthesized page size in PDF points.
type PageConfig struct {
	Width  float64 `toml:"width"`
	Height float64 `toml:"height"`
	Margin float64 `toml:"margin"`
}

type UploadConfig struct {
	Field     string `toml:"field"`
	MaxMemory int64  `toml:"max_memory"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// duration wraps time.Duration for TOML unmarshaling.
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

// Load reads and parses the server configuration from a TOML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.loadSecrets(); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			ReadTimeout: duration(5 * time.Minute),
			IdleTimeout: duration(2 * time.Minute),
		},
		Assets: AssetsConfig{
			WebRoot: "wwwroot",
		},
		OCR: OCRConfig{
			Mode:      "auto",
			Languages: []string{"pol", "eng"},
			DPI:       300,
		},
		Page: PageConfig{
			Width:  595,
			Height: 842,
			Margin: 40,
		},
		Upload: UploadConfig{
			Field:     "file",
			MaxMemory: 32 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ApplyEnv overrides file values with OCRPDF_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("OCRPDF_HOST", &c.Server.Host)
	str("OCRPDF_WEB_ROOT", &c.Assets.WebRoot)
	str("OCRPDF_PLATFORM", &c.Assets.Platform)
	str("OCRPDF_OCR_MODE", &c.OCR.Mode)
	str("OCRPDF_LOG_LEVEL", &c.Logging.Level)
	str("OCRPDF_LOG_FORMAT", &c.Logging.Format)

	if v, ok := lookup("OCRPDF_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OCRPDF_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks values that would otherwise fail at request time.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Assets.WebRoot == "" {
		errs = append(errs, errors.New("assets.web_root must be set"))
	}
	if c.Assets.Platform != "" && platform.Detect(c.Assets.Platform) == platform.Unknown {
		errs = append(errs, fmt.Errorf("assets.platform %q is not one of windows, linux, mac", c.Assets.Platform))
	}
	if _, err := ocr.ParseMode(c.OCR.Mode); err != nil {
		errs = append(errs, fmt.Errorf("ocr.mode: %w", err))
	}
	if len(c.OCR.Languages) == 0 {
		errs = append(errs, errors.New("ocr.languages must not be empty"))
	}
	if c.OCR.DPI <= 0 {
		errs = append(errs, fmt.Errorf("ocr.dpi %d must be positive", c.OCR.DPI))
	}
	if c.Page.Width <= 2*c.Page.Margin || c.Page.Height <= 2*c.Page.Margin {
		errs = append(errs, errors.New("page margins leave no room for content"))
	}
	if c.Upload.Field == "" {
		errs = append(errs, errors.New("upload.field must be set"))
	}
	if c.Server.Auth.Enabled && !c.Server.Auth.hasCredentials() {
		errs = append(errs, errors.New("server.auth is enabled but no api_keys or basic auth user and hash are set"))
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires cert_file and key_file"))
	}

	return errors.Join(errs...)
}

func (a AuthConfig) hasCredentials() bool {
	for _, k := range a.APIKeys {
		if k != "" {
			return true
		}
	}
	return a.BasicAuthUser != "" && a.BasicAuthPassHash != ""
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// loadSecrets reads secret values from files.
func (c *Config) loadSecrets() error {
	if c.Server.Auth.APIKeysFile != "" {
		data, err := readSecretFile(c.Server.Auth.APIKeysFile)
		if err != nil {
			if c.Server.Auth.Enabled {
				return fmt.Errorf("api keys: %w", err)
			}
			return nil
		}
		for _, line := range strings.Split(data, "\n") {
			if key := strings.TrimSpace(line); key != "" && !strings.HasPrefix(key, "#") {
				c.Server.Auth.APIKeys = append(c.Server.Auth.APIKeys, key)
			}
		}
	}
	return nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
