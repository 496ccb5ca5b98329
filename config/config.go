// Package config loads the service configuration from YAML with ${VAR}
// expansion and environment overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	auth "github.com/goliatone/go-storefront-auth"
)

const (
	EnvSigningKey = "STOREFRONT_SIGNING_KEY"
	EnvDSN        = "STOREFRONT_DSN"
	EnvHTTPAddr   = "STOREFRONT_ADDR"

	// MinSigningKeyLength is 256 bits, the floor for an HMAC key
	MinSigningKeyLength = 32
)

// Config is process wide and read only once loaded.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	HTTPAddr           string        `yaml:"http_addr"`
	ShutdownTimeoutStr string        `yaml:"shutdown_timeout"`
	ShutdownTimeout    time.Duration `yaml:"-"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type AuthConfig struct {
	SigningKey          string        `yaml:"signing_key"`
	PreviousSigningKeys []string      `yaml:"previous_signing_keys"`
	ValidityWindowStr   string        `yaml:"validity_window"`
	ValidityWindow      time.Duration `yaml:"-"`
	HeaderName          string        `yaml:"header_name"`
	AuthScheme          string        `yaml:"auth_scheme"`
	TokenLookup         string        `yaml:"token_lookup"`
	ContextKey          string        `yaml:"context_key"`
	Issuer              string        `yaml:"issuer"`
	Audience            []string      `yaml:"audience"`
	// BcryptCost zero means the library default
	BcryptCost int `yaml:"bcrypt_cost"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a config with every optional field filled.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:           ":8080",
			ShutdownTimeoutStr: "10s",
			ShutdownTimeout:    10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN: "file:storefront.db?cache=shared",
		},
		Auth: AuthConfig{
			ValidityWindowStr: auth.DefaultValidityWindow.String(),
			ValidityWindow:    auth.DefaultValidityWindow,
			HeaderName:        "Authorization",
			AuthScheme:        "Bearer",
			ContextKey:        "user",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Load reads path on top of the defaults. An empty path uses the defaults
// and the environment only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "reading config file")
		}

		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "parsing config file")
		}
	}

	applyEnv(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or an
// empty string when unset.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvSigningKey); v != "" {
		cfg.Auth.SigningKey = v
	}
	if v := os.Getenv(EnvDSN); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		cfg.Server.HTTPAddr = v
	}
}

func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.ValidityWindowStr != "" {
		if cfg.Auth.ValidityWindow, err = time.ParseDuration(cfg.Auth.ValidityWindowStr); err != nil {
			return errors.Wrap(err, errors.CategoryValidation, "invalid auth.validity_window")
		}
	}

	if cfg.Server.ShutdownTimeoutStr != "" {
		if cfg.Server.ShutdownTimeout, err = time.ParseDuration(cfg.Server.ShutdownTimeoutStr); err != nil {
			return errors.Wrap(err, errors.CategoryValidation, "invalid server.shutdown_timeout")
		}
	}

	return nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	var problems []string

	switch key := strings.TrimSpace(c.Auth.SigningKey); {
	case key == "":
		problems = append(problems, "auth.signing_key is required (or set "+EnvSigningKey+")")
	case len(key) < MinSigningKeyLength:
		problems = append(problems, fmt.Sprintf("auth.signing_key must be at least %d bytes", MinSigningKeyLength))
	}
	for i, key := range c.Auth.PreviousSigningKeys {
		if len(strings.TrimSpace(key)) < MinSigningKeyLength {
			problems = append(problems, fmt.Sprintf("auth.previous_signing_keys[%d] must be at least %d bytes", i, MinSigningKeyLength))
		}
	}
	if cost := c.Auth.BcryptCost; cost != 0 && (cost < bcrypt.MinCost || cost > bcrypt.MaxCost) {
		problems = append(problems, fmt.Sprintf("auth.bcrypt_cost must be 0 or between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Auth.ValidityWindow <= 0 {
		problems = append(problems, "auth.validity_window must be positive")
	}
	if c.Database.DSN == "" {
		problems = append(problems, "database.dsn is required")
	}
	if c.Server.HTTPAddr == "" {
		problems = append(problems, "server.http_addr is required")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest).
			WithMetadata(map[string]any{"problems": problems})
	}
	return nil
}

// Masked returns a copy safe to log.
func (c Config) Masked() Config {
	if c.Auth.SigningKey != "" {
		c.Auth.SigningKey = "***"
	}
	if len(c.Auth.PreviousSigningKeys) > 0 {
		c.Auth.PreviousSigningKeys = []string{"***"}
	}
	return c
}

func (c *Config) GetSigningKey() string {
	return c.Auth.SigningKey
}

func (c *Config) GetPreviousSigningKeys() []string {
	return c.Auth.PreviousSigningKeys
}

func (c *Config) GetContextKey() string {
	return c.Auth.ContextKey
}

func (c *Config) GetValidityWindow() time.Duration {
	return c.Auth.ValidityWindow
}

func (c *Config) GetHeaderName() string {
	return c.Auth.HeaderName
}

func (c *Config) GetAuthScheme() string {
	return c.Auth.AuthScheme
}

func (c *Config) GetTokenLookup() string {
	return c.Auth.TokenLookup
}

func (c *Config) GetIssuer() string {
	return c.Auth.Issuer
}

func (c *Config) GetAudience() []string {
	return c.Auth.Audience
}
