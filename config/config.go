// Package config loads ChatMesh configuration from a YAML file with
// environment variable expansion, falling back to environment variables and
// built-in defaults when no file is given.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ChatMesh configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the HTTP listen configuration.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ModelConfig selects the responder backend and its generation parameters.
type ModelConfig struct {
	// Provider is one of "openai", "anthropic" or "scripted".
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// SessionConfig bounds per-conversation state.
type SessionConfig struct {
	MaxTurns int `yaml:"max_turns"`

	TTL           time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TTLRaw           string `yaml:"ttl"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration, overridable through
// environment variables (CHATMESH_ADDR, CHATMESH_PROVIDER, CHATMESH_MODEL,
// CHATMESH_MAX_TURNS, CHATMESH_SESSION_TTL, CHATMESH_LOG_LEVEL).
func Default() *Config {
	cfg := &Config{
		Server:  ServerConfig{Addr: ":8000"},
		Model:   ModelConfig{Provider: "openai", Name: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 4096},
		Session: SessionConfig{MaxTurns: 50, TTL: 30 * time.Minute, SweepInterval: 5 * time.Minute},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}

	if v := os.Getenv("CHATMESH_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CHATMESH_PROVIDER"); v != "" {
		cfg.Model.Provider = v
	}
	if v := os.Getenv("CHATMESH_MODEL"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("CHATMESH_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Session.MaxTurns = n
		}
	}
	if v := os.Getenv("CHATMESH_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Session.TTL = d
		}
	}
	if v := os.Getenv("CHATMESH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg
}

// Load reads a YAML configuration file, expands ${VAR} references from the
// environment and applies defaults for unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} with the environment value, leaving unset
// variables as empty strings.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func (c *Config) parseDurations() error {
	if c.Session.TTLRaw != "" {
		d, err := time.ParseDuration(c.Session.TTLRaw)
		if err != nil {
			return fmt.Errorf("invalid session ttl %q: %w", c.Session.TTLRaw, err)
		}
		c.Session.TTL = d
	}
	if c.Session.SweepIntervalRaw != "" {
		d, err := time.ParseDuration(c.Session.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("invalid sweep interval %q: %w", c.Session.SweepIntervalRaw, err)
		}
		c.Session.SweepInterval = d
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic", "scripted":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if c.Session.MaxTurns <= 0 {
		return fmt.Errorf("session max_turns must be positive, got %d", c.Session.MaxTurns)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.Session.TTL)
	}
	return nil
}
