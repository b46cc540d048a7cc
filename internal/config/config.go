// Package config handles service configuration loading and validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	defaultPort      = 3100
	defaultHost      = "127.0.0.1"
	defaultTransport = "local-cli"
	defaultBinary    = "codex"
)

// Config is the top-level service configuration. Values come from an
// optional JSON file, then environment variables override.
type Config struct {
	CodexHome string `json:"codex_home,omitempty"`
	ConfigDir string `json:"config_dir,omitempty"`

	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty"`
	Token     string `json:"token,omitempty"`
	Transport string `json:"transport,omitempty"` // local-cli or app-server

	AgentBinary   string   `json:"agent_binary,omitempty"`
	MaxConcurrent int      `json:"max_concurrent,omitempty"`
	PollInterval  Duration `json:"poll_interval,omitempty"`
	LogLevel      string   `json:"log_level,omitempty"`
}

// Duration wraps time.Duration for JSON: accepts "5s" strings or bare
// numbers of seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val) * time.Second
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Load reads an optional config file, applies environment overrides and
// defaults, and validates. A missing file is fine; the environment alone is
// a complete configuration.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CODEX_HOME"); v != "" {
		c.CodexHome = v
	}
	if v := os.Getenv("CODEX_AGENT_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("CODEX_AGENT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("CODEX_AGENT_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("CODEX_AGENT_TRANSPORT"); v != "" {
		c.Transport = v
	}
}

func (c *Config) applyDefaults() {
	if c.CodexHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.CodexHome = filepath.Join(home, ".codex")
		}
	}
	if c.ConfigDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.ConfigDir = filepath.Join(home, ".config", "codex-agent")
		}
	}
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Transport == "" {
		c.Transport = defaultTransport
	}
	if c.AgentBinary == "" {
		c.AgentBinary = defaultBinary
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 3
	}
	if c.PollInterval.Duration == 0 {
		c.PollInterval.Duration = 500 * time.Millisecond
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Transport != "local-cli" && c.Transport != "app-server" {
		return fmt.Errorf("transport must be local-cli or app-server, got %q", c.Transport)
	}
	if c.CodexHome == "" {
		return fmt.Errorf("codex home could not be determined")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
