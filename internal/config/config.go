// Package config handles Jeeves configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/jeeves/config.yaml, /config/config.yaml,
// /etc/jeeves/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "jeeves", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/jeeves/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Jeeves configuration.
type Config struct {
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Heartbeat  HeartbeatConfig  `yaml:"heartbeat"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
}

// WorkspaceConfig defines the workspace root that convention files,
// memory notes, and session segments are read from/written to.
type WorkspaceConfig struct {
	Dir string `yaml:"dir"`
}

// AnthropicConfig defines the LLM provider connection.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// Configured reports whether an Anthropic API key is present.
func (c AnthropicConfig) Configured() bool {
	return c.APIKey != ""
}

// EmbeddingsConfig defines embedding generation settings for the
// memory index's dense-vector side.
type EmbeddingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"` // e.g. text-embedding-3-small
}

// Configured reports whether embedding generation has what it needs.
func (c EmbeddingsConfig) Configured() bool {
	return c.Enabled && c.APIKey != ""
}

// HeartbeatConfig defines the periodic ticker that runs the agent loop
// against HEARTBEAT.md at bounded times of day.
type HeartbeatConfig struct {
	IntervalMinutes int    `yaml:"interval_minutes"`
	ActiveStart     string `yaml:"active_start"` // HH:MM
	ActiveEnd       string `yaml:"active_end"`   // HH:MM
	Timezone        string `yaml:"timezone"`     // IANA zone; empty = process local
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, overlays
// environment-variable overrides, and validates the result. After Load
// returns successfully, all fields are usable without additional
// nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${HOME}, ${ANTHROPIC_API_KEY}).
	// This is a convenience for container deployments; the recommended
	// approach is to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Workspace.Dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		c.Workspace.Dir = filepath.Join(wd, "workspace")
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = "claude-sonnet-4-5"
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "text-embedding-3-small"
	}
	if c.Heartbeat.IntervalMinutes == 0 {
		c.Heartbeat.IntervalMinutes = 30
	}
	if c.Heartbeat.ActiveStart == "" {
		c.Heartbeat.ActiveStart = "08:00"
	}
	if c.Heartbeat.ActiveEnd == "" {
		c.Heartbeat.ActiveEnd = "23:00"
	}
}

// applyEnvOverrides lets the documented environment knobs win over
// whatever the YAML file set, so a single image can be reconfigured
// without editing the mounted config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WORKSPACE_DIR"); v != "" {
		c.Workspace.Dir = v
	}
	if v := os.Getenv("HEARTBEAT_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Heartbeat.IntervalMinutes = n
		}
	}
	if v := os.Getenv("HEARTBEAT_ACTIVE_START"); v != "" {
		c.Heartbeat.ActiveStart = v
	}
	if v := os.Getenv("HEARTBEAT_ACTIVE_END"); v != "" {
		c.Heartbeat.ActiveEnd = v
	}
	if v := os.Getenv("HEARTBEAT_TIMEZONE"); v != "" {
		c.Heartbeat.Timezone = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Anthropic.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.Heartbeat.IntervalMinutes < 1 {
		return fmt.Errorf("heartbeat.interval_minutes must be >= 1, got %d", c.Heartbeat.IntervalMinutes)
	}
	if _, err := parseHHMM(c.Heartbeat.ActiveStart); err != nil {
		return fmt.Errorf("heartbeat.active_start: %w", err)
	}
	if _, err := parseHHMM(c.Heartbeat.ActiveEnd); err != nil {
		return fmt.Errorf("heartbeat.active_end: %w", err)
	}
	return nil
}

// Default returns a default configuration suitable for local development.
// All defaults are already applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
