// Package config holds the agent configuration consumed by the control
// plane: the active model, the permission mode, per-request-kind timeouts,
// and logging. The Runtime wrapper carries the mutators the control plane
// probes during capability negotiation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/codeplane/codeplane/pkg/logger"
)

// Config represents the application configuration.
type Config struct {
	// Model configuration
	Model ModelConfig `json:"model"`

	// Permission configuration
	Permission PermissionConfig `json:"permission"`

	// Control request timeouts
	Timeouts TimeoutConfig `json:"timeouts,omitempty"`

	// Logging configuration
	Log *LogConfig `json:"log,omitempty"`
}

// ModelConfig contains model configuration.
type ModelConfig struct {
	ID       string `json:"id"`
	Provider string `json:"provider,omitempty"`
	BaseURL  string `json:"baseUrl,omitempty"`
	API      string `json:"api,omitempty"`
}

// PermissionConfig contains permission negotiation settings.
type PermissionConfig struct {
	Mode string `json:"mode"` // default, acceptEdits, plan, bypassPermissions
}

// TimeoutConfig contains per-request-kind timeouts in seconds. Zero means
// use the built-in default; nothing in the engine hard-codes a single
// global value.
type TimeoutConfig struct {
	Generic     float64 `json:"generic,omitempty"`
	Initialize  float64 `json:"initialize,omitempty"`
	Permission  float64 `json:"permission,omitempty"`
	Mcp         float64 `json:"mcp,omitempty"`
	StreamClose float64 `json:"streamClose,omitempty"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // Log level: debug, info, warn, error
	File   string `json:"file,omitempty"`   // Log file path (empty = no file logging)
	Prefix string `json:"prefix,omitempty"` // Log prefix
}

// DefaultLogConfig returns default logging configuration.
func DefaultLogConfig() *LogConfig {
	homeDir, _ := os.UserHomeDir()
	return &LogConfig{
		Level:  "info",
		File:   filepath.Join(homeDir, ".codeplane", "codeplane.log"),
		Prefix: "[codeplane] ",
	}
}

// CreateLogger creates a logger from the log configuration.
func (c *LogConfig) CreateLogger() (*logger.Logger, error) {
	if c == nil {
		c = DefaultLogConfig()
	}

	cfg := &logger.Config{
		Level:    logger.ParseLogLevel(c.Level),
		Prefix:   c.Prefix,
		Console:  true,
		File:     c.File != "",
		FilePath: c.File,
	}

	return logger.NewLogger(cfg)
}

// LoadConfig loads configuration from file and merges with environment
// variables. Environment variables take precedence over config file values.
func LoadConfig(configPath string) (*Config, error) {
	// Start with default config
	cfg := &Config{
		Model: ModelConfig{
			ID:       getEnv("CODEPLANE_MODEL", "qwen3-coder-plus"),
			Provider: "dashscope",
			API:      "openai-completions",
		},
		Permission: PermissionConfig{Mode: "default"},
		Log:        DefaultLogConfig(),
	}

	// Load from file if exists
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Merge with defaults (file values override defaults)
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables override config file
	if val := os.Getenv("CODEPLANE_MODEL"); val != "" {
		cfg.Model.ID = val
	}
	if val := os.Getenv("CODEPLANE_PERMISSION_MODE"); val != "" {
		cfg.Permission.Mode = val
	}
	if val := os.Getenv("CODEPLANE_LOG_LEVEL"); val != "" {
		if cfg.Log == nil {
			cfg.Log = DefaultLogConfig()
		}
		cfg.Log.Level = val
	}
	if val := os.Getenv("CODEPLANE_STREAM_CLOSE_TIMEOUT"); val != "" {
		if ms, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Timeouts.StreamClose = ms / 1000.0
		}
	}

	return cfg, nil
}

// SaveConfig writes the configuration to the given path.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".codeplane", "config.json"), nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
