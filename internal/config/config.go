// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for skein.
//
// Configuration lives in a single TOML file at ~/.skein/config.toml, with
// sensible defaults, environment variable overrides, and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete skein configuration.
type Config struct {
	Version      string `toml:"version"`
	DefaultModel string `toml:"default_model"`

	Backend BackendConfig `toml:"backend"`
	UI      UIConfig      `toml:"ui"`
	Tuning  TuningConfig  `toml:"tuning"`
}

// BackendConfig contains chat service connection settings.
type BackendConfig struct {
	// URL of the chat service
	URL string `toml:"url"`
	// TimeoutSecs is the non-streaming request timeout in seconds
	TimeoutSecs int `toml:"timeout_secs"`
	// HistoryLimit caps how many conversations are fetched on startup
	HistoryLimit int `toml:"history_limit"`
}

// UIConfig contains presentation settings.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// SidebarWidth is the sidebar panel width in columns
	SidebarWidth int `toml:"sidebar_width"`
	// ShowCost displays per-message cost in the transcript
	ShowCost bool `toml:"show_cost"`
	// ShowTokens displays token counts in the transcript
	ShowTokens bool `toml:"show_tokens"`
	// Notifications fires a desktop notification when a response finishes
	// while the window is unfocused
	Notifications bool `toml:"notifications"`
}

// TuningConfig contains behavior tunables. The defaults match the
// product spec; exposing them keeps power users out of the source.
type TuningConfig struct {
	// ScrollToleranceRows is the bottom band within which the transcript
	// still counts as scrolled to the bottom
	ScrollToleranceRows int `toml:"scroll_tolerance_rows"`
	// SearchDebounceMs delays search execution while typing
	SearchDebounceMs int `toml:"search_debounce_ms"`
	// RetentionDays is how long soft-deleted conversations are kept
	RetentionDays int `toml:"retention_days"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version:      "1.0.0",
		DefaultModel: "",

		Backend: BackendConfig{
			URL:          "http://localhost:8791",
			TimeoutSecs:  30,
			HistoryLimit: 100,
		},

		UI: UIConfig{
			Theme:         "dark",
			SidebarWidth:  32,
			ShowCost:      true,
			ShowTokens:    true,
			Notifications: true,
		},

		Tuning: TuningConfig{
			ScrollToleranceRows: 50,
			SearchDebounceMs:    300,
			RetentionDays:       30,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the skein configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".skein"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads configuration from the config file, falling back to
// defaults when the file is absent. Environment overrides are applied
// last.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the configuration to a specific TOML file.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# skein configuration file")
	fmt.Fprintln(file, "# Generated by skein - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// DEFAULTS AND VALIDATION
// =============================================================================

// SetDefaults fills in any missing or zero-value fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Backend.URL == "" {
		c.Backend.URL = defaults.Backend.URL
	}
	if c.Backend.TimeoutSecs == 0 {
		c.Backend.TimeoutSecs = defaults.Backend.TimeoutSecs
	}
	if c.Backend.HistoryLimit == 0 {
		c.Backend.HistoryLimit = defaults.Backend.HistoryLimit
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.UI.SidebarWidth == 0 {
		c.UI.SidebarWidth = defaults.UI.SidebarWidth
	}
	if c.Tuning.ScrollToleranceRows == 0 {
		c.Tuning.ScrollToleranceRows = defaults.Tuning.ScrollToleranceRows
	}
	if c.Tuning.SearchDebounceMs == 0 {
		c.Tuning.SearchDebounceMs = defaults.Tuning.SearchDebounceMs
	}
	if c.Tuning.RetentionDays == 0 {
		c.Tuning.RetentionDays = defaults.Tuning.RetentionDays
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Backend.URL != "" {
		if _, err := url.Parse(c.Backend.URL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "backend.url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		}
	}
	if c.Backend.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "backend.timeout_secs",
			Message: "must be non-negative",
		})
	}
	if c.Backend.HistoryLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "backend.history_limit",
			Message: "must be non-negative",
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}
	if c.UI.SidebarWidth < 16 || c.UI.SidebarWidth > 120 {
		errs = append(errs, ValidationError{
			Field:   "ui.sidebar_width",
			Message: fmt.Sprintf("sidebar_width must be 16-120, got %d", c.UI.SidebarWidth),
		})
	}

	if c.Tuning.ScrollToleranceRows < 0 {
		errs = append(errs, ValidationError{
			Field:   "tuning.scroll_tolerance_rows",
			Message: "must be non-negative",
		})
	}
	if c.Tuning.SearchDebounceMs < 0 || c.Tuning.SearchDebounceMs > 5000 {
		errs = append(errs, ValidationError{
			Field:   "tuning.search_debounce_ms",
			Message: fmt.Sprintf("search_debounce_ms must be 0-5000, got %d", c.Tuning.SearchDebounceMs),
		})
	}
	if c.Tuning.RetentionDays < 1 || c.Tuning.RetentionDays > 365 {
		errs = append(errs, ValidationError{
			Field:   "tuning.retention_days",
			Message: fmt.Sprintf("retention_days must be 1-365, got %d", c.Tuning.RetentionDays),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - SKEIN_BACKEND_URL: overrides backend.url
//   - SKEIN_MODEL: overrides default_model
//   - SKEIN_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("SKEIN_BACKEND_URL"); u != "" {
		c.Backend.URL = u
	}
	if m := os.Getenv("SKEIN_MODEL"); m != "" {
		c.DefaultModel = m
	}
	if t := os.Getenv("SKEIN_THEME"); t != "" {
		c.UI.Theme = t
	}
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance. Loads configuration
// on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
