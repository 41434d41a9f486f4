// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for agentlz.
//
// Configuration file location:
//   - ~/.agentlz/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/agentlz/agentlz-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete agentlz configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// API holds backend endpoint settings.
	API APIConfig `toml:"api" json:"api"`

	// Identity holds the credentials and ids sent with every request.
	Identity IdentityConfig `toml:"identity" json:"identity"`

	// History holds paging settings.
	History HistoryConfig `toml:"history" json:"history"`

	// UI holds display settings.
	UI UIConfig `toml:"ui" json:"ui"`

	// Log holds logging settings.
	Log LogConfig `toml:"log" json:"log"`
}

// APIConfig contains backend endpoint configuration.
type APIConfig struct {
	// BaseURL is the admin backend root, e.g. "https://admin.example.com/api"
	BaseURL string `toml:"base_url" json:"base_url"`
	// ChatPath is the streaming chat endpoint path
	ChatPath string `toml:"chat_path" json:"chat_path"`
	// SessionsPath is the session history endpoint path
	SessionsPath string `toml:"sessions_path" json:"sessions_path"`
	// RecordsPath is the conversation record list endpoint path
	RecordsPath string `toml:"records_path" json:"records_path"`
	// AgentsPath is the accessible agents endpoint path
	AgentsPath string `toml:"agents_path" json:"agents_path"`
	// TimeoutSecs bounds every non-streaming request
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// RequestsPerSecond and Burst throttle outgoing requests
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst"`
}

// IdentityConfig contains credentials.
type IdentityConfig struct {
	// Token is the bearer token. Never printed.
	Token string `toml:"token" json:"token"`
	// TenantID is sent as X-Tenant-ID when set
	TenantID string `toml:"tenant_id" json:"tenant_id"`
	// UserID is sent as meta.user_id. Derived from the token when empty.
	UserID string `toml:"user_id" json:"user_id"`
	// AgentID preselects an agent on startup
	AgentID string `toml:"agent_id" json:"agent_id"`
}

// HistoryConfig contains paging configuration.
type HistoryConfig struct {
	// PerPage is the session history page size
	PerPage int `toml:"per_page" json:"per_page"`
	// RecordsPerPage is the page size of the record drawer
	RecordsPerPage int `toml:"records_per_page" json:"records_per_page"`
	// TopThreshold is how many lines from the top count as "at top"
	TopThreshold int `toml:"top_threshold" json:"top_threshold"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is "dark", "light" or "auto"
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders assistant replies as markdown
	Markdown bool `toml:"markdown" json:"markdown"`
	// ShowTimestamps prefixes messages with their time
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`
	// ExportDir is where exported conversations are written (empty = cwd)
	ExportDir string `toml:"export_dir" json:"export_dir"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Path is the log file (empty = ~/.agentlz/agentlz.log)
	Path string `toml:"path" json:"path"`
	// Level is "debug", "info", "warn" or "error"
	Level string `toml:"level" json:"level"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1",
		API: APIConfig{
			BaseURL:           "http://localhost:8080/api",
			ChatPath:          "/agent/chat",
			SessionsPath:      "/agent/chat/sessions",
			RecordsPath:       "/agent/chat/history",
			AgentsPath:        "/agents",
			TimeoutSecs:       15,
			RequestsPerSecond: 5,
			Burst:             5,
		},
		History: HistoryConfig{
			PerPage:        25,
			RecordsPerPage: 15,
			TopThreshold:   0,
		},
		UI: UIConfig{
			Theme:    "auto",
			Markdown: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Timeout returns the request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the agentlz configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".agentlz"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultLogPath returns the log file used when [log] path is empty.
func DefaultLogPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "agentlz.log"), nil
}

// ensureSecurePermissions tightens a config file to 0600 since it holds the
// bearer token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix permissions: %w", err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.agentlz/config.toml, falling back to
// defaults when the file does not exist. Environment overrides are applied
// last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return cfg, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ReadFile decodes path over the defaults without environment overrides or
// validation, so it can be edited and saved back as written. A missing file
// yields the defaults.
func ReadFile(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %v\n", path, undecoded)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# agentlz configuration file")
	fmt.Fprintln(&buf, "# Generated by agentlz - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.WriteFileAtomic(path, buf.Bytes(), util.PrivatePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

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

	if c.API.BaseURL == "" {
		errs = append(errs, ValidationError{Field: "api.base_url", Message: "must be set"})
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "api.base_url",
			Message: fmt.Sprintf("invalid URL '%s'", c.API.BaseURL),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{
			Field:   "api.base_url",
			Message: fmt.Sprintf("scheme must be http or https, got %s", u.Scheme),
		})
	}

	for field, path := range map[string]string{
		"api.chat_path":     c.API.ChatPath,
		"api.sessions_path": c.API.SessionsPath,
		"api.records_path":  c.API.RecordsPath,
		"api.agents_path":   c.API.AgentsPath,
	} {
		if path != "" && !strings.HasPrefix(path, "/") {
			errs = append(errs, ValidationError{Field: field, Message: "must start with /"})
		}
	}

	if c.API.TimeoutSecs < 1 || c.API.TimeoutSecs > 300 {
		errs = append(errs, ValidationError{
			Field:   "api.timeout_secs",
			Message: fmt.Sprintf("must be 1-300, got %d", c.API.TimeoutSecs),
		})
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{Field: "api.requests_per_second", Message: "cannot be negative"})
	}
	if c.API.Burst < 0 {
		errs = append(errs, ValidationError{Field: "api.burst", Message: "cannot be negative"})
	}

	if c.History.PerPage < 1 || c.History.PerPage > 200 {
		errs = append(errs, ValidationError{
			Field:   "history.per_page",
			Message: fmt.Sprintf("must be 1-200, got %d", c.History.PerPage),
		})
	}
	if c.History.RecordsPerPage < 1 || c.History.RecordsPerPage > 200 {
		errs = append(errs, ValidationError{
			Field:   "history.records_per_page",
			Message: fmt.Sprintf("must be 1-200, got %d", c.History.RecordsPerPage),
		})
	}
	if c.History.TopThreshold < 0 {
		errs = append(errs, ValidationError{Field: "history.top_threshold", Message: "must be non-negative"})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero-value fields from Default.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	if c.API.BaseURL == "" {
		c.API.BaseURL = defaults.API.BaseURL
	}
	if c.API.ChatPath == "" {
		c.API.ChatPath = defaults.API.ChatPath
	}
	if c.API.SessionsPath == "" {
		c.API.SessionsPath = defaults.API.SessionsPath
	}
	if c.API.RecordsPath == "" {
		c.API.RecordsPath = defaults.API.RecordsPath
	}
	if c.API.AgentsPath == "" {
		c.API.AgentsPath = defaults.API.AgentsPath
	}
	if c.API.TimeoutSecs == 0 {
		c.API.TimeoutSecs = defaults.API.TimeoutSecs
	}

	if c.History.PerPage == 0 {
		c.History.PerPage = defaults.History.PerPage
	}
	if c.History.RecordsPerPage == 0 {
		c.History.RecordsPerPage = defaults.History.RecordsPerPage
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - AGENTLZ_BASE_URL: overrides api.base_url
//   - AGENTLZ_TOKEN: overrides identity.token
//   - AGENTLZ_TENANT: overrides identity.tenant_id
//   - AGENTLZ_USER_ID: overrides identity.user_id
//   - AGENTLZ_AGENT_ID: overrides identity.agent_id
//   - AGENTLZ_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("AGENTLZ_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("AGENTLZ_TOKEN"); v != "" {
		c.Identity.Token = v
	}
	if v := os.Getenv("AGENTLZ_TENANT"); v != "" {
		c.Identity.TenantID = v
	}
	if v := os.Getenv("AGENTLZ_USER_ID"); v != "" {
		c.Identity.UserID = v
	}
	if v := os.Getenv("AGENTLZ_AGENT_ID"); v != "" {
		c.Identity.AgentID = v
	}
	if v := os.Getenv("AGENTLZ_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "api.base_url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "history.per_page").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Keys returns every configuration key in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		section := f.Tag.Get("toml")
		if f.Type.Kind() != reflect.Struct {
			keys = append(keys, section)
			continue
		}
		for j := 0; j < f.Type.NumField(); j++ {
			keys = append(keys, section+"."+f.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// Clone returns a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Redacted returns a copy with the token masked.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	if safe.Identity.Token != "" {
		safe.Identity.Token = "[REDACTED]"
	}
	return safe
}

// String returns the config as indented JSON with the token redacted.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}
