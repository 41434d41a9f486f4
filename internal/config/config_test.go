// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 25, cfg.History.PerPage)
	assert.Equal(t, 15, cfg.History.RecordsPerPage)
	assert.Equal(t, 15*time.Second, cfg.Timeout())
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[api]
base_url = "https://admin.example.com/api"
timeout_secs = 30

[identity]
token = "tok"
tenant_id = "t1"

[history]
per_page = 10
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "https://admin.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 30, cfg.API.TimeoutSecs)
	assert.Equal(t, "/agent/chat", cfg.API.ChatPath, "unset keys keep defaults")
	assert.Equal(t, "tok", cfg.Identity.Token)
	assert.Equal(t, 10, cfg.History.PerPage)
	assert.Equal(t, 15, cfg.History.RecordsPerPage)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "token file is tightened")
}

func TestLoadFromPath_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromPath(writeConfig(t, dir, "[api\n"))
	assert.Error(t, err)

	_, err = LoadFromPath(writeConfig(t, dir, "[ui]\ntheme = \"neon\"\n"))
	var verrs ValidateErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "ui.theme", verrs[0].Field)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("AGENTLZ_BASE_URL", "http://127.0.0.1:9000")
	t.Setenv("AGENTLZ_TOKEN", "env-token")
	t.Setenv("AGENTLZ_TENANT", "acme")
	t.Setenv("AGENTLZ_AGENT_ID", "12")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "http://127.0.0.1:9000", cfg.API.BaseURL)
	assert.Equal(t, "env-token", cfg.Identity.Token)
	assert.Equal(t, "acme", cfg.Identity.TenantID)
	assert.Equal(t, "12", cfg.Identity.AgentID)
}

func TestReadFile_IgnoresEnvironment(t *testing.T) {
	t.Setenv("AGENTLZ_TOKEN", "env-token")
	dir := t.TempDir()

	cfg, err := ReadFile(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = ReadFile(writeConfig(t, dir, "[ui]\ntheme = \"neon\"\n"))
	require.NoError(t, err, "no validation")
	assert.Equal(t, "neon", cfg.UI.Theme)
	assert.Empty(t, cfg.Identity.Token)
}

func TestLoad_WithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().API, cfg.API)
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"relative base url", func(c *Config) { c.API.BaseURL = "admin/api" }, "api.base_url"},
		{"ftp base url", func(c *Config) { c.API.BaseURL = "ftp://host/api" }, "api.base_url"},
		{"path without slash", func(c *Config) { c.API.ChatPath = "agent/chat" }, "api.chat_path"},
		{"zero timeout", func(c *Config) { c.API.TimeoutSecs = 0 }, "api.timeout_secs"},
		{"huge page", func(c *Config) { c.History.PerPage = 1000 }, "history.per_page"},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, tc.field, verrs[0].Field)
		})
	}
}

// =============================================================================
// GET/SET TESTS
// =============================================================================

func TestGetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("api.base_url")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api", v)

	require.NoError(t, cfg.Set("history.per_page", "40"))
	assert.Equal(t, 40, cfg.History.PerPage)

	require.NoError(t, cfg.Set("ui.markdown", "false"))
	assert.False(t, cfg.UI.Markdown)

	_, err = cfg.Get("api.nope")
	assert.Error(t, err)
	_, err = cfg.Get("version.x")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("history.per_page", "many"))
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "version")
	assert.Contains(t, keys, "api.base_url")
	assert.Contains(t, keys, "identity.token")
	assert.Contains(t, keys, "log.level")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestString_RedactsToken(t *testing.T) {
	cfg := Default()
	cfg.Identity.Token = "super-secret"

	out := cfg.String()
	assert.NotContains(t, out, "super-secret")
	assert.Contains(t, out, "[REDACTED]")
	assert.Equal(t, "super-secret", cfg.Identity.Token, "the original is untouched")
}

// =============================================================================
// SAVE AND WATCH TESTS
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Identity.Token = "tok"
	cfg.History.PerPage = 7

	require.NoError(t, SaveTOML(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# agentlz configuration file"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "[identity]\ntoken = \"old\"\n")

	tokens := make(chan string, 4)
	w, err := Watch(path, func(cfg *Config, err error) {
		if err == nil {
			tokens <- cfg.Identity.Token
		}
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	cfg.Identity.Token = "rotated"
	require.NoError(t, SaveTOML(cfg, path))

	select {
	case tok := <-tokens:
		assert.Equal(t, "rotated", tok)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not picked up")
	}
}
