// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for agentlz.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - APIConfig: Backend base URL, endpoint paths, timeout and rate limit
//   - IdentityConfig: Token, tenant, user and default agent
//   - Watcher: Hot reload of the config file
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (AGENTLZ_*)
//   - ~/.agentlz/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Reload on change:
//
//	w, err := config.Watch(path, func(cfg *config.Config, err error) {
//	    if err == nil {
//	        client.SetToken(cfg.Identity.Token)
//	    }
//	}, logger)
//	defer w.Close()
package config
