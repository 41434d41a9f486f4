// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/agentlz/agentlz-tui/internal/config"
)

// ResolveConfigPath returns the config file named by --config, or the
// default path.
func ResolveConfigPath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	return config.ConfigPath()
}

// LoadConfig loads the configuration for args and applies flag overrides.
func LoadConfig(args Args) (*config.Config, string, error) {
	path, err := ResolveConfigPath(args)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, path, err
	}
	if args.BaseURL != "" {
		cfg.API.BaseURL = args.BaseURL
	}
	if args.Agent != "" {
		cfg.Identity.AgentID = args.Agent
	}
	if args.Theme != "" {
		cfg.UI.Theme = args.Theme
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

// HandleConfig runs the config command.
func HandleConfig(w io.Writer, args Args) error {
	path, err := ResolveConfigPath(args)
	if err != nil {
		return err
	}

	switch args.Subcommand {
	case "", "show":
		cfg, _, err := LoadConfig(args)
		if err != nil {
			return err
		}
		return showConfig(w, cfg, args.JSON)

	case "path":
		_, err := fmt.Fprintln(w, path)
		return err

	case "keys":
		for _, k := range config.Keys() {
			fmt.Fprintln(w, k)
		}
		return nil

	case "get":
		if args.ConfigKey == "" {
			return usageErrorf("usage: agentlz config get KEY")
		}
		cfg, _, err := LoadConfig(args)
		if err != nil {
			return err
		}
		v, err := cfg.Redacted().Get(args.ConfigKey)
		if err != nil {
			return usageErrorf("%v", err)
		}
		if args.JSON {
			return writeJSON(w, map[string]any{args.ConfigKey: v})
		}
		_, err = fmt.Fprintln(w, v)
		return err

	case "set":
		if args.ConfigKey == "" || args.ConfigVal == "" {
			return usageErrorf("usage: agentlz config set KEY VALUE")
		}
		return setConfig(w, path, args.ConfigKey, args.ConfigVal)

	default:
		return usageErrorf("unknown config subcommand %q (show, path, keys, get, set)", args.Subcommand)
	}
}

func showConfig(w io.Writer, cfg *config.Config, asJSON bool) error {
	safe := cfg.Redacted()
	if asJSON {
		return writeJSON(w, safe)
	}
	for _, k := range config.Keys() {
		v, err := safe.Get(k)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s = %v\n", LabelStyle.Render(k), v)
	}
	return nil
}

// setConfig edits the file as written, so environment overrides are never
// persisted.
func setConfig(w io.Writer, path, key, value string) error {
	cfg, err := config.ReadFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return usageErrorf("%v", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s updated in %s\n", SuccessStyle.Render("[OK]"), key, path)
	return nil
}

// ExitOnError prints err and exits with its mapped code.
func ExitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
	os.Exit(GetExitCode(err))
}
