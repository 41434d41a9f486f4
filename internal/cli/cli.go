// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool
	ConfigPath string
	BaseURL    string
	Agent      string
	Theme      string

	// Record opens an existing conversation on start.
	Record int64

	// ForceTUI is set by an explicit "tui" command.
	ForceTUI bool

	// Command-specific
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw holds arguments not consumed by parsing.
	Raw []string
}

const usageText = `agentlz - terminal client for agent conversations

Usage:
  agentlz [flags]                  Start the TUI, or line mode when piped
  agentlz tui [flags]              Start the TUI; fails without a terminal
  agentlz chat [flags]             Line-mode chat for plain terminals
  agentlz config [show|path|keys]  Show configuration
  agentlz config get KEY           Print one setting
  agentlz config set KEY VALUE     Change one setting
  agentlz version                  Show version
  agentlz help                     Show this help

Flags:
  -c, --config PATH    Config file (default: ~/.agentlz/config.toml)
  --base-url URL       Backend base URL (overrides config)
  -a, --agent ID       Agent to talk to (overrides config)
  -r, --record ID      Open an existing conversation
  --theme MODE         auto, dark or light
  --json               JSON output for config and version
  -q, --quiet          Minimal output
  -v, --verbose        Debug logging

Environment:
  AGENTLZ_BASE_URL, AGENTLZ_TOKEN, AGENTLZ_TENANT, AGENTLZ_AGENT_ID
  override the matching config settings.

Chat commands (line mode):
  /help               Show commands
  /new                Start a new conversation
  /agents [filter]    List agents
  /agent N|ID         Switch agent
  /history [keyword]  List past conversations
  /more               Next page of past conversations
  /open N|ID          Open a past conversation
  /older              Load older messages of the open conversation
  /copy               Copy the last reply
  /export [md|json]   Write the conversation to a file
  /status             Show session status
  /quit               Exit
`

// Parse parses command-line arguments (without the program name).
func Parse(args []string) (Command, Args) {
	remaining, parsed := parseGlobalFlags(args)
	if len(remaining) == 0 {
		return CmdTUI, parsed
	}

	cmd := strings.ToLower(remaining[0])
	rest := remaining[1:]

	switch cmd {
	case "tui":
		parsed.Raw = rest
		parsed.ForceTUI = true
		return CmdTUI, parsed

	case "chat", "repl":
		parsed.Raw = rest
		return CmdChat, parsed

	case "config", "cfg":
		parseConfigArgs(&parsed, rest)
		return CmdConfig, parsed

	case "version", "--version":
		return CmdVersion, parsed

	case "help", "-h", "--help":
		return CmdHelp, parsed

	default:
		parsed.Raw = remaining
		return CmdHelp, parsed
	}
}

// parseGlobalFlags extracts global flags from args and returns the rest.
// Flags may appear before or after the command.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsed Args

	value := func(i *int, arg, name string) (string, bool) {
		if v, ok := strings.CutPrefix(arg, name+"="); ok {
			return v, true
		}
		if arg == name && *i+1 < len(args) {
			*i++
			return args[*i], true
		}
		return "", false
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsed.Quiet = true
			continue
		case "-v", "--verbose":
			parsed.Verbose = true
			continue
		case "--json":
			parsed.JSON = true
			continue
		}

		if v, ok := value(&i, arg, "--config"); ok {
			parsed.ConfigPath = v
		} else if v, ok := value(&i, arg, "-c"); ok {
			parsed.ConfigPath = v
		} else if v, ok := value(&i, arg, "--base-url"); ok {
			parsed.BaseURL = v
		} else if v, ok := value(&i, arg, "--agent"); ok {
			parsed.Agent = v
		} else if v, ok := value(&i, arg, "-a"); ok {
			parsed.Agent = v
		} else if v, ok := value(&i, arg, "--theme"); ok {
			parsed.Theme = v
		} else if v, ok := value(&i, arg, "--record"); ok {
			parsed.Record, _ = strconv.ParseInt(v, 10, 64)
		} else if v, ok := value(&i, arg, "-r"); ok {
			parsed.Record, _ = strconv.ParseInt(v, 10, 64)
		} else {
			remaining = append(remaining, arg)
		}
	}

	return remaining, parsed
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	args.Subcommand = "show"
	if len(remaining) > 0 {
		args.Subcommand = strings.ToLower(remaining[0])
	}
	if len(remaining) > 1 {
		args.ConfigKey = remaining[1]
	}
	if len(remaining) > 2 {
		args.ConfigVal = strings.Join(remaining[2:], " ")
	}
}

// =============================================================================
// HELP AND VERSION
// =============================================================================

// PrintUsage writes the usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// VersionData is the JSON form of the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer, asJSON bool) error {
	data := VersionData{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	if asJSON {
		return writeJSON(w, data)
	}
	_, err := fmt.Fprintf(w, "agentlz %s (commit %s, built %s, %s)\n",
		data.Version, data.GitCommit, data.BuildDate, data.GoVersion)
	return err
}
