// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package cli implements the agentlz command line: argument parsing, the
config command, exit codes, and the line-mode chat used when no full
terminal is available.

# Commands

	agentlz              start the TUI, or line mode when a stream is redirected
	agentlz tui          start the TUI; exit code 2 without a terminal
	agentlz chat         line-mode chat
	agentlz config ...   show, path, keys, get KEY, set KEY VALUE
	agentlz version      version information

# Line Mode

The REPL drives the same session.Controller as the TUI. Replies stream to
stdout as they arrive; on a terminal with markdown enabled the finished
reply is rendered through glamour instead. Ctrl+C stops a streaming reply
and leaves the partial text in place.

# Exit Codes

	0  success
	1  general error
	2  usage error
	3  configuration error
	4  authentication error
	5  network error
	8  timeout
*/
package cli
