// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TERMINAL
// =============================================================================

// Reply wrapping never goes below minReplyWidth columns.
const (
	fallbackWidth = 80
	minReplyWidth = 40
)

// Terminal describes the standard streams the client was started on.
type Terminal struct {
	// Interactive is true when stdin is a terminal, so prompts can use
	// line editing and Ctrl+C arrives as a key.
	Interactive bool

	// Styled is true when stdout is a terminal and can take colors,
	// Markdown rendering and the alternate screen.
	Styled bool

	// Width is the column count replies are wrapped to.
	Width int
}

// DetectTerminal inspects stdin and stdout.
func DetectTerminal() Terminal {
	t := Terminal{
		Interactive: term.IsTerminal(int(os.Stdin.Fd())),
		Styled:      term.IsTerminal(int(os.Stdout.Fd())),
		Width:       fallbackWidth,
	}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		t.Width = max(w, minReplyWidth)
	}
	return t
}

// CanRunTUI reports whether the full-screen UI can own the terminal.
func (t Terminal) CanRunTUI() bool {
	return t.Interactive && t.Styled
}

// TUIUnavailableError is returned by an explicit "agentlz tui" when one of
// the standard streams is redirected.
type TUIUnavailableError struct {
	Stdin  bool
	Stdout bool
}

func (e *TUIUnavailableError) Error() string {
	stream := "stdout"
	if !e.Stdin {
		stream = "stdin"
	}
	return "the TUI needs a terminal but " + stream + " is redirected; use \"agentlz chat\" for piped input"
}

// ChooseFrontEnd decides between the TUI and line-mode chat. The default
// command falls back to line mode without a terminal; "agentlz tui" fails
// instead.
func ChooseFrontEnd(cmd Command, args Args, t Terminal) (tui bool, err error) {
	if cmd == CmdChat {
		return false, nil
	}
	if t.CanRunTUI() {
		return true, nil
	}
	if args.ForceTUI {
		return false, &TUIUnavailableError{Stdin: t.Interactive, Stdout: t.Styled}
	}
	return false, nil
}

// =============================================================================
// COLORS
// =============================================================================

// colorProfile picks the lipgloss profile for line-mode output. NO_COLOR
// wins over FORCE_COLOR; otherwise colors follow stdout.
func colorProfile(getenv func(string) string, styled bool) termenv.Profile {
	switch {
	case getenv("NO_COLOR") != "":
		return termenv.Ascii
	case getenv("FORCE_COLOR") != "", styled:
		return termenv.ColorProfile()
	default:
		return termenv.Ascii
	}
}
