// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/agentlz/agentlz-tui/internal/ui/styles"
)

func init() {
	lipgloss.SetColorProfile(colorProfile(os.Getenv, term.IsTerminal(int(os.Stdout.Fd()))))
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// PromptStyle is the line-mode input prompt
	PromptStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	// TitleStyle is used for banners and headers
	TitleStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	// SuccessStyle is used for success messages and OK statuses
	SuccessStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald).
			Bold(true)

	// ErrorStyle is used for error messages and failures
	ErrorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	// WarningStyle is used for warnings and cancellations
	WarningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	// CommandStyle highlights slash commands in help output
	CommandStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)
)

// RenderSeparator renders a horizontal rule of the given width.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 60
	}
	return DimStyle.Render(strings.Repeat("-", width))
}
