// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles holds the color palette and lipgloss styles of the agentlz TUI.

Colors are lipgloss.AdaptiveColor values and follow the terminal background.
NewTheme detects the color profile with termenv; the [ui] theme setting can
force "dark" or "light" when detection guesses wrong:

	theme := styles.NewTheme(cfg.UI.Theme)
	title := theme.HeaderTitle.Render(agent.Label())
*/
package styles
