// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme modes accepted by NewTheme.
const (
	ModeAuto  = "auto"
	ModeDark  = "dark"
	ModeLight = "light"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER
	// ==========================================================================

	Header         lipgloss.Style
	HeaderTitle    lipgloss.Style
	HeaderSubtitle lipgloss.Style

	// ==========================================================================
	// TRANSCRIPT
	// ==========================================================================

	UserLabel      lipgloss.Style
	UserBody       lipgloss.Style
	AssistantLabel lipgloss.Style
	AssistantBody  lipgloss.Style
	SystemBody     lipgloss.Style
	Timestamp      lipgloss.Style
	Cursor         lipgloss.Style
	Placeholder    lipgloss.Style
	ScrollHint     lipgloss.Style

	// ==========================================================================
	// INPUT
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	// ==========================================================================
	// STATUS BAR
	// ==========================================================================

	StatusBar       lipgloss.Style
	StatusIdle      lipgloss.Style
	StatusStreaming lipgloss.Style
	StatusLoading   lipgloss.Style
	StatusHint      lipgloss.Style
	ErrorText       lipgloss.Style
	Notice          lipgloss.Style

	// ==========================================================================
	// DRAWERS (agent picker, record browser)
	// ==========================================================================

	Drawer         lipgloss.Style
	DrawerTitle    lipgloss.Style
	DrawerItem     lipgloss.Style
	DrawerSelected lipgloss.Style
	DrawerMeta     lipgloss.Style
	Muted          lipgloss.Style
}

// NewTheme creates a theme for mode ("auto", "dark" or "light"). In auto
// mode the background is detected from the terminal.
func NewTheme(mode string) *Theme {
	colorProfile := termenv.ColorProfile()

	var isDark bool
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeDark:
		isDark = true
		lipgloss.SetHasDarkBackground(true)
	case ModeLight:
		isDark = false
		lipgloss.SetHasDarkBackground(false)
	default:
		isDark = termenv.HasDarkBackground()
	}

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	// Header
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.HeaderSubtitle = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	// Transcript
	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.UserBody = lipgloss.NewStyle().
		Foreground(UserFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserBorder).
		PaddingLeft(1)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.AssistantBody = lipgloss.NewStyle().
		Foreground(AssistantFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(AssistantBorder).
		PaddingLeft(1)

	t.SystemBody = lipgloss.NewStyle().
		Foreground(SystemFg).
		Italic(true)

	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Cursor = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)

	t.Placeholder = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.ScrollHint = lipgloss.NewStyle().
		Foreground(TextMuted).
		Align(lipgloss.Center)

	// Input
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	// Status bar
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.StatusIdle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Emerald)

	t.StatusStreaming = lipgloss.NewStyle().
		Bold(true).
		Foreground(Amber)

	t.StatusLoading = lipgloss.NewStyle().
		Foreground(Cyan)

	t.StatusHint = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.ErrorText = lipgloss.NewStyle().
		Bold(true).
		Foreground(Rose)

	t.Notice = lipgloss.NewStyle().
		Foreground(Emerald)

	// Drawers
	t.Drawer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 1)

	t.DrawerTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple).
		MarginBottom(1)

	t.DrawerItem = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.DrawerSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary).
		Background(SelectionBg)

	t.DrawerMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Muted = lipgloss.NewStyle().
		Foreground(TextMuted)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GlamourStyle returns the glamour standard style matching the terminal.
func (t *Theme) GlamourStyle() string {
	if t.ColorProfile == termenv.Ascii {
		return "notty"
	}
	if t.IsDark {
		return "dark"
	}
	return "light"
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // >= 100 columns
)
