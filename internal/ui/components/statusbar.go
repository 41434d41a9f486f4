// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/agentlz/agentlz-tui/internal/ui/styles"
	"github.com/agentlz/agentlz-tui/internal/util"
)

// =============================================================================
// STATUS BAR COMPONENT
// =============================================================================

// Status represents the current session status
type Status int

const (
	StatusIdle Status = iota
	StatusStreaming
	StatusLoading
)

// String returns the display string for the status
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Ready"
	case StatusStreaming:
		return "Streaming"
	case StatusLoading:
		return "Loading"
	default:
		return "Unknown"
	}
}

// Icon returns a shape for the status so it reads without color.
func (s Status) Icon() string {
	switch s {
	case StatusIdle:
		return styles.StatusIndicators.Success
	case StatusStreaming:
		return "~"
	case StatusLoading:
		return styles.StatusIndicators.Pending
	default:
		return "?"
	}
}

// StatusBar is the single line under the input.
type StatusBar struct {
	Status   Status
	Agent    string
	Record   string
	Loaded   int
	Total    int
	Spinner  string
	Error    string
	Notice   string
	Shortcut string
	Width    int

	theme *styles.Theme
}

// NewStatusBar creates a new StatusBar component
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{Width: 80, theme: theme}
}

// SetWidth sets the available width.
func (s *StatusBar) SetWidth(width int) {
	s.Width = width
}

// View renders the status bar. An error replaces the shortcut hints; a
// notice is shown when there is no error.
func (s *StatusBar) View() string {
	left := []string{s.renderStatus()}
	if s.Agent != "" {
		left = append(left, s.Agent)
	}
	if s.Record != "" {
		left = append(left, "#"+s.Record)
	}
	if s.Total > 0 {
		left = append(left, fmt.Sprintf("%d/%d turns", s.Loaded, s.Total))
	}
	leftText := strings.Join(left, " | ")

	var right string
	switch {
	case s.Error != "":
		right = s.theme.ErrorText.Render(styles.StatusIndicators.Error + " " + s.Error)
	case s.Notice != "":
		right = s.theme.Notice.Render(s.Notice)
	case s.Spinner != "":
		right = s.Spinner
	default:
		right = s.theme.StatusHint.Render(s.Shortcut)
	}

	inner := s.Width - 2
	gap := inner - lipgloss.Width(leftText) - lipgloss.Width(right)
	if gap < 1 {
		// Narrow terminals keep the status and as much of the rest as fits.
		room := inner - lipgloss.Width(leftText) - 1
		if room < 0 {
			leftText = util.TruncateWidth(s.Status.Icon()+" "+s.Status.String(), inner)
			room = 0
		}
		if lipgloss.Width(right) > room {
			right = ""
		}
		gap = inner - lipgloss.Width(leftText) - lipgloss.Width(right)
		if gap < 0 {
			gap = 0
		}
	}
	return s.theme.StatusBar.Width(s.Width).Render(leftText + strings.Repeat(" ", gap) + right)
}

func (s *StatusBar) renderStatus() string {
	text := s.Status.Icon() + " " + s.Status.String()
	switch s.Status {
	case StatusStreaming:
		return s.theme.StatusStreaming.Render(text)
	case StatusLoading:
		return s.theme.StatusLoading.Render(text)
	default:
		return s.theme.StatusIdle.Render(text)
	}
}
