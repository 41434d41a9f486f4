// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/agentlz/agentlz-tui/internal/ui/styles"
)

// =============================================================================
// CHAT VIEWPORT COMPONENT - Scrollable transcript with a history hint line
// =============================================================================

// HistoryHint describes the older-history state shown above the transcript.
type HistoryHint int

const (
	HintNone HistoryHint = iota
	HintMore
	HintLoading
	HintStart
)

// ChatViewport is the scrollable transcript area. It satisfies
// reconcile.Viewport so an anchor can keep it positioned across changes.
type ChatViewport struct {
	viewport viewport.Model
	width    int
	height   int
	theme    *styles.Theme
	hint     HistoryHint
}

// NewChatViewport creates a new ChatViewport
func NewChatViewport(theme *styles.Theme) *ChatViewport {
	vp := viewport.New(80, 19)
	vp.Style = lipgloss.NewStyle()

	return &ChatViewport{
		viewport: vp,
		width:    80,
		height:   20,
		theme:    theme,
	}
}

// SetSize updates the viewport dimensions. One line is kept for the
// history hint.
func (cv *ChatViewport) SetSize(width, height int) {
	if height < 2 {
		height = 2
	}
	cv.width = width
	cv.height = height
	cv.viewport.Width = width
	cv.viewport.Height = height - 1
}

// Width returns the content width.
func (cv *ChatViewport) Width() int {
	return cv.width
}

// SetContent replaces the rendered transcript. The offset is clamped but
// otherwise left for the caller to position.
func (cv *ChatViewport) SetContent(content string) {
	offset := cv.viewport.YOffset
	cv.viewport.SetContent(content)
	cv.viewport.SetYOffset(offset)
}

// SetHint sets the older-history hint.
func (cv *ChatViewport) SetHint(hint HistoryHint) {
	cv.hint = hint
}

// =============================================================================
// POSITION (reconcile.Viewport)
// =============================================================================

// TotalLines returns the height of the rendered content.
func (cv *ChatViewport) TotalLines() int {
	return cv.viewport.TotalLineCount()
}

// YOffset returns the first visible line.
func (cv *ChatViewport) YOffset() int {
	return cv.viewport.YOffset
}

// SetYOffset scrolls to offset, clamped to the content.
func (cv *ChatViewport) SetYOffset(offset int) {
	cv.viewport.SetYOffset(offset)
}

// GotoBottom scrolls to the last line.
func (cv *ChatViewport) GotoBottom() {
	cv.viewport.GotoBottom()
}

// GotoTop scrolls to the first line.
func (cv *ChatViewport) GotoTop() {
	cv.viewport.GotoTop()
}

// ScrollUp scrolls up by the specified number of lines
func (cv *ChatViewport) ScrollUp(lines int) {
	cv.viewport.LineUp(lines)
}

// ScrollDown scrolls down by the specified number of lines
func (cv *ChatViewport) ScrollDown(lines int) {
	cv.viewport.LineDown(lines)
}

// PageUp scrolls up by one page
func (cv *ChatViewport) PageUp() {
	cv.viewport.ViewUp()
}

// PageDown scrolls down by one page
func (cv *ChatViewport) PageDown() {
	cv.viewport.ViewDown()
}

// AtTop returns true if the viewport is at the top
func (cv *ChatViewport) AtTop() bool {
	return cv.viewport.AtTop()
}

// AtBottom returns true if the viewport is at the bottom
func (cv *ChatViewport) AtBottom() bool {
	return cv.viewport.AtBottom()
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the hint line above the visible transcript.
func (cv *ChatViewport) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, cv.renderHint(), cv.viewport.View())
}

func (cv *ChatViewport) renderHint() string {
	var text string
	switch cv.hint {
	case HintMore:
		text = "^ scroll up for older messages ^"
	case HintLoading:
		text = "loading older messages..."
	case HintStart:
		text = "start of conversation"
	}
	if !cv.AtBottom() {
		pos := fmt.Sprintf("[%d/%d]", cv.YOffset()+1, maxInt(1, cv.TotalLines()-cv.viewport.Height+1))
		if text != "" {
			text += "  "
		}
		text += pos
	}
	return cv.theme.ScrollHint.Width(cv.width).Render(text)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
