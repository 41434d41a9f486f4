// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/agentlz/agentlz-tui/internal/model"
	"github.com/agentlz/agentlz-tui/internal/ui/styles"
	"github.com/agentlz/agentlz-tui/internal/util"
)

// StreamingCursor is appended to the message receiving deltas.
const StreamingCursor = "▍"

// =============================================================================
// MESSAGE RENDERER
// =============================================================================

// MessageRenderer turns transcript snapshots into viewport content.
// Assistant messages are rendered as markdown through glamour. Finished
// messages are cached by id, so a streaming delta only re-renders the
// message it targets.
type MessageRenderer struct {
	theme          *styles.Theme
	width          int
	markdown       bool
	showTimestamps bool
	assistantName  string

	md    *glamour.TermRenderer
	cache map[string]renderedMessage
}

type renderedMessage struct {
	content string
	active  bool
	out     string
}

// NewMessageRenderer creates a renderer. markdown enables glamour for
// assistant messages.
func NewMessageRenderer(theme *styles.Theme, markdown bool) *MessageRenderer {
	return &MessageRenderer{
		theme:    theme,
		width:    80,
		markdown: markdown,
		cache:    make(map[string]renderedMessage),
	}
}

// SetWidth sets the content width. A change drops every cached render.
func (r *MessageRenderer) SetWidth(width int) {
	if width == r.width {
		return
	}
	r.width = width
	r.md = nil
	r.cache = make(map[string]renderedMessage)
}

// SetShowTimestamps toggles the time shown next to each role label.
func (r *MessageRenderer) SetShowTimestamps(show bool) {
	if show == r.showTimestamps {
		return
	}
	r.showTimestamps = show
	r.cache = make(map[string]renderedMessage)
}

// SetAssistantName sets the label of assistant messages, usually the agent
// name.
func (r *MessageRenderer) SetAssistantName(name string) {
	if name == r.assistantName {
		return
	}
	r.assistantName = name
	r.cache = make(map[string]renderedMessage)
}

// Render renders msgs in order. activeID names the message receiving
// deltas, if any.
func (r *MessageRenderer) Render(msgs []model.Message, activeID string) string {
	if len(msgs) == 0 {
		return r.theme.Placeholder.Render("No messages yet. Type below to start a conversation.")
	}

	live := make(map[string]struct{}, len(msgs))
	blocks := make([]string, 0, len(msgs))
	for _, m := range msgs {
		live[m.ID] = struct{}{}
		blocks = append(blocks, r.renderCached(m, m.ID == activeID))
	}

	for id := range r.cache {
		if _, ok := live[id]; !ok {
			delete(r.cache, id)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func (r *MessageRenderer) renderCached(m model.Message, active bool) string {
	if c, ok := r.cache[m.ID]; ok && c.content == m.Content && c.active == active {
		return c.out
	}
	out := r.RenderMessage(m, active)
	r.cache[m.ID] = renderedMessage{content: m.Content, active: active, out: out}
	return out
}

// RenderMessage renders one message with its role header.
func (r *MessageRenderer) RenderMessage(m model.Message, active bool) string {
	header := r.renderHeader(m)
	bodyWidth := r.width - 2
	if bodyWidth < 10 {
		bodyWidth = 10
	}

	var body string
	switch m.Role {
	case model.RoleUser:
		body = r.theme.UserBody.Render(util.WrapWidth(m.Content, bodyWidth))
	case model.RoleSystem:
		body = r.theme.SystemBody.Render(util.WrapWidth(m.Content, bodyWidth))
	default:
		body = r.theme.AssistantBody.Render(r.renderAssistant(m, active, bodyWidth))
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

func (r *MessageRenderer) renderHeader(m model.Message) string {
	var label string
	switch m.Role {
	case model.RoleUser:
		label = r.theme.UserLabel.Render("you")
	case model.RoleSystem:
		label = r.theme.Timestamp.Render(m.Role.DisplayName())
	default:
		name := r.assistantName
		if name == "" {
			name = m.Role.DisplayName()
		}
		label = r.theme.AssistantLabel.Render(name)
	}
	if r.showTimestamps && m.CreatedAt > 0 {
		label += " " + r.theme.Timestamp.Render(formatTime(m.Time()))
	}
	return label
}

func (r *MessageRenderer) renderAssistant(m model.Message, active bool, width int) string {
	cursor := ""
	if active {
		cursor = r.theme.Cursor.Render(StreamingCursor)
	}

	if m.Content == "" {
		if active {
			return r.theme.Placeholder.Render("thinking ") + cursor
		}
		return r.theme.Placeholder.Render("(no reply)")
	}

	text := util.WrapWidth(m.Content, width)
	if r.markdown {
		if rendered, ok := r.renderMarkdown(m.Content, width); ok {
			text = rendered
		}
	}
	return text + cursor
}

// renderMarkdown renders content with glamour. It reports false when the
// renderer is unavailable so callers fall back to plain text.
func (r *MessageRenderer) renderMarkdown(content string, width int) (string, bool) {
	if r.md == nil {
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.theme.GlamourStyle()),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			r.markdown = false
			return "", false
		}
		r.md = md
	}

	out, err := r.md.Render(content)
	if err != nil {
		return "", false
	}
	return strings.Trim(out, "\n"), true
}

// formatTime formats a message time, adding the date for other days.
func formatTime(t time.Time) string {
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("3:04 PM")
	}
	return t.Format("Jan 2 3:04 PM")
}
