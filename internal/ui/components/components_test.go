// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlz/agentlz-tui/internal/model"
	"github.com/agentlz/agentlz-tui/internal/reconcile"
	"github.com/agentlz/agentlz-tui/internal/ui/styles"
)

func testTheme() *styles.Theme {
	return styles.NewTheme(styles.ModeDark)
}

func lines(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(out, "\n")
}

// =============================================================================
// CHAT VIEWPORT
// =============================================================================

var _ reconcile.Viewport = (*ChatViewport)(nil)

func TestChatViewport_Position(t *testing.T) {
	vp := NewChatViewport(testTheme())
	vp.SetSize(40, 11)
	vp.SetContent(lines(50))

	assert.Equal(t, 50, vp.TotalLines())
	assert.True(t, vp.AtTop())

	vp.GotoBottom()
	assert.Equal(t, 40, vp.YOffset())
	assert.True(t, vp.AtBottom())

	vp.ScrollUp(5)
	assert.Equal(t, 35, vp.YOffset())

	vp.SetYOffset(1000)
	assert.Equal(t, 40, vp.YOffset(), "offset is clamped to the content")
}

func TestChatViewport_SetContentKeepsOffset(t *testing.T) {
	vp := NewChatViewport(testTheme())
	vp.SetSize(40, 11)
	vp.SetContent(lines(50))
	vp.SetYOffset(12)

	vp.SetContent(lines(80))
	assert.Equal(t, 12, vp.YOffset())

	vp.SetContent(lines(15))
	assert.Equal(t, 5, vp.YOffset(), "a shorter transcript clamps the offset")
}

func TestChatViewport_AnchorKeepsPrependedViewStill(t *testing.T) {
	vp := NewChatViewport(testTheme())
	vp.SetSize(40, 11)
	vp.SetContent(lines(30))
	vp.GotoTop()

	anchor := reconcile.NewAnchor(vp)
	anchor.Apply(model.ChangePrepend, func() { vp.SetContent(lines(55)) })
	anchor.EndCycle()

	assert.Equal(t, 25, vp.YOffset())
}

func TestChatViewport_Hint(t *testing.T) {
	vp := NewChatViewport(testTheme())
	vp.SetSize(60, 6)
	vp.SetContent(lines(3))

	vp.SetHint(HintMore)
	assert.Contains(t, ansi.Strip(vp.View()), "scroll up for older messages")

	vp.SetHint(HintLoading)
	assert.Contains(t, ansi.Strip(vp.View()), "loading older messages")

	vp.SetHint(HintStart)
	assert.Contains(t, ansi.Strip(vp.View()), "start of conversation")

	vp.SetContent(lines(40))
	vp.GotoTop()
	assert.Contains(t, ansi.Strip(vp.View()), "[1/36]")
}

// =============================================================================
// MESSAGE RENDERER
// =============================================================================

func TestMessageRenderer_Empty(t *testing.T) {
	r := NewMessageRenderer(testTheme(), false)
	assert.Contains(t, ansi.Strip(r.Render(nil, "")), "No messages yet")
}

func TestMessageRenderer_RolesAndCursor(t *testing.T) {
	r := NewMessageRenderer(testTheme(), false)
	r.SetWidth(60)
	r.SetAssistantName("Ops Bot")

	msgs := []model.Message{
		{ID: "u1", Role: model.RoleUser, Content: "status of the cluster?"},
		{ID: "a1", Role: model.RoleAssistant, Content: "all green"},
	}

	out := ansi.Strip(r.Render(msgs, "a1"))
	assert.Contains(t, out, "you")
	assert.Contains(t, out, "status of the cluster?")
	assert.Contains(t, out, "Ops Bot")
	assert.Contains(t, out, "all green"+StreamingCursor)

	out = ansi.Strip(r.Render(msgs, ""))
	assert.NotContains(t, out, StreamingCursor)
}

func TestMessageRenderer_EmptyAssistant(t *testing.T) {
	r := NewMessageRenderer(testTheme(), false)
	msg := model.Message{ID: "a1", Role: model.RoleAssistant}

	assert.Contains(t, ansi.Strip(r.RenderMessage(msg, true)), "thinking")
	assert.Contains(t, ansi.Strip(r.RenderMessage(msg, false)), "(no reply)")
}

func TestMessageRenderer_CacheFollowsContent(t *testing.T) {
	r := NewMessageRenderer(testTheme(), false)
	msgs := []model.Message{{ID: "a1", Role: model.RoleAssistant, Content: "hel"}}

	r.Render(msgs, "a1")
	msgs[0].Content = "hello"
	out := ansi.Strip(r.Render(msgs, "a1"))
	assert.Contains(t, out, "hello")

	r.Render(nil, "")
	assert.Empty(t, r.cache, "messages no longer shown are dropped from the cache")
}

func TestMessageRenderer_Markdown(t *testing.T) {
	r := NewMessageRenderer(testTheme(), true)
	r.SetWidth(60)
	msg := model.Message{ID: "a1", Role: model.RoleAssistant, Content: "# Title\n\n- one\n- two"}

	out := ansi.Strip(r.RenderMessage(msg, false))
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "one")
	assert.NotContains(t, out, "- one")
}

// =============================================================================
// STATUS BAR
// =============================================================================

func TestStatusBar_View(t *testing.T) {
	sb := NewStatusBar(testTheme())
	sb.SetWidth(100)
	sb.Status = StatusStreaming
	sb.Agent = "Ops Bot"
	sb.Record = "42"
	sb.Loaded = 10
	sb.Total = 30
	sb.Shortcut = "esc stop"

	out := ansi.Strip(sb.View())
	assert.Contains(t, out, "Streaming")
	assert.Contains(t, out, "Ops Bot")
	assert.Contains(t, out, "#42")
	assert.Contains(t, out, "10/30 turns")
	assert.Contains(t, out, "esc stop")

	sb.Error = "connection refused"
	out = ansi.Strip(sb.View())
	assert.Contains(t, out, "connection refused")
	assert.NotContains(t, out, "esc stop")
}

func TestStatusBar_Narrow(t *testing.T) {
	sb := NewStatusBar(testTheme())
	sb.SetWidth(20)
	sb.Agent = "a rather long agent name"
	sb.Shortcut = "ctrl+c quit"

	out := ansi.Strip(sb.View())
	assert.Contains(t, out, "Ready")
	assert.NotContains(t, out, "ctrl+c quit")
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "Ready", StatusIdle.String())
	assert.Equal(t, "Streaming", StatusStreaming.String())
	assert.Equal(t, "Loading", StatusLoading.String())
	assert.Equal(t, "Unknown", Status(99).String())
}

// =============================================================================
// SPINNER
// =============================================================================

func TestSpinner_Lifecycle(t *testing.T) {
	s := NewSpinner("streaming")
	assert.Empty(t, s.View())

	require.NotNil(t, s.Start())
	assert.Nil(t, s.Start(), "starting twice does not schedule a second tick")
	assert.Contains(t, ansi.Strip(s.View()), "streaming")

	s.Stop()
	assert.False(t, s.IsActive())
	_, cmd := s.Update(nil)
	assert.Nil(t, cmd)
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0s", formatElapsed(0))
	assert.Equal(t, "59s", formatElapsed(59e9))
	assert.Equal(t, "2m 5s", formatElapsed(125e9))
}

// =============================================================================
// PICKER
// =============================================================================

func pickerItems(n int) []PickerItem {
	items := make([]PickerItem, n)
	for i := range items {
		items[i] = PickerItem{ID: fmt.Sprint(i + 1), Title: fmt.Sprintf("record %d", i+1)}
	}
	return items
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestPicker_SelectAndClose(t *testing.T) {
	p := NewPicker(testTheme(), "History", "search")
	p.Open()
	p.SetItems(pickerItems(3), 3, false, true)

	ev, _ := p.Update(keyMsg("down"))
	assert.Equal(t, PickerNone, ev)
	ev, _ = p.Update(keyMsg("enter"))
	assert.Equal(t, PickerSelect, ev)

	item, ok := p.Selected()
	require.True(t, ok)
	assert.Equal(t, "2", item.ID)

	ev, _ = p.Update(keyMsg("esc"))
	assert.Equal(t, PickerClose, ev)
}

func TestPicker_ChangedQuerySearches(t *testing.T) {
	p := NewPicker(testTheme(), "History", "search")
	p.Open()
	p.SetItems(pickerItems(3), 3, false, true)

	for _, r := range "deploy" {
		p.Update(keyMsg(string(r)))
	}
	assert.Equal(t, "deploy", p.Query())

	ev, _ := p.Update(keyMsg("enter"))
	assert.Equal(t, PickerSearch, ev)
	assert.True(t, p.Loading())

	p.SetItems(pickerItems(1), 1, false, true)
	ev, _ = p.Update(keyMsg("enter"))
	assert.Equal(t, PickerSelect, ev, "an unchanged query selects")
}

func TestPicker_MoreAtLastRow(t *testing.T) {
	p := NewPicker(testTheme(), "History", "search")
	p.SetItems(pickerItems(2), 5, true, true)

	ev, _ := p.Update(keyMsg("down"))
	assert.Equal(t, PickerMore, ev)

	ev, _ = p.Update(keyMsg("down"))
	assert.Equal(t, PickerNone, ev, "no second request while loading")

	p.SetItems(pickerItems(5), 5, false, false)
	item, _ := p.Selected()
	assert.Equal(t, "2", item.ID, "appending keeps the cursor")
}

func TestPicker_CursorStartsOnCurrent(t *testing.T) {
	p := NewPicker(testTheme(), "Agents", "filter")
	items := pickerItems(4)
	items[2].Current = true
	p.SetItems(items, 4, false, true)

	item, ok := p.Selected()
	require.True(t, ok)
	assert.Equal(t, "3", item.ID)
}

func TestPicker_View(t *testing.T) {
	p := NewPicker(testTheme(), "History", "search")
	p.SetSize(50, 12)
	p.SetItems([]PickerItem{{ID: "1", Title: "a very long conversation title that will not fit the drawer", Detail: "Jan 2"}}, 1, false, true)

	out := ansi.Strip(p.View())
	assert.Contains(t, out, "History")
	assert.Contains(t, out, "Jan 2")
	assert.Contains(t, out, "...")

	p.SetError("request failed")
	assert.Contains(t, ansi.Strip(p.View()), "request failed")

	p.SetItems(nil, 0, false, true)
	assert.Contains(t, ansi.Strip(p.View()), "Nothing found.")
}
