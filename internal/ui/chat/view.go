// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/agentlz/agentlz-tui/internal/session"
	"github.com/agentlz/agentlz-tui/internal/ui/components"
	"github.com/agentlz/agentlz-tui/internal/util"
)

// View renders the chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var body string
	switch m.drawer {
	case drawerRecords:
		body = m.placeDrawer(m.recordPicker)
	case drawerAgents:
		body = m.placeDrawer(m.agentPicker)
	default:
		m.viewport.SetHint(m.historyHint())
		body = m.viewport.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderInput(),
		m.renderStatus(),
	)
}

func (m Model) placeDrawer(p *components.Picker) string {
	return lipgloss.Place(m.width, m.height-5, lipgloss.Center, lipgloss.Center, p.View())
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("agentlz")
	subtitle := m.ctrl.Agent().Label()
	if rec := m.ctrl.RecordID(); rec.IsSet() {
		subtitle += " / conversation " + rec.String()
	} else {
		subtitle += " / new conversation"
	}
	room := m.width - lipgloss.Width(title) - 3
	if room < 0 {
		room = 0
	}
	subtitle = m.theme.HeaderSubtitle.Render(util.TruncateWidth(subtitle, room))
	return m.theme.Header.Width(m.width).Render(title + " " + subtitle)
}

func (m Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width - 2).Render(m.input.View())
}

func (m Model) renderStatus() string {
	st := m.ctrl.Status()

	m.status.Status = components.StatusIdle
	m.status.Spinner = ""
	m.status.Shortcut = helpLine(m.keys.ShortHelp())
	switch {
	case st.State == session.StateStreaming:
		m.status.Status = components.StatusStreaming
		m.status.Spinner = m.spinner.View()
		m.status.Shortcut = helpLine(m.keys.StreamingHelp())
	case st.State == session.StateLoading || m.loadingPage || st.History.InFlight:
		m.status.Status = components.StatusLoading
	}

	m.status.Agent = st.Agent.Label()
	m.status.Record = ""
	if st.Record.IsSet() {
		m.status.Record = st.Record.String()
	}
	m.status.Loaded = st.History.LoadedCount
	m.status.Total = st.History.Total
	m.status.Error = m.errText
	m.status.Notice = m.notice
	return m.status.View()
}

// historyHint describes older history for the line above the transcript.
func (m Model) historyHint() components.HistoryHint {
	st := m.ctrl.HistoryStatus()
	switch {
	case !st.Record.IsSet() || st.Page == 0:
		return components.HintNone
	case m.loadingPage || st.InFlight:
		return components.HintLoading
	case st.HasMore:
		return components.HintMore
	default:
		return components.HintStart
	}
}

// Error returns the message shown in the status bar, if any.
func (m Model) Error() string {
	return strings.TrimSpace(m.errText)
}
