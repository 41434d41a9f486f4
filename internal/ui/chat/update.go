// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strconv"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/agentlz/agentlz-tui/internal/export"
	"github.com/agentlz/agentlz-tui/internal/history"
	"github.com/agentlz/agentlz-tui/internal/model"
	"github.com/agentlz/agentlz-tui/internal/reconcile"
	"github.com/agentlz/agentlz-tui/internal/session"
	"github.com/agentlz/agentlz-tui/internal/ui/components"
)

const (
	noticeDuration = 3 * time.Second
	wheelLines     = 3
)

// Update handles all Bubble Tea messages for the chat screen.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case transcriptMsg:
		m.applyChanges(msg.changes)
		cmd := m.checkTop()
		return m, tea.Batch(m.queue.wait(), cmd)

	case turnDoneMsg:
		return m.handleTurnDone(msg)

	case historyLoadedMsg:
		return m.handleHistoryLoaded(msg)

	case recordsLoadedMsg:
		return m.handleRecordsLoaded(msg)

	case agentsLoadedMsg:
		return m.handleAgentsLoaded(msg)

	case copiedMsg:
		if msg.err != nil {
			m.errText = "copy failed: " + msg.err.Error()
			return m, nil
		}
		return m.showNotice("Copied last reply")

	case exportedMsg:
		if msg.err != nil {
			m.errText = "export failed: " + msg.err.Error()
			return m, nil
		}
		return m.showNotice("Exported to " + msg.path)

	case clearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		if m.drawer != drawerNone {
			return m.handleDrawerKey(msg)
		}
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.ready = true
	m.theme.SetSize(msg.Width, msg.Height)

	// Header, input box (three lines with its border) and status bar.
	vpHeight := msg.Height - 5
	m.viewport.SetSize(msg.Width, vpHeight)
	m.renderer.SetWidth(msg.Width - 2)
	m.input.Width = msg.Width - 6
	m.status.SetWidth(msg.Width)

	drawerWidth := msg.Width * 3 / 4
	if drawerWidth > 90 {
		drawerWidth = 90
	}
	m.recordPicker.SetSize(drawerWidth, vpHeight)
	m.agentPicker.SetSize(drawerWidth, vpHeight)

	m.anchor.Apply(model.ChangeDelta, m.rerender)
	m.anchor.EndCycle()
	cmd := m.checkTop()
	return m, cmd
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// applyChanges re-renders once for a batch and lets the anchor position
// the viewport for the strongest change in it.
func (m *Model) applyChanges(changes []model.Change) {
	if len(changes) == 0 {
		return
	}
	kind, grows := coalesce(changes)
	m.anchor.Apply(kind, m.rerender)
	if grows {
		m.anchor.Apply(model.ChangeDelta, nil)
	}
	m.anchor.EndCycle()
	if kind == model.ChangeReplace || kind == model.ChangeClear {
		m.lastAtTop = false
	}
}

// checkTop reports at-top transitions to the controller. Leaving the top is
// reported inline; arriving loads a page on a command.
func (m *Model) checkTop() tea.Cmd {
	if !m.ready || m.drawer != drawerNone {
		return nil
	}
	atTop := reconcile.AtTop(m.viewport, m.topThreshold)
	if atTop == m.lastAtTop {
		return nil
	}
	m.lastAtTop = atTop
	if !atTop {
		_, _ = m.ctrl.ScrollTop(m.ctx, false)
		return nil
	}

	st := m.ctrl.HistoryStatus()
	if !st.Record.IsSet() || !st.HasMore {
		// Keep the sentinel armed for when a page becomes available.
		_, _ = m.ctrl.ScrollTop(m.ctx, false)
		m.lastAtTop = false
		return nil
	}

	m.loadingPage = true
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		fired, err := ctrl.ScrollTop(ctx, true)
		return historyLoadedMsg{op: opLoadOlder, fired: fired, err: err}
	}
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.Streaming() {
			_ = m.ctrl.Stop()
		}
		m.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Stop):
		if m.Streaming() {
			if err := m.ctrl.Stop(); err != nil {
				m.errText = err.Error()
			}
			return m, nil
		}
		m.errText = ""
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.NewChat):
		m.ctrl.NewConversation()
		m.errText = ""
		return m.showNotice("New conversation")

	case key.Matches(msg, m.keys.History):
		return m.openRecords()

	case key.Matches(msg, m.keys.Agents):
		return m.openAgents()

	case key.Matches(msg, m.keys.Copy):
		return m, m.copyLastReply()

	case key.Matches(msg, m.keys.Export):
		return m, m.exportConversation()

	case key.Matches(msg, m.keys.Older):
		return m.loadOlder()

	case key.Matches(msg, m.keys.Up):
		m.viewport.ScrollUp(1)
		return m.afterScroll()
	case key.Matches(msg, m.keys.Down):
		m.viewport.ScrollDown(1)
		return m.afterScroll()
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.PageUp()
		return m.afterScroll()
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.PageDown()
		return m.afterScroll()
	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m.afterScroll()
	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m.afterScroll()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.drawer != drawerNone {
		return m, nil
	}
	switch msg.Type {
	case tea.MouseWheelUp:
		m.viewport.ScrollUp(wheelLines)
	case tea.MouseWheelDown:
		m.viewport.ScrollDown(wheelLines)
	default:
		return m, nil
	}
	return m.afterScroll()
}

// afterScroll pauses following while the reader is away from the bottom
// and checks for the top.
func (m Model) afterScroll() (tea.Model, tea.Cmd) {
	m.anchor.SetFollow(m.viewport.AtBottom())
	cmd := m.checkTop()
	return m, cmd
}

// =============================================================================
// SEND AND STOP
// =============================================================================

func (m Model) submit() (tea.Model, tea.Cmd) {
	switch m.ctrl.State() {
	case session.StateStreaming:
		m.errText = "wait for the reply or press esc to stop it"
		return m, nil
	case session.StateLoading:
		m.errText = "history is still loading"
		return m, nil
	}
	text := m.input.Value()
	turn, err := m.ctrl.Send(m.ctx, text)
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		return m, nil
	case errors.Is(err, session.ErrNoAgent):
		m.errText = "no agent selected, press ctrl+g to pick one"
		return m, nil
	case err != nil:
		m.errText = err.Error()
		return m, nil
	}

	m.input.Reset()
	m.errText = ""
	m.turn = turn
	m.anchor.SetFollow(true)
	m.spinner.SetMessage("streaming")
	tick := m.spinner.Start()
	return m, tea.Batch(tick, waitTurn(turn))
}

func waitTurn(t *session.Turn) tea.Cmd {
	return func() tea.Msg {
		return turnDoneMsg{turn: t, err: t.Wait()}
	}
}

func (m Model) handleTurnDone(msg turnDoneMsg) (tea.Model, tea.Cmd) {
	if msg.turn != m.turn {
		return m, nil
	}
	m.turn = nil
	m.spinner.Stop()
	if msg.err != nil && !errors.Is(msg.err, session.ErrStopped) {
		m.errText = msg.err.Error()
	}
	// The cursor leaves the finished reply.
	m.anchor.Apply(model.ChangeDelta, m.rerender)
	m.anchor.EndCycle()
	return m, nil
}

// =============================================================================
// HISTORY
// =============================================================================

func (m Model) loadOlder() (tea.Model, tea.Cmd) {
	if !m.ctrl.RecordID().IsSet() || m.loadingPage {
		return m, nil
	}
	m.loadingPage = true
	ctrl, ctx := m.ctrl, m.ctx
	return m, func() tea.Msg {
		res, err := ctrl.LoadOlder(ctx)
		return historyLoadedMsg{op: opLoadOlder, fired: true, res: res, err: err}
	}
}

func (m Model) selectRecord(id model.RecordID) (tea.Model, tea.Cmd) {
	m.loadingPage = true
	ctrl, ctx := m.ctrl, m.ctx
	return m, func() tea.Msg {
		res, err := ctrl.SelectRecord(ctx, id)
		return historyLoadedMsg{op: opSelectRecord, fired: true, res: res, err: err}
	}
}

func (m Model) handleHistoryLoaded(msg historyLoadedMsg) (tea.Model, tea.Cmd) {
	m.loadingPage = false
	switch {
	case msg.err == nil:
	case errors.Is(msg.err, history.ErrInFlight),
		errors.Is(msg.err, history.ErrStale),
		errors.Is(msg.err, history.ErrNoMore):
	default:
		m.errText = "history: " + msg.err.Error()
	}
	if msg.op == opSelectRecord && msg.err == nil {
		m.errText = ""
	}
	return m, nil
}

// =============================================================================
// DRAWERS
// =============================================================================

func (m Model) openRecords() (tea.Model, tea.Cmd) {
	m.drawer = drawerRecords
	focus := m.recordPicker.Open()
	m.recordPicker.MarkSearched(m.recordPicker.Query())
	return m, tea.Batch(focus, m.searchRecords(m.recordPicker.Query()))
}

func (m Model) searchRecords(keyword string) tea.Cmd {
	records, scope, ctx := m.records, m.ctrl.Scope(), m.ctx
	return func() tea.Msg {
		list, err := records.Search(ctx, scope, keyword)
		return recordsLoadedMsg{list: list, reset: true, err: err}
	}
}

func (m Model) moreRecords() tea.Cmd {
	records, scope, ctx := m.records, m.ctrl.Scope(), m.ctx
	return func() tea.Msg {
		list, err := records.More(ctx, scope)
		return recordsLoadedMsg{list: list, err: err}
	}
}

func (m Model) handleRecordsLoaded(msg recordsLoadedMsg) (tea.Model, tea.Cmd) {
	switch {
	case errors.Is(msg.err, history.ErrStale), errors.Is(msg.err, history.ErrInFlight):
		return m, nil
	case errors.Is(msg.err, history.ErrNoMore):
		m.recordPicker.SetLoading(false)
		return m, nil
	case msg.err != nil:
		m.recordPicker.SetError(msg.err.Error())
		return m, nil
	}

	current := m.ctrl.RecordID()
	items := make([]components.PickerItem, 0, len(msg.list.Records))
	for _, r := range msg.list.Records {
		title := r.Name
		if title == "" {
			title = "Untitled conversation"
		}
		items = append(items, components.PickerItem{
			ID:      r.ID.String(),
			Title:   title,
			Detail:  recordTime(r.CreatedAt),
			Current: r.ID == current,
		})
	}
	m.recordPicker.SetItems(items, msg.list.Total, msg.list.HasMore, msg.reset)
	return m, nil
}

// recordTime shortens a server timestamp for the drawer.
func recordTime(s string) string {
	ms, ok := history.ParseTimestamp(s)
	if !ok {
		return s
	}
	t := time.UnixMilli(ms)
	if t.Year() == time.Now().Year() {
		return t.Format("Jan 2 15:04")
	}
	return t.Format("2006-01-02")
}

func (m Model) openAgents() (tea.Model, tea.Cmd) {
	m.drawer = drawerAgents
	focus := m.agentPicker.Open()
	m.agentPicker.MarkSearched(m.agentPicker.Query())
	return m, tea.Batch(focus, m.searchAgents(m.agentPicker.Query()))
}

func (m Model) searchAgents(query string) tea.Cmd {
	backend, ctx := m.backend, m.ctx
	return func() tea.Msg {
		agents, total, err := backend.ListAccessibleAgents(ctx, query, 1, agentsPerPage)
		return agentsLoadedMsg{agents: agents, total: total, err: err}
	}
}

func (m Model) handleAgentsLoaded(msg agentsLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.agentPicker.SetError(msg.err.Error())
		return m, nil
	}
	m.agents = msg.agents
	current := m.ctrl.Agent().ID
	items := make([]components.PickerItem, 0, len(msg.agents))
	for _, a := range msg.agents {
		items = append(items, components.PickerItem{
			ID:      a.ID,
			Title:   a.Label(),
			Detail:  a.Description,
			Current: a.ID == current,
		})
	}
	m.agentPicker.SetItems(items, msg.total, false, true)
	return m, nil
}

func (m Model) handleDrawerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.closeDrawer()
		return m.handleKey(msg)
	}

	picker := m.recordPicker
	if m.drawer == drawerAgents {
		picker = m.agentPicker
	}

	ev, cmd := picker.Update(msg)
	switch ev {
	case components.PickerClose:
		m.closeDrawer()
		cmd := m.checkTop()
		return m, cmd

	case components.PickerSearch:
		if m.drawer == drawerAgents {
			return m, m.searchAgents(picker.Query())
		}
		return m, m.searchRecords(picker.Query())

	case components.PickerMore:
		if m.drawer == drawerRecords {
			return m, m.moreRecords()
		}
		picker.SetLoading(false)

	case components.PickerSelect:
		item, _ := picker.Selected()
		if m.drawer == drawerAgents {
			return m.chooseAgent(item.ID)
		}
		return m.chooseRecord(item.ID)
	}
	return m, cmd
}

func (m *Model) closeDrawer() {
	m.recordPicker.Close()
	m.agentPicker.Close()
	m.drawer = drawerNone
	m.input.Focus()
}

func (m Model) chooseRecord(id string) (tea.Model, tea.Cmd) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		m.recordPicker.SetError("invalid record id " + id)
		return m, nil
	}
	if m.Streaming() {
		m.recordPicker.SetError("stop the current reply before opening another conversation")
		return m, nil
	}
	m.closeDrawer()
	m.errText = ""
	return m.selectRecord(model.RecordID(n))
}

func (m Model) chooseAgent(id string) (tea.Model, tea.Cmd) {
	agent, ok := model.FindAgent(m.agents, id)
	if !ok {
		return m, nil
	}
	m.closeDrawer()
	if agent.ID == m.ctrl.Agent().ID {
		return m, nil
	}
	m.ctrl.SelectAgent(agent)
	m.renderer.SetAssistantName(agent.Label())
	m.errText = ""
	return m.showNotice("Switched to " + agent.Label())
}

// =============================================================================
// CLIPBOARD AND NOTICES
// =============================================================================

func (m Model) copyLastReply() tea.Cmd {
	msg, ok := m.ctrl.Transcript().LastByRole(model.RoleAssistant)
	if !ok || msg.Content == "" {
		return nil
	}
	content := msg.Content
	return func() tea.Msg {
		return copiedMsg{err: clipboard.WriteAll(content)}
	}
}

// exportConversation writes the transcript as Markdown. The snapshot is
// taken now so a later stream does not leak into the file.
func (m Model) exportConversation() tea.Cmd {
	opts := export.DefaultOptions()
	if m.exportDir != "" {
		opts.OutputDir = m.exportDir
	}
	conv := export.NewConversation(m.ctrl.Agent(), m.ctrl.RecordID(), m.ctrl.Snapshot(), time.Now())
	return func() tea.Msg {
		path, err := export.ToFile(conv, export.NewMarkdownExporter(opts), opts)
		return exportedMsg{path: path, err: err}
	}
}

func (m Model) showNotice(text string) (tea.Model, tea.Cmd) {
	m.noticeSeq++
	m.notice = text
	seq := m.noticeSeq
	return m, tea.Tick(noticeDuration, func(time.Time) tea.Msg {
		return clearNoticeMsg{seq: seq}
	})
}
