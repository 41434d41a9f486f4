// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log/slog"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/agentlz/agentlz-tui/internal/history"
	"github.com/agentlz/agentlz-tui/internal/model"
	"github.com/agentlz/agentlz-tui/internal/reconcile"
	"github.com/agentlz/agentlz-tui/internal/session"
	"github.com/agentlz/agentlz-tui/internal/ui/components"
	"github.com/agentlz/agentlz-tui/internal/ui/styles"
)

// agentsPerPage bounds the agent drawer listing.
const agentsPerPage = 50

// Backend lists what the drawers browse. *agentapi.Client satisfies it.
type Backend interface {
	ListAccessibleAgents(ctx context.Context, query string, page, perPage int) ([]model.AgentInfo, int, error)
	history.RecordLister
}

// Options configures a Model.
type Options struct {
	Controller *session.Controller
	Backend    Backend
	Theme      *styles.Theme

	// Markdown renders assistant replies through glamour.
	Markdown       bool
	ShowTimestamps bool

	// RecordsPerPage is the history drawer page size.
	RecordsPerPage int

	// TopThreshold is how many lines from the top count as "at the top".
	TopThreshold int

	// ExportDir is where ctrl+e writes the conversation (empty = cwd).
	ExportDir string

	Logger *slog.Logger
}

// drawer identifies the open overlay, if any.
type drawer int

const (
	drawerNone drawer = iota
	drawerRecords
	drawerAgents
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the chat screen.
type Model struct {
	ctrl    *session.Controller
	backend Backend
	theme   *styles.Theme
	keys    KeyMap
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	viewport *components.ChatViewport
	renderer *components.MessageRenderer
	anchor   *reconcile.Anchor
	input    textinput.Model
	status   *components.StatusBar
	spinner  components.Spinner

	queue       *changeQueue
	unsubscribe func()

	records      *history.RecordBrowser
	recordPicker *components.Picker
	agentPicker  *components.Picker
	agents       []model.AgentInfo
	drawer       drawer

	turn         *session.Turn
	loadingPage  bool
	lastAtTop    bool
	topThreshold int
	exportDir    string

	errText   string
	notice    string
	noticeSeq int

	width  int
	height int
	ready  bool
}

// New creates a chat screen bound to opts.Controller.
func New(opts Options) Model {
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme(styles.ModeAuto)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ti := textinput.New()
	ti.Placeholder = "Message the agent..."
	ti.Prompt = "> "
	ti.PromptStyle = opts.Theme.InputPrompt
	ti.CharLimit = 0
	ti.Focus()

	vp := components.NewChatViewport(opts.Theme)
	renderer := components.NewMessageRenderer(opts.Theme, opts.Markdown)
	renderer.SetShowTimestamps(opts.ShowTimestamps)
	renderer.SetAssistantName(opts.Controller.Agent().Label())

	queue := newChangeQueue()
	unsubscribe := opts.Controller.Transcript().Subscribe(queue.push)

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		ctrl:         opts.Controller,
		backend:      opts.Backend,
		theme:        opts.Theme,
		keys:         DefaultKeyMap(),
		logger:       opts.Logger.With("component", "chat"),
		ctx:          ctx,
		cancel:       cancel,
		viewport:     vp,
		renderer:     renderer,
		anchor:       reconcile.NewAnchor(vp),
		input:        ti,
		status:       components.NewStatusBar(opts.Theme),
		spinner:      components.NewSpinner("streaming"),
		queue:        queue,
		unsubscribe:  unsubscribe,
		records:      history.NewRecordBrowser(opts.Backend, opts.RecordsPerPage),
		recordPicker: components.NewPicker(opts.Theme, "Past conversations", "search by title"),
		agentPicker:  components.NewPicker(opts.Theme, "Agents", "filter agents"),
		topThreshold: opts.TopThreshold,
		exportDir:    opts.ExportDir,
	}
}

// Init starts the cursor blink and the transcript listener, and renders
// whatever the transcript already holds.
func (m Model) Init() tea.Cmd {
	m.anchor.Apply(model.ChangeReplace, m.rerender)
	m.anchor.EndCycle()
	return tea.Batch(textinput.Blink, m.queue.wait())
}

// Close detaches the model from the controller and cancels pending loads.
func (m Model) Close() {
	m.unsubscribe()
	m.queue.close()
	m.cancel()
}

// rerender renders the transcript into the viewport.
func (m Model) rerender() {
	m.viewport.SetContent(m.renderer.Render(m.ctrl.Snapshot(), m.ctrl.ActiveMessageID()))
}

// Streaming reports whether a reply is streaming.
func (m Model) Streaming() bool {
	return m.ctrl.State() == session.StateStreaming
}
