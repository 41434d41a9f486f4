// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"

	"github.com/agentlz/agentlz-tui/internal/agentapi"
	"github.com/agentlz/agentlz-tui/internal/config"
	"github.com/agentlz/agentlz-tui/internal/export"
	"github.com/agentlz/agentlz-tui/internal/history"
	"github.com/agentlz/agentlz-tui/internal/model"
	"github.com/agentlz/agentlz-tui/internal/session"
	"github.com/agentlz/agentlz-tui/internal/util"
)

// agentsPerPage bounds the /agents listing.
const agentsPerPage = 50

// =============================================================================
// INPUT HISTORY
// =============================================================================

// LineReader reads one line of input after showing prompt.
type LineReader interface {
	Prompt(prompt string) (string, error)
}

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor with history loaded from the config
// directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
	return c
}

// Prompt reads a line and records it in the history.
func (c *ChatCLI) Prompt(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists the input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() error {
	var buf bytes.Buffer
	if _, err := c.line.WriteHistory(&buf); err != nil {
		return err
	}
	return util.WriteFileAtomic(c.historyFile, buf.Bytes(), util.PrivatePerms)
}

// Close saves the history and restores the terminal.
func (c *ChatCLI) Close() error {
	err := c.SaveHistory()
	if cerr := c.line.Close(); err == nil {
		err = cerr
	}
	return err
}

// LineScanner reads lines from a non-terminal input such as a pipe.
type LineScanner struct {
	sc *bufio.Scanner
}

// NewLineScanner creates a LineScanner over r. Prompts are not echoed.
func NewLineScanner(r io.Reader) *LineScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &LineScanner{sc: sc}
}

// Prompt returns the next line, or io.EOF at the end of input.
func (s *LineScanner) Prompt(string) (string, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.sc.Text(), nil
}

// =============================================================================
// REPL
// =============================================================================

// Backend lists agents and past conversations. *agentapi.Client satisfies
// it.
type Backend interface {
	ListAccessibleAgents(ctx context.Context, query string, page, perPage int) ([]model.AgentInfo, int, error)
	history.RecordLister
}

// REPLOptions configures a REPL.
type REPLOptions struct {
	Controller *session.Controller
	Backend    Backend
	Out        io.Writer

	// Markdown renders finished replies through glamour instead of
	// streaming raw text.
	Markdown      bool
	MarkdownStyle string
	Width         int

	RecordsPerPage int
	ExportDir      string
	Quiet          bool
	Logger         *slog.Logger
}

// REPL is the line-mode chat.
type REPL struct {
	ctrl      *session.Controller
	backend   Backend
	records   *history.RecordBrowser
	out       io.Writer
	md        *glamour.TermRenderer
	exportDir string
	quiet     bool
	logger    *slog.Logger

	// mu guards the streaming print state, written by the transcript
	// subscriber on the streaming goroutine.
	mu       sync.Mutex
	capture  bool
	streamID string
	printed  int

	agents      []model.AgentInfo
	unsubscribe func()
}

// NewREPL creates a REPL over opts.Controller.
func NewREPL(opts REPLOptions) *REPL {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &REPL{
		ctrl:      opts.Controller,
		backend:   opts.Backend,
		records:   history.NewRecordBrowser(opts.Backend, opts.RecordsPerPage),
		out:       opts.Out,
		exportDir: opts.ExportDir,
		quiet:     opts.Quiet,
		logger:    opts.Logger.With("component", "repl"),
	}

	if opts.Markdown {
		width := opts.Width
		if width <= 0 {
			width = fallbackWidth
		}
		style := opts.MarkdownStyle
		if style == "" {
			style = "dark"
		}
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width-2),
		)
		if err == nil {
			r.md = md
		} else {
			r.logger.Warn("markdown renderer unavailable", "error", err)
		}
	}

	r.unsubscribe = r.ctrl.Transcript().Subscribe(r.onChange)
	return r
}

// Close detaches the REPL from the transcript.
func (r *REPL) Close() {
	r.unsubscribe()
}

// onChange prints streamed text as it arrives when markdown is off.
func (r *REPL) onChange(c model.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch c.Kind {
	case model.ChangeAppend:
		if r.capture {
			r.capture = false
			r.streamID = c.MessageID
			r.printed = 0
		}
	case model.ChangeDelta:
		if r.md != nil || c.MessageID == "" || c.MessageID != r.streamID {
			return
		}
		msg, ok := r.ctrl.Transcript().Get(c.MessageID)
		if !ok || len(msg.Content) <= r.printed {
			return
		}
		fmt.Fprint(r.out, msg.Content[r.printed:])
		r.printed = len(msg.Content)
	}
}

// Run reads lines from in until /quit, EOF or an aborted prompt. Interrupts
// while a reply streams stop the reply.
func (r *REPL) Run(ctx context.Context, in LineReader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if r.ctrl.State() == session.StateStreaming {
					_ = r.ctrl.Stop()
				}
			}
		}
	}()

	if !r.quiet {
		r.printWelcome()
	}

	for {
		line, err := in.Prompt(PromptStyle.Render("agentlz> "))
		if err != nil {
			fmt.Fprintln(r.out)
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		quit, err := r.Execute(ctx, line)
		if err != nil {
			fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
		if quit {
			return nil
		}
	}
}

// Execute handles one line of input. It reports true when the user asked
// to quit.
func (r *REPL) Execute(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return true, nil
		}
		return false, r.send(ctx, line)
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return true, nil
	case "help", "h", "?":
		r.printHelp()
		return false, nil
	case "new", "clear":
		r.ctrl.NewConversation()
		fmt.Fprintln(r.out, DimStyle.Render("Started a new conversation."))
		return false, nil
	case "agents":
		return false, r.listAgents(ctx, arg)
	case "agent":
		return false, r.selectAgent(ctx, arg)
	case "history":
		return false, r.listRecords(ctx, arg)
	case "more":
		return false, r.moreRecords(ctx)
	case "open":
		return false, r.openRecord(ctx, arg)
	case "older":
		return false, r.loadOlder(ctx)
	case "copy":
		return false, r.copyLastReply()
	case "export":
		return false, r.exportConversation(arg)
	case "status", "s":
		r.printStatus()
		return false, nil
	default:
		return false, usageErrorf("unknown command /%s (try /help)", name)
	}
}

// =============================================================================
// SENDING
// =============================================================================

func (r *REPL) send(ctx context.Context, text string) error {
	fmt.Fprintln(r.out)
	r.mu.Lock()
	r.capture = true
	r.mu.Unlock()

	turn, err := r.ctrl.Send(ctx, text)
	if err != nil {
		r.mu.Lock()
		r.capture = false
		r.mu.Unlock()
		if errors.Is(err, session.ErrNoAgent) {
			return errors.New("no agent selected, use /agents and /agent N")
		}
		return err
	}

	err = turn.Wait()

	r.mu.Lock()
	r.streamID = ""
	r.mu.Unlock()

	msg, _ := r.ctrl.Transcript().Get(turn.AssistantID)
	if r.md != nil && msg.Content != "" {
		fmt.Fprint(r.out, r.renderMarkdown(msg.Content))
	}
	fmt.Fprintln(r.out)

	switch {
	case errors.Is(err, session.ErrStopped):
		fmt.Fprintln(r.out, WarningStyle.Render("[Stopped]"))
		return nil
	case err != nil:
		return err
	}
	if msg.Content == "" {
		fmt.Fprintln(r.out, DimStyle.Render("(no reply)"))
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) renderMarkdown(content string) string {
	out, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return out
}

// =============================================================================
// AGENTS
// =============================================================================

func (r *REPL) listAgents(ctx context.Context, filter string) error {
	agents, total, err := r.backend.ListAccessibleAgents(ctx, filter, 1, agentsPerPage)
	if err != nil {
		return err
	}
	r.agents = agents
	if len(agents) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("No agents found."))
		return nil
	}

	current := r.ctrl.Agent().ID
	for i, a := range agents {
		marker := " "
		if a.ID == current {
			marker = "*"
		}
		line := fmt.Sprintf("%s %2d. %s", marker, i+1, a.Label())
		if a.Description != "" {
			line += DimStyle.Render("  " + util.TruncateWidth(util.SingleLine(a.Description), 50))
		}
		fmt.Fprintln(r.out, line)
	}
	if total > len(agents) {
		fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("%d of %d shown, narrow with /agents FILTER", len(agents), total)))
	}
	return nil
}

func (r *REPL) selectAgent(ctx context.Context, arg string) error {
	if arg == "" {
		return usageErrorf("usage: /agent N|ID")
	}
	if len(r.agents) == 0 {
		if err := r.listAgentsQuiet(ctx); err != nil {
			return err
		}
	}

	agent, ok := pickIndexed(r.agents, arg, func(a model.AgentInfo) string { return a.ID })
	if !ok {
		return fmt.Errorf("no agent %q in the last listing", arg)
	}
	r.ctrl.SelectAgent(agent)
	fmt.Fprintf(r.out, "%s now talking to %s\n", SuccessStyle.Render("[OK]"), agent.Label())
	return nil
}

func (r *REPL) listAgentsQuiet(ctx context.Context) error {
	agents, _, err := r.backend.ListAccessibleAgents(ctx, "", 1, agentsPerPage)
	if err != nil {
		return err
	}
	r.agents = agents
	return nil
}

// pickIndexed resolves arg as a 1-based index into items, or else as an id.
func pickIndexed[T any](items []T, arg string, id func(T) string) (T, bool) {
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(items) {
		return items[n-1], true
	}
	for _, it := range items {
		if id(it) == arg {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// =============================================================================
// HISTORY
// =============================================================================

func (r *REPL) listRecords(ctx context.Context, keyword string) error {
	list, err := r.records.Search(ctx, r.ctrl.Scope(), keyword)
	if err != nil {
		return err
	}
	if len(list.Records) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("No past conversations."))
		return nil
	}
	r.printRecords(list, 0)
	return nil
}

func (r *REPL) moreRecords(ctx context.Context) error {
	before := len(r.records.List().Records)
	list, err := r.records.More(ctx, r.ctrl.Scope())
	if errors.Is(err, history.ErrNoMore) {
		fmt.Fprintln(r.out, DimStyle.Render("No more conversations."))
		return nil
	}
	if err != nil {
		return err
	}
	r.printRecords(list, before)
	return nil
}

func (r *REPL) printRecords(list *history.RecordList, from int) {
	current := r.ctrl.RecordID()
	for i := from; i < len(list.Records); i++ {
		rec := list.Records[i]
		marker := " "
		if rec.ID == current {
			marker = "*"
		}
		name := rec.Name
		if name == "" {
			name = "Untitled conversation"
		}
		fmt.Fprintf(r.out, "%s %2d. %s %s\n", marker, i+1,
			util.PadRight(util.TruncateWidth(util.SingleLine(name), 48), 48),
			DimStyle.Render(rec.CreatedAt))
	}
	if list.HasMore {
		fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("%d of %d shown, /more for the next page", len(list.Records), list.Total)))
	}
}

func (r *REPL) openRecord(ctx context.Context, arg string) error {
	if arg == "" {
		return usageErrorf("usage: /open N|ID")
	}

	var id model.RecordID
	rec, ok := pickIndexed(r.records.List().Records, arg, func(s agentapi.RecordSummary) string { return s.ID.String() })
	if ok {
		id = rec.ID
	} else {
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("no conversation %q in the last listing", arg)
		}
		id = model.RecordID(n)
	}

	res, err := r.ctrl.SelectRecord(ctx, id)
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Fprintln(r.out, DimStyle.Render("Conversation already open."))
		return nil
	}

	fmt.Fprintln(r.out, TitleStyle.Render(fmt.Sprintf("Conversation %s", id)))
	r.printMessages(r.ctrl.Snapshot())
	r.printPageStatus(res)
	return nil
}

func (r *REPL) loadOlder(ctx context.Context) error {
	if !r.ctrl.RecordID().IsSet() {
		return errors.New("no conversation open, use /history and /open N")
	}
	res, err := r.ctrl.LoadOlder(ctx)
	if errors.Is(err, history.ErrNoMore) {
		fmt.Fprintln(r.out, DimStyle.Render("Start of conversation."))
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, DimStyle.Render("-- older messages --"))
	r.printMessages(res.Messages)
	r.printPageStatus(res)
	return nil
}

func (r *REPL) printPageStatus(res *history.Result) {
	if res.HasMore {
		fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("%d of %d turns loaded, /older for more", res.LoadedCount, res.Total)))
		return
	}
	fmt.Fprintln(r.out, DimStyle.Render("Start of conversation."))
}

func (r *REPL) printMessages(msgs []model.Message) {
	for _, m := range msgs {
		switch m.Role {
		case model.RoleUser:
			fmt.Fprintln(r.out, PromptStyle.Render("you> ")+m.Content)
		case model.RoleAssistant:
			fmt.Fprintln(r.out, TitleStyle.Render(r.ctrl.Agent().Label()+":"))
			if r.md != nil {
				fmt.Fprint(r.out, r.renderMarkdown(m.Content))
			} else {
				fmt.Fprintln(r.out, m.Content)
			}
		default:
			fmt.Fprintln(r.out, DimStyle.Render(m.Content))
		}
		fmt.Fprintln(r.out)
	}
}

// =============================================================================
// MISC COMMANDS
// =============================================================================

func (r *REPL) copyLastReply() error {
	msg, ok := r.ctrl.Transcript().LastByRole(model.RoleAssistant)
	if !ok || msg.Content == "" {
		return errors.New("no reply to copy")
	}
	if err := clipboard.WriteAll(msg.Content); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	fmt.Fprintln(r.out, SuccessStyle.Render("[OK]")+" copied last reply")
	return nil
}

func (r *REPL) exportConversation(format string) error {
	opts := export.DefaultOptions()
	if r.exportDir != "" {
		opts.OutputDir = r.exportDir
	}
	exp, err := export.ForFormat(format, opts)
	if err != nil {
		return usageErrorf("%v (md, json)", err)
	}
	conv := export.NewConversation(r.ctrl.Agent(), r.ctrl.RecordID(), r.ctrl.Snapshot(), time.Now())
	path, err := export.ToFile(conv, exp, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s exported to %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

func (r *REPL) printStatus() {
	st := r.ctrl.Status()
	row := func(label, value string) {
		fmt.Fprintf(r.out, "%s %s\n", LabelStyle.Render(util.PadRight(label, 12)), value)
	}
	row("Agent", st.Agent.Label())
	if st.Record.IsSet() {
		row("Record", st.Record.String())
		row("History", fmt.Sprintf("%d of %d turns", st.History.LoadedCount, st.History.Total))
	} else {
		row("Record", "new conversation")
	}
	row("State", st.State.String())
	row("Messages", strconv.Itoa(st.Messages))
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, TitleStyle.Render("agentlz chat"))
	fmt.Fprintf(r.out, "%s %s\n", LabelStyle.Render("Agent:"), r.ctrl.Agent().Label())
	fmt.Fprintln(r.out, DimStyle.Render("Type a message, /help for commands, Ctrl+C to stop a reply, Ctrl+D to exit."))
	fmt.Fprintln(r.out, RenderSeparator(60))
}

func (r *REPL) printHelp() {
	cmds := [][2]string{
		{"/new", "start a new conversation"},
		{"/agents [filter]", "list agents"},
		{"/agent N|ID", "switch agent"},
		{"/history [keyword]", "list past conversations"},
		{"/more", "next page of past conversations"},
		{"/open N|ID", "open a past conversation"},
		{"/older", "load older messages"},
		{"/copy", "copy the last reply"},
		{"/export [md|json]", "write the conversation to a file"},
		{"/status", "show session status"},
		{"/quit", "exit"},
	}
	for _, c := range cmds {
		fmt.Fprintf(r.out, "  %s %s\n", CommandStyle.Render(util.PadRight(c[0], 20)), c[1])
	}
}
