// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agentlz/agentlz-tui/internal/agentapi"
	"github.com/agentlz/agentlz-tui/internal/history"
	"github.com/agentlz/agentlz-tui/internal/model"
	"github.com/agentlz/agentlz-tui/internal/reconcile"
)

// State is the controller's stream state.
type State int

const (
	// StateIdle means no stream is open.
	StateIdle State = iota

	// StateStreaming means one assistant reply is being accumulated.
	StateStreaming

	// StateLoading means a history page is being fetched for the open
	// record. Sending waits for it to land.
	StateLoading
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// API is the backend surface the controller needs. *agentapi.Client
// satisfies it.
type API interface {
	ChatStream(ctx context.Context, req agentapi.ChatRequest) (*agentapi.Decoder, error)
	history.Fetcher
}

// Config holds configuration for a Controller.
type Config struct {
	// Agent is the agent conversations are held with.
	Agent model.AgentInfo

	// UserID is sent as meta.user_id with every request.
	UserID string

	// PerPage is the history page size (default: 25).
	PerPage int

	// Now supplies timestamps for local messages (default: time.Now).
	Now func() time.Time

	Logger *slog.Logger
}

// Status is a snapshot for status lines.
type Status struct {
	State    State
	Agent    model.AgentInfo
	Record   model.RecordID
	ActiveID string
	Messages int
	History  history.Status
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller coordinates sending, streaming, stopping and history loading
// for one conversation at a time.
type Controller struct {
	mu sync.Mutex

	api        API
	transcript *model.Transcript
	paginator  *history.Paginator
	reconciler *reconcile.Reconciler
	sentinel   reconcile.Sentinel

	// viewMu serializes every whole-transcript transition: resets, history
	// merges and the first append of a turn. It is taken before mu.
	viewMu sync.Mutex

	state   State
	agent   model.AgentInfo
	userID  string
	record  model.RecordID
	current *turn
	lastTS  int64
	loadSeq uint64

	now    func() time.Time
	logger *slog.Logger
}

// NewController creates a controller in the Idle state with an empty
// transcript and no record.
func NewController(api API, cfg Config) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	t := model.NewTranscript()
	return &Controller{
		api:        api,
		transcript: t,
		paginator: history.NewPaginator(api, history.Options{
			PerPage: cfg.PerPage,
			Now:     cfg.Now,
			Logger:  cfg.Logger,
		}),
		reconciler: reconcile.NewReconciler(t),
		agent:      cfg.Agent,
		userID:     cfg.UserID,
		now:        cfg.Now,
		logger:     cfg.Logger.With("component", "session"),
	}
}

// =============================================================================
// SEND AND STOP
// =============================================================================

// Send starts a turn. The user message and an empty assistant placeholder
// are appended before Send returns; the reply streams into the placeholder
// on a background goroutine. Send is only allowed while Idle.
func (c *Controller) Send(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)

	c.viewMu.Lock()
	defer c.viewMu.Unlock()

	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return nil, &StateViolation{Op: "send", State: state}
	}
	if text == "" {
		c.mu.Unlock()
		return nil, ErrEmptyMessage
	}
	if c.agent.IsZero() {
		c.mu.Unlock()
		return nil, ErrNoAgent
	}

	agent := c.agent
	ts := c.nextTimestampLocked()
	user := model.NewUserMessage(ts, text)
	placeholder := model.NewPlaceholder(ts)
	req := agentapi.NewChatRequest(agent, c.record, c.userID, text)

	streamCtx, cancel := context.WithCancel(ctx)
	t := newTurn(placeholder.ID, cancel)
	c.current = t
	c.state = StateStreaming
	c.mu.Unlock()

	if err := c.transcript.Append(user, placeholder); err != nil {
		c.end(t, err)
		return nil, err
	}

	c.logger.Info("turn started",
		"agent", agent.ID,
		"record", req.RecordID != nil,
		"message_id", placeholder.ID)

	go c.run(streamCtx, t, req)

	return &Turn{UserID: user.ID, AssistantID: placeholder.ID, t: t}, nil
}

// nextTimestampLocked returns a millisecond timestamp strictly greater than
// the previous turn's, so local ids never collide.
func (c *Controller) nextTimestampLocked() int64 {
	ts := c.now().UnixMilli()
	if ts <= c.lastTS {
		ts = c.lastTS + 1
	}
	c.lastTS = ts
	return ts
}

// Stop ends the streaming turn. The transport is cancelled and no chunk
// still in transit reaches the transcript after Stop returns. Content
// already received is kept. Stop is only allowed while Streaming.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != StateStreaming {
		state := c.state
		c.mu.Unlock()
		return &StateViolation{Op: "stop", State: state}
	}
	t := c.detachLocked()
	c.mu.Unlock()

	t.abort()
	c.logger.Info("turn stopped")
	return nil
}

// detachLocked drops the current turn and returns the controller to Idle.
func (c *Controller) detachLocked() *turn {
	t := c.current
	c.current = nil
	c.state = StateIdle
	return t
}

// end moves the controller back to Idle if t is still current, then
// settles the turn.
func (c *Controller) end(t *turn, err error) {
	c.mu.Lock()
	if c.current == t {
		c.detachLocked()
	}
	c.mu.Unlock()

	if !t.finish(err) {
		return
	}
	switch {
	case err == nil:
		c.logger.Info("turn completed")
	case errors.Is(err, ErrStopped):
		c.logger.Debug("turn ended after stop", "error", err)
	default:
		c.logger.Warn("turn failed", "error", err)
	}
}

// =============================================================================
// CONVERSATION SWITCHING
// =============================================================================

// NewConversation stops any stream, forgets the record and clears the
// transcript. It is allowed in every state; a history fetch still in
// flight is discarded when it lands.
func (c *Controller) NewConversation() {
	c.viewMu.Lock()
	defer c.viewMu.Unlock()

	c.mu.Lock()
	t := c.detachLocked()
	c.record = model.NoRecord
	c.mu.Unlock()

	if t != nil {
		t.abort()
	}
	c.resetViewLocked(model.NoRecord)
	c.logger.Info("new conversation")
}

// SelectAgent switches to agent and starts a new conversation with it.
func (c *Controller) SelectAgent(agent model.AgentInfo) {
	c.mu.Lock()
	c.agent = agent
	c.mu.Unlock()
	c.NewConversation()
}

// SelectRecord opens an existing conversation and loads its newest page.
// Selecting the record already open is a no-op. It is rejected while
// Streaming; while Loading it supersedes the fetch in flight.
func (c *Controller) SelectRecord(ctx context.Context, id model.RecordID) (*history.Result, error) {
	if !id.IsSet() {
		return nil, history.ErrNoRecord
	}

	c.viewMu.Lock()
	c.mu.Lock()
	if c.state == StateStreaming {
		c.mu.Unlock()
		c.viewMu.Unlock()
		return nil, &StateViolation{Op: "select record", State: StateStreaming}
	}
	if c.record == id && c.paginator.Record() == id {
		c.mu.Unlock()
		c.viewMu.Unlock()
		return nil, nil
	}
	c.record = id
	seq := c.beginLoadLocked()
	scope := c.scopeLocked()
	c.mu.Unlock()

	c.resetViewLocked(id)
	c.viewMu.Unlock()
	defer c.endLoad(seq)

	c.logger.Info("record selected", "record", id)
	return c.applyFetch(seq, scope, func(scope history.Scope) (*history.Result, error) {
		return c.paginator.Fetch(ctx, scope, 1)
	})
}

func (c *Controller) resetViewLocked(record model.RecordID) {
	c.paginator.Reset(record)
	c.sentinel.Reset()
	c.transcript.Clear()
}

// =============================================================================
// HISTORY
// =============================================================================

// LoadOlder fetches the next older page of the open record and merges it
// into the transcript. It is rejected while Streaming. A fetch already in
// flight makes this a no-op that returns history.ErrInFlight.
func (c *Controller) LoadOlder(ctx context.Context) (*history.Result, error) {
	c.mu.Lock()
	switch c.state {
	case StateStreaming:
		c.mu.Unlock()
		return nil, &StateViolation{Op: "load history", State: StateStreaming}
	case StateLoading:
		c.mu.Unlock()
		return nil, history.ErrInFlight
	}
	seq := c.beginLoadLocked()
	scope := c.scopeLocked()
	c.mu.Unlock()
	defer c.endLoad(seq)

	return c.applyFetch(seq, scope, func(scope history.Scope) (*history.Result, error) {
		return c.paginator.Next(ctx, scope)
	})
}

// ScrollTop reports the viewport's at-top state. On the transition into
// the top, with more history available and nothing in flight, it loads the
// next older page and returns true. Staying at the top never refires.
func (c *Controller) ScrollTop(ctx context.Context, atTop bool) (bool, error) {
	st := c.paginator.Status()
	busy := st.InFlight || c.State() != StateIdle
	if !c.sentinel.Observe(atTop, busy, st.HasMore) {
		return false, nil
	}
	_, err := c.LoadOlder(ctx)
	return true, err
}

// beginLoadLocked moves the controller to Loading and returns the tag of
// the new load. Any earlier load still in flight is superseded.
func (c *Controller) beginLoadLocked() uint64 {
	c.loadSeq++
	c.state = StateLoading
	return c.loadSeq
}

// endLoad returns to Idle if load seq is still the current one.
func (c *Controller) endLoad(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateLoading && c.loadSeq == seq {
		c.state = StateIdle
	}
}

// loadCurrent reports whether load seq has not been superseded by another
// load, a new conversation or a turn.
func (c *Controller) loadCurrent(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateLoading && c.loadSeq == seq
}

// applyFetch runs fetch and merges its page, unless load seq was
// superseded while the request was outstanding.
func (c *Controller) applyFetch(seq uint64, scope history.Scope, fetch func(history.Scope) (*history.Result, error)) (*history.Result, error) {
	res, err := fetch(scope)
	if err != nil {
		if !errors.Is(err, history.ErrInFlight) && !errors.Is(err, history.ErrStale) {
			c.logger.Warn("history fetch failed", "error", err)
		}
		return nil, err
	}

	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	if !c.loadCurrent(seq) || c.paginator.Record() != res.Record {
		return nil, history.ErrStale
	}
	added, err := c.reconciler.ApplyPage(res)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("history page applied",
		"record", res.Record,
		"page", res.Page,
		"added", added,
		"loaded", res.LoadedCount,
		"total", res.Total)
	return res, nil
}

func (c *Controller) scopeLocked() history.Scope {
	scope := history.Scope{UserID: c.userID}
	if id, ok := c.agent.NumericID(); ok {
		scope.AgentID = &id
	}
	return scope
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RecordID returns the open record, or model.NoRecord.
func (c *Controller) RecordID() model.RecordID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record
}

// Agent returns the selected agent.
func (c *Controller) Agent() model.AgentInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agent
}

// Scope returns the agent and user that history requests are filtered by.
func (c *Controller) Scope() history.Scope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scopeLocked()
}

// SetUserID changes the user id sent with later requests.
func (c *Controller) SetUserID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = id
}

// ActiveMessageID returns the id of the placeholder being streamed into,
// or "" when no turn is active.
func (c *Controller) ActiveMessageID() string {
	c.mu.Lock()
	t := c.current
	c.mu.Unlock()
	if t == nil {
		return ""
	}
	return t.active()
}

// Transcript returns the transcript views subscribe to.
func (c *Controller) Transcript() *model.Transcript {
	return c.transcript
}

// Snapshot returns a copy of the transcript in display order.
func (c *Controller) Snapshot() []model.Message {
	return c.transcript.Snapshot()
}

// HistoryStatus returns the paginator counters.
func (c *Controller) HistoryStatus() history.Status {
	return c.paginator.Status()
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{State: c.state, Agent: c.agent, Record: c.record}
	c.mu.Unlock()
	st.ActiveID = c.ActiveMessageID()
	st.Messages = c.transcript.Len()
	st.History = c.paginator.Status()
	return st
}
