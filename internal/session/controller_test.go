// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlz/agentlz-tui/internal/agentapi"
	"github.com/agentlz/agentlz-tui/internal/history"
	"github.com/agentlz/agentlz-tui/internal/model"
)

// =============================================================================
// FAKES
// =============================================================================

// fakeAPI opens streams through open and serves generated history pages.
// History calls for a record with a gate block until the gate is closed.
type fakeAPI struct {
	mu      sync.Mutex
	open    func(ctx context.Context, req agentapi.ChatRequest) (*agentapi.Decoder, error)
	chats   []agentapi.ChatRequest
	queries []agentapi.HistoryQuery
	total   int
	rows    map[int64][]agentapi.HistoryRow
	gates   map[int64]chan struct{}
	entered chan int64
}

func (f *fakeAPI) ChatStream(ctx context.Context, req agentapi.ChatRequest) (*agentapi.Decoder, error) {
	f.mu.Lock()
	f.chats = append(f.chats, req)
	open := f.open
	f.mu.Unlock()
	return open(ctx, req)
}

func (f *fakeAPI) ListSessionHistory(ctx context.Context, q agentapi.HistoryQuery) (*agentapi.HistoryPage, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	gate := f.gates[q.RecordID]
	fixed, hasFixed := f.rows[q.RecordID]
	total := f.total
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- q.RecordID
	}
	if gate != nil {
		<-gate
	}
	if hasFixed {
		return &agentapi.HistoryPage{Rows: fixed, Total: len(fixed)}, nil
	}

	var rows []agentapi.HistoryRow
	start := (q.Page - 1) * q.PerPage
	for i := start; i < start+q.PerPage && i < total; i++ {
		rows = append(rows, agentapi.HistoryRow{
			ID:        agentapi.FlexString(fmt.Sprintf("%d%03d", q.RecordID, i)),
			CreatedAt: agentapi.FlexString(fmt.Sprint(1_000_000 - i*10)),
			Input:     agentapi.FlexString(fmt.Sprintf("q%d", i)),
			Output:    agentapi.FlexString(fmt.Sprintf("a%d", i)),
		})
	}
	return &agentapi.HistoryPage{Rows: rows, Total: total}, nil
}

func (f *fakeAPI) historyCalls() []agentapi.HistoryQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]agentapi.HistoryQuery(nil), f.queries...)
}

// pipeStreams makes every opened stream readable from a pipe the test
// writes frames into.
func pipeStreams(f *fakeAPI) <-chan *io.PipeWriter {
	writers := make(chan *io.PipeWriter, 4)
	f.open = func(ctx context.Context, req agentapi.ChatRequest) (*agentapi.Decoder, error) {
		pr, pw := io.Pipe()
		writers <- pw
		return agentapi.NewDecoder(ctx, pr), nil
	}
	return writers
}

func frame(payload string) []byte {
	return []byte("data: " + payload + "\n\n")
}

var testAgent = model.AgentInfo{ID: "3", Name: "Ops"}

func newTestController(api API) *Controller {
	return NewController(api, Config{
		Agent:   testAgent,
		UserID:  "u1",
		PerPage: 5,
		Now:     func() time.Time { return time.UnixMilli(1_000) },
	})
}

func waitContent(t *testing.T, c *Controller, id, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		m, ok := c.Transcript().Get(id)
		return ok && m.Content == want
	}, 2*time.Second, 5*time.Millisecond)
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestController_SendStreamsReplyEndToEnd(t *testing.T) {
	var mu sync.Mutex
	var bodies []agentapi.ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req agentapi.ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		bodies = append(bodies, req)
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range []string{`{"delta":"Hi"}`, `{"delta":" there","record_id":42}`, `{"done":true}`} {
			w.Write(frame(f))
			flusher.Flush()
		}
	}))
	defer server.Close()

	c := newTestController(agentapi.NewClient(agentapi.Options{BaseURL: server.URL}))
	turn, err := c.Send(context.Background(), "  hello ")
	require.NoError(t, err)
	require.NoError(t, turn.Wait())

	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, model.RecordID(42), c.RecordID())
	assert.Empty(t, c.ActiveMessageID())
	assert.Equal(t, []model.Message{
		{ID: "1000-u", Role: model.RoleUser, Content: "hello", CreatedAt: 1000},
		{ID: "1000-a", Role: model.RoleAssistant, Content: "Hi there", CreatedAt: 1000},
	}, c.Snapshot())

	// The follow-up turn continues the assigned record.
	turn, err = c.Send(context.Background(), "again")
	require.NoError(t, err)
	require.NoError(t, turn.Wait())
	assert.Equal(t, "1001-u", turn.UserID, "turn timestamps are strictly increasing")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Equal(t, agentapi.ChatNew, bodies[0].Type)
	assert.Nil(t, bodies[0].RecordID)
	assert.Equal(t, agentapi.ChatContinue, bodies[1].Type)
	require.NotNil(t, bodies[1].RecordID)
	assert.Equal(t, int64(42), *bodies[1].RecordID)
}

func TestController_SendPreconditions(t *testing.T) {
	f := &fakeAPI{}
	writers := pipeStreams(f)
	c := newTestController(f)

	_, err := c.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	turn, err := c.Send(context.Background(), "first")
	require.NoError(t, err)
	pw := <-writers

	_, err = c.Send(context.Background(), "second")
	var violation *StateViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, StateStreaming, violation.State)
	assert.Len(t, c.Snapshot(), 2, "a rejected send appends nothing")

	pw.Write(frame(`{"done":true}`))
	require.NoError(t, turn.Wait())

	noAgent := NewController(f, Config{})
	_, err = noAgent.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoAgent)
}

func TestController_SendConcurrentWithSelectAgent(t *testing.T) {
	f := &fakeAPI{}
	f.open = func(ctx context.Context, req agentapi.ChatRequest) (*agentapi.Decoder, error) {
		return agentapi.NewDecoder(ctx, strings.NewReader(string(frame(`{"done":true}`)))), nil
	}
	c := newTestController(f)
	docs := model.AgentInfo{ID: "9", Name: "Docs"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			c.SelectAgent(docs)
			c.SelectAgent(testAgent)
		}
	}()

	for i := 0; i < 50; i++ {
		turn, err := c.Send(context.Background(), "hi")
		if err != nil {
			continue
		}
		if err := turn.Wait(); err != nil {
			assert.ErrorIs(t, err, ErrStopped)
		}
	}
	wg.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.chats {
		require.NotNil(t, req.AgentID)
		assert.Contains(t, []int64{3, 9}, *req.AgentID)
	}
}

func TestController_RecordAdoptedOnce(t *testing.T) {
	f := &fakeAPI{}
	writers := pipeStreams(f)
	c := newTestController(f)

	turn, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	pw := <-writers
	pw.Write(frame(`{"delta":"a","record_id":42}`))
	pw.Write(frame(`{"delta":"b","record_id":99}`))
	pw.Write(frame(`{"done":true}`))
	require.NoError(t, turn.Wait())

	assert.Equal(t, model.RecordID(42), c.RecordID())
}

func TestController_ActiveIDClearedOnce(t *testing.T) {
	f := &fakeAPI{}
	writers := pipeStreams(f)
	c := newTestController(f)

	turn, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, turn.AssistantID, c.ActiveMessageID())

	pw := <-writers
	go func() {
		pw.Write(frame(`{"delta":"x"}`))
		pw.Write(frame(`{"done":true}`))
		pw.Write(frame(`{"delta":"after done"}`))
		pw.Close()
	}()
	require.NoError(t, turn.Wait())

	assert.Equal(t, 1, turn.t.clears)
	m, _ := c.Transcript().Get(turn.AssistantID)
	assert.Equal(t, "x", m.Content, "frames after done are ignored")
}

func TestController_TransportFailure(t *testing.T) {
	f := &fakeAPI{open: func(ctx context.Context, req agentapi.ChatRequest) (*agentapi.Decoder, error) {
		return nil, &agentapi.StreamOpenError{Status: 500, Err: agentapi.ErrServer}
	}}
	c := newTestController(f)

	turn, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)

	err = turn.Wait()
	assert.ErrorIs(t, err, agentapi.ErrServer)
	assert.NotErrorIs(t, err, ErrStopped)
	assert.Equal(t, StateIdle, c.State())
	assert.Len(t, c.Snapshot(), 2, "the placeholder stays, empty")
}

// =============================================================================
// STOP TESTS
// =============================================================================

func TestController_StopDropsBufferedChunks(t *testing.T) {
	f := &fakeAPI{}
	writers := pipeStreams(f)
	c := newTestController(f)

	turn, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	pw := <-writers

	pw.Write(frame(`{"delta":"kept"}`))
	waitContent(t, c, turn.AssistantID, "kept")

	require.NoError(t, c.Stop())
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.ActiveMessageID())

	// Chunks already in transit when the user stopped.
	go func() {
		pw.Write(frame(`{"delta":" late"}`))
		pw.Write(frame(`{"done":true}`))
		pw.Close()
	}()

	assert.ErrorIs(t, turn.Wait(), ErrStopped)
	m, _ := c.Transcript().Get(turn.AssistantID)
	assert.Equal(t, "kept", m.Content)
	assert.Equal(t, 1, turn.t.clears)
}

func TestController_StopWhileIdle(t *testing.T) {
	c := newTestController(&fakeAPI{})
	err := c.Stop()
	assert.ErrorIs(t, err, ErrStateViolation)
}

func TestController_ContextCancelActsAsStop(t *testing.T) {
	f := &fakeAPI{}
	writers := pipeStreams(f)
	c := newTestController(f)

	ctx, cancel := context.WithCancel(context.Background())
	turn, err := c.Send(ctx, "hi")
	require.NoError(t, err)
	pw := <-writers
	defer pw.Close()

	pw.Write(frame(`{"delta":"a"}`))
	waitContent(t, c, turn.AssistantID, "a")
	cancel()

	go pw.Write(frame(`{"delta":"b"}`))
	assert.ErrorIs(t, turn.Wait(), ErrStopped)
	assert.Equal(t, StateIdle, c.State())

	m, _ := c.Transcript().Get(turn.AssistantID)
	assert.Equal(t, "a", m.Content)
}

func TestController_NewConversationAbortsStream(t *testing.T) {
	f := &fakeAPI{}
	writers := pipeStreams(f)
	c := newTestController(f)

	turn, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	pw := <-writers
	pw.Write(frame(`{"delta":"a","record_id":5}`))
	waitContent(t, c, turn.AssistantID, "a")

	c.NewConversation()
	go func() {
		pw.Write(frame(`{"delta":"b"}`))
		pw.Close()
	}()

	assert.ErrorIs(t, turn.Wait(), ErrStopped)
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, model.NoRecord, c.RecordID())
	assert.Zero(t, c.Transcript().Len())
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

func TestController_SelectRecordLoadsNewestPage(t *testing.T) {
	f := &fakeAPI{rows: map[int64][]agentapi.HistoryRow{
		7: {{ID: "7", Input: "a", Output: "b", CreatedAt: "500"}},
	}}
	c := newTestController(f)
	require.NoError(t, c.Transcript().Append(model.NewUserMessage(1, "stale")))

	res, err := c.SelectRecord(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)

	assert.Equal(t, []model.Message{
		{ID: "7-u", Role: model.RoleUser, Content: "a", CreatedAt: 500},
		{ID: "7-a", Role: model.RoleAssistant, Content: "b", CreatedAt: 501},
	}, c.Snapshot())
	assert.Equal(t, model.RecordID(7), c.RecordID())

	calls := f.historyCalls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].AgentID)
	assert.Equal(t, int64(3), *calls[0].AgentID)
	assert.Equal(t, "u1", calls[0].Meta.UserID)

	// Picking the open record again does nothing.
	res, err = c.SelectRecord(context.Background(), 7)
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Len(t, f.historyCalls(), 1)
}

func TestController_SelectRecordWhileStreaming(t *testing.T) {
	f := &fakeAPI{}
	writers := pipeStreams(f)
	c := newTestController(f)

	turn, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	pw := <-writers

	_, err = c.SelectRecord(context.Background(), 7)
	assert.ErrorIs(t, err, ErrStateViolation)
	assert.Empty(t, f.historyCalls())

	_, err = c.LoadOlder(context.Background())
	assert.ErrorIs(t, err, ErrStateViolation)

	pw.Write(frame(`{"done":true}`))
	require.NoError(t, turn.Wait())
}

func TestController_SendWhileHistoryLoading(t *testing.T) {
	f := &fakeAPI{
		rows:    map[int64][]agentapi.HistoryRow{7: {{ID: "1", Input: "a", Output: "b", CreatedAt: "500"}}},
		gates:   map[int64]chan struct{}{7: make(chan struct{})},
		entered: make(chan int64, 4),
	}
	writers := pipeStreams(f)
	c := newTestController(f)

	done := make(chan error, 1)
	go func() {
		_, err := c.SelectRecord(context.Background(), 7)
		done <- err
	}()
	require.Equal(t, int64(7), <-f.entered)
	assert.Equal(t, StateLoading, c.State())

	_, err := c.Send(context.Background(), "hello")
	var violation *StateViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, StateLoading, violation.State)

	_, err = c.LoadOlder(context.Background())
	assert.ErrorIs(t, err, history.ErrInFlight)

	close(f.gates[7])
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, c.State())
	assert.Len(t, c.Snapshot(), 2)

	turn, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)
	pw := <-writers
	pw.Write(frame(`{"delta":"Hi"}`))
	pw.Write(frame(`{"done":true}`))
	require.NoError(t, turn.Wait())

	snap := c.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, "Hi", snap[3].Content)
	assert.Equal(t, turn.AssistantID, snap[3].ID)
}

func TestController_PageLandingAfterNewTurnIsDiscarded(t *testing.T) {
	f := &fakeAPI{
		rows:    map[int64][]agentapi.HistoryRow{7: {{ID: "1", Input: "a", Output: "b", CreatedAt: "500"}}},
		gates:   map[int64]chan struct{}{7: make(chan struct{})},
		entered: make(chan int64, 4),
	}
	writers := pipeStreams(f)
	c := newTestController(f)

	done := make(chan error, 1)
	go func() {
		_, err := c.SelectRecord(context.Background(), 7)
		done <- err
	}()
	require.Equal(t, int64(7), <-f.entered)

	c.NewConversation()
	turn, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)
	pw := <-writers

	close(f.gates[7])
	assert.ErrorIs(t, <-done, history.ErrStale)
	assert.Equal(t, StateStreaming, c.State())

	pw.Write(frame(`{"delta":"Hi"}`))
	waitContent(t, c, turn.AssistantID, "Hi")
	pw.Write(frame(`{"done":true}`))
	require.NoError(t, turn.Wait())

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, turn.UserID, snap[0].ID)
	assert.Equal(t, turn.AssistantID, snap[1].ID)
}

func TestController_ScrollTopLoadsOneOlderPage(t *testing.T) {
	f := &fakeAPI{total: 12}
	c := newTestController(f)

	_, err := c.SelectRecord(context.Background(), 7)
	require.NoError(t, err)
	st := c.HistoryStatus()
	require.Equal(t, 5, st.LoadedCount)
	require.Equal(t, 12, st.Total)

	fired, err := c.ScrollTop(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, fired)

	fired, err = c.ScrollTop(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, fired)

	fired, err = c.ScrollTop(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, fired, "remaining at the top does not refetch")

	calls := f.historyCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, 2, calls[1].Page)
	assert.Equal(t, 10, c.HistoryStatus().LoadedCount)
	assert.Len(t, c.Snapshot(), 20)

	// Older rows sort before the newer page.
	snap := c.Snapshot()
	assert.Equal(t, "7009-u", snap[0].ID)
}

func TestController_RecordSwitchDiscardsStalePage(t *testing.T) {
	f := &fakeAPI{
		total:   3,
		gates:   map[int64]chan struct{}{7: make(chan struct{})},
		entered: make(chan int64, 4),
	}
	c := newTestController(f)

	type outcome struct {
		res *history.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := c.SelectRecord(context.Background(), 7)
		done <- outcome{res, err}
	}()
	require.Equal(t, int64(7), <-f.entered)

	res, err := c.SelectRecord(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, model.RecordID(8), res.Record)
	<-f.entered

	close(f.gates[7])
	stale := <-done
	assert.Nil(t, stale.res)
	assert.True(t, errors.Is(stale.err, history.ErrStale))

	for _, m := range c.Snapshot() {
		assert.Regexp(t, `^8\d+-[ua]$`, m.ID)
	}
	assert.Len(t, c.Snapshot(), 6)
	assert.Equal(t, model.RecordID(8), c.RecordID())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "send not allowed while streaming",
		(&StateViolation{Op: "send", State: StateStreaming}).Error())
}
