// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agentapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlz/agentlz-tui/internal/model"
)

// chunkReader returns its chunks one Read at a time.
type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.chunks) > 0 && len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	return n, nil
}

func drain(t *testing.T, d *Decoder) []Event {
	t.Helper()
	var events []Event
	for i := 0; i < 1000; i++ {
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
	t.Fatal("decoder did not terminate")
	return nil
}

const sampleStream = "data: {\"delta\":\"你好\"}\n\n" +
	"data: not json\n\n" +
	": keep-alive comment\n\n" +
	"event: message\ndata: {\"delta\":\" wörld\",\"record_id\":\"42\"}\n\n" +
	"data: {\"text\":\"!\"}\n\n" +
	"data: {\"done\":true}\n\n"

// =============================================================================
// DECODER TESTS
// =============================================================================

func TestDecoder_Sequence(t *testing.T) {
	d := NewDecoder(context.Background(), strings.NewReader(sampleStream))
	events := drain(t, d)

	want := []Event{
		{Delta: "你好"},
		{Delta: "not json", Anomaly: true},
		{Delta: " wörld", RecordID: 42},
		{Text: "!"},
		{Done: true},
		{Done: true, Synthetic: true},
	}
	assert.Equal(t, want, events)
	assert.Equal(t, "你好not json wörld!", Fold(events))
}

func TestDecoder_ChunkBoundaryInvariance(t *testing.T) {
	input := []byte(sampleStream)
	reference := drain(t, NewDecoder(context.Background(), strings.NewReader(sampleStream)))

	// Every two-way split, including splits inside multi-byte characters.
	for i := 0; i <= len(input); i++ {
		r := &chunkReader{chunks: [][]byte{
			append([]byte(nil), input[:i]...),
			append([]byte(nil), input[i:]...),
		}}
		got := drain(t, NewDecoder(context.Background(), r))
		require.Equal(t, reference, got, "split at byte %d", i)
	}

	// One byte per read.
	var single [][]byte
	for _, b := range input {
		single = append(single, []byte{b})
	}
	got := drain(t, NewDecoder(context.Background(), &chunkReader{chunks: single}))
	assert.Equal(t, reference, got)
}

func TestDecoder_SyntheticDoneOnSilentClose(t *testing.T) {
	d := NewDecoder(context.Background(), strings.NewReader("data: {\"delta\":\"partial\"}\n\n"))
	events := drain(t, d)

	require.Len(t, events, 2)
	assert.Equal(t, "partial", events[0].Delta)
	assert.True(t, events[1].Done)
	assert.True(t, events[1].Synthetic)

	_, err := d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_FlushesUnterminatedTail(t *testing.T) {
	d := NewDecoder(context.Background(), strings.NewReader("data: {\"delta\":\"a\"}\n\ndata: {\"delta\":\"b\"}"))
	events := drain(t, d)

	assert.Equal(t, "ab", Fold(events))
	assert.True(t, events[len(events)-1].Synthetic)
}

func TestDecoder_SkipsEmptyFragments(t *testing.T) {
	input := "\n\ndata:\n\ndata:   \n\nid: 7\n\ndata: {\"delta\":\"x\"}\n\n"
	events := drain(t, NewDecoder(context.Background(), strings.NewReader(input)))

	assert.Equal(t, []Event{{Delta: "x"}, {Done: true, Synthetic: true}}, events)
}

func TestDecoder_FirstDataLineWins(t *testing.T) {
	input := "data: {\"delta\":\"first\"}\ndata: {\"delta\":\"second\"}\n\n"
	events := drain(t, NewDecoder(context.Background(), strings.NewReader(input)))

	assert.Equal(t, "first", events[0].Delta)
}

func TestDecoder_CRLFLines(t *testing.T) {
	input := "data: {\"delta\":\"x\"}\r\n\n"
	events := drain(t, NewDecoder(context.Background(), strings.NewReader(input)))

	assert.Equal(t, "x", events[0].Delta)
	assert.False(t, events[0].Anomaly)
}

func TestDecoder_CRLFFramedEvents(t *testing.T) {
	input := "data: {\"delta\":\"a\"}\r\n\r\n" +
		"data: {\"delta\":\"b\"}\r\n\r\n" +
		"data: {\"delta\":\"c\"}\r\r" +
		"data: {\"done\":true}\r\n\r\n"
	reference := drain(t, NewDecoder(context.Background(), strings.NewReader(input)))
	assert.Equal(t, "abc", Fold(reference))
	assert.Equal(t, Event{Done: true}, reference[3])

	// Events are split as they arrive, not at EOF.
	pr, pw := io.Pipe()
	d := NewDecoder(context.Background(), pr)
	go pw.Write([]byte("data: {\"delta\":\"a\"}\r\n\r\n"))
	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", ev.Delta)
	pw.Close()

	// A CRLF pair split across reads still ends one line.
	in := []byte(input)
	for i := 0; i <= len(in); i++ {
		r := &chunkReader{chunks: [][]byte{
			append([]byte(nil), in[:i]...),
			append([]byte(nil), in[i:]...),
		}}
		require.Equal(t, reference, drain(t, NewDecoder(context.Background(), r)), "split at byte %d", i)
	}
}

func TestDecoder_RawTextKeepsWhitespace(t *testing.T) {
	input := "data: hello \n\ndata:world\n\ndata:   indented\n\n"
	events := drain(t, NewDecoder(context.Background(), strings.NewReader(input)))

	require.Len(t, events, 4)
	assert.Equal(t, Event{Delta: "hello ", Anomaly: true}, events[0])
	assert.Equal(t, Event{Delta: "world", Anomaly: true}, events[1])
	assert.Equal(t, Event{Delta: "  indented", Anomaly: true}, events[2])
	assert.Equal(t, "hello world  indented", Fold(events))
}

func TestDecoder_NonObjectJSONIsAnomaly(t *testing.T) {
	events := drain(t, NewDecoder(context.Background(), strings.NewReader("data: [1,2]\n\n")))

	assert.Equal(t, Event{Delta: "[1,2]", Anomaly: true}, events[0])
}

func TestDecoder_RecordIDForms(t *testing.T) {
	tests := []struct {
		payload string
		want    model.RecordID
	}{
		{`{"record_id":42}`, 42},
		{`{"record_id":"42"}`, 42},
		{`{"record_id":" 7 "}`, 7},
		{`{"record_id":null}`, model.NoRecord},
		{`{"record_id":"abc"}`, model.NoRecord},
		{`{}`, model.NoRecord},
	}
	for _, tc := range tests {
		t.Run(tc.payload, func(t *testing.T) {
			events := drain(t, NewDecoder(context.Background(), strings.NewReader("data: "+tc.payload+"\n\n")))
			assert.Equal(t, tc.want, events[0].RecordID)
			assert.False(t, events[0].Anomaly)
		})
	}
}

func TestDecoder_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDecoder(ctx, pr)

	go func() {
		pw.Write([]byte("data: {\"delta\":\"a\"}\n\n"))
	}()

	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", ev.Delta)

	cancel()
	_, err = d.Next()
	assert.ErrorIs(t, err, context.Canceled)

	pw.Close()
}

func TestDecoder_FragmentTooLarge(t *testing.T) {
	big := "data: " + strings.Repeat("x", MaxFragmentSize+10)
	d := NewDecoder(context.Background(), strings.NewReader(big))

	var err error
	for i := 0; i < 1000 && err == nil; i++ {
		_, err = d.Next()
	}
	assert.ErrorIs(t, err, ErrFragmentTooLarge)
}

// =============================================================================
// CHAT STREAM TESTS
// =============================================================================

func TestChatStream_RequestShape(t *testing.T) {
	var got ChatRequest
	var header http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		assert.Equal(t, "/agent/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, frame := range []string{`{"delta":"Hi"}`, `{"delta":" there","record_id":42}`, `{"done":true}`} {
			w.Write([]byte("data: " + frame + "\n\n"))
			flusher.Flush()
		}
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Token: "tok", TenantID: "t1"})
	req := NewChatRequest(model.AgentInfo{ID: "3"}, model.RecordID(9), "u1", "cafe\u0301")

	dec, err := client.ChatStream(context.Background(), req)
	require.NoError(t, err)
	defer dec.Close()
	events := drain(t, dec)

	assert.Equal(t, "Hi there", Fold(events))
	assert.Equal(t, model.RecordID(42), events[1].RecordID)

	assert.Equal(t, "Bearer tok", header.Get("Authorization"))
	assert.Equal(t, "t1", header.Get("X-Tenant-ID"))
	assert.Equal(t, "text/event-stream", header.Get("Accept"))
	assert.NotEmpty(t, header.Get("X-Request-ID"))

	require.NotNil(t, got.AgentID)
	assert.Equal(t, int64(3), *got.AgentID)
	assert.Equal(t, ChatContinue, got.Type)
	require.NotNil(t, got.RecordID)
	assert.Equal(t, int64(9), *got.RecordID)
	assert.Equal(t, "u1", got.Meta.UserID)
	assert.Equal(t, "caf\u00e9", got.Message, "message is NFC-normalized")
}

func TestNewChatRequest_NewConversation(t *testing.T) {
	req := NewChatRequest(model.AgentInfo{ID: "agent-x"}, model.NoRecord, "u", "hello")

	assert.Nil(t, req.AgentID)
	assert.Nil(t, req.RecordID)
	assert.Equal(t, ChatNew, req.Type)

	b, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":0,"meta":{"user_id":"u"},"message":"hello"}`, string(b))
}

func TestChatStream_OpenErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"token expired"}`, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ``, ErrForbidden},
		{"server", http.StatusInternalServerError, `boom`, ErrServer},
		{"empty body", http.StatusOK, ``, ErrNoBody},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Length", "0")
				if tc.body != "" {
					w.Header().Del("Content-Length")
				}
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(Options{BaseURL: server.URL})
			dec, err := client.ChatStream(context.Background(), ChatRequest{Message: "x"})

			assert.Nil(t, dec)
			var openErr *StreamOpenError
			require.ErrorAs(t, err, &openErr)
			assert.Equal(t, tc.status, openErr.Status)
			assert.ErrorIs(t, err, tc.sentinel)
		})
	}
}

func TestChatStream_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Options{BaseURL: url})
	_, err := client.ChatStream(context.Background(), ChatRequest{Message: "x"})

	var openErr *StreamOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, 0, openErr.Status)
}

func TestChatStream_NotConfigured(t *testing.T) {
	_, err := NewClient(Options{}).ChatStream(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
