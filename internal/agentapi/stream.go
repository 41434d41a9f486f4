// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/text/unicode/norm"

	"github.com/agentlz/agentlz-tui/internal/model"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

// MaxFragmentSize is the maximum number of buffered bytes without a
// fragment separator before the stream is considered broken (1MB).
const MaxFragmentSize = 1024 * 1024

// readChunkSize is the size of a single read from the response body.
const readChunkSize = 4 * 1024

var (
	fragmentSep = []byte("\n\n")
	dataPrefix  = []byte("data:")
)

// ErrFragmentTooLarge is returned when the stream buffers more than
// MaxFragmentSize bytes without completing a fragment.
var ErrFragmentTooLarge = errors.New("stream fragment too large")

// =============================================================================
// STREAMING TYPES
// =============================================================================

// ChatType selects between starting and continuing a conversation.
type ChatType int

const (
	// ChatNew starts a new conversation record.
	ChatNew ChatType = 0
	// ChatContinue appends to the record given in ChatRequest.RecordID.
	ChatContinue ChatType = 1
)

// Meta carries caller identity.
type Meta struct {
	UserID string `json:"user_id"`
}

// ChatRequest is the body of the streaming chat call.
type ChatRequest struct {
	AgentID  *int64   `json:"agent_id,omitempty"`
	APIName  string   `json:"api_name,omitempty"`
	APIKey   string   `json:"api_key,omitempty"`
	Type     ChatType `json:"type"`
	RecordID *int64   `json:"record_id,omitempty"`
	Meta     Meta     `json:"meta"`
	Message  string   `json:"message"`
}

// NewChatRequest builds a request for agent, continuing record when it is set.
func NewChatRequest(agent model.AgentInfo, record model.RecordID, userID, message string) ChatRequest {
	req := ChatRequest{
		Type:    ChatNew,
		Meta:    Meta{UserID: userID},
		Message: message,
	}
	if id, ok := agent.NumericID(); ok {
		req.AgentID = &id
	}
	if record.IsSet() {
		rid := int64(record)
		req.Type = ChatContinue
		req.RecordID = &rid
	}
	return req
}

// Event is one decoded stream event.
type Event struct {
	// Delta and Text are alternative carriers of assistant text. Delta wins
	// when both are present.
	Delta string
	Text  string

	// Done marks the end of the turn.
	Done bool

	// RecordID is the server record id when the event carried one.
	RecordID model.RecordID

	// Anomaly is set when the payload was not valid JSON. The raw payload is
	// then delivered as Delta.
	Anomaly bool

	// Synthetic marks the Done event produced at end of input.
	Synthetic bool
}

// Content returns the assistant text carried by the event.
func (e Event) Content() string {
	if e.Delta != "" {
		return e.Delta
	}
	return e.Text
}

// wireEvent is the JSON shape of a data payload.
type wireEvent struct {
	Delta    string  `json:"delta"`
	Text     string  `json:"text"`
	Done     bool    `json:"done"`
	RecordID FlexInt `json:"record_id"`
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns the bytes of an event stream into Events.
//
// It keeps a rolling byte buffer, splits it on blank lines and parses the
// first data: line of every complete fragment. CRLF and lone CR line endings
// are folded to LF as bytes arrive. Because splitting happens on bytes, the
// decoded sequence does not depend on how the input was chunked, even when a
// chunk boundary falls inside a multi-byte character or a CRLF pair.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	ctx     context.Context
	r       io.Reader
	closer  io.Closer
	buf     []byte
	chunk   []byte
	pending []Event
	eof     bool
	ended   bool
	lastCR  bool
	logger  *slog.Logger
}

// NewDecoder creates a decoder reading from r. Reads stop with ctx.Err()
// once ctx is done. If r is an io.Closer, Close closes it.
func NewDecoder(ctx context.Context, r io.Reader) *Decoder {
	d := &Decoder{
		ctx:    ctx,
		r:      r,
		chunk:  make([]byte, readChunkSize),
		logger: slog.Default(),
	}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}
	return d
}

// WithLogger sets the logger used to report decode anomalies.
func (d *Decoder) WithLogger(l *slog.Logger) *Decoder {
	if l != nil {
		d.logger = l
	}
	return d
}

// Next returns the next event. After the input ends it returns exactly one
// synthetic Done event and then io.EOF. Read failures and cancellation are
// returned as errors; decode failures never are.
func (d *Decoder) Next() (Event, error) {
	for {
		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			return ev, nil
		}
		if d.ended {
			return Event{}, io.EOF
		}
		if d.eof {
			d.ended = true
			return Event{Done: true, Synthetic: true}, nil
		}
		if err := d.ctx.Err(); err != nil {
			return Event{}, err
		}

		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.appendLF(d.chunk[:n])
			d.split()
			if len(d.buf) > MaxFragmentSize {
				return Event{}, fmt.Errorf("%w: %d bytes", ErrFragmentTooLarge, len(d.buf))
			}
		}
		if errors.Is(err, io.EOF) {
			d.flushTail()
			d.eof = true
			continue
		}
		if err != nil {
			if ctxErr := d.ctx.Err(); ctxErr != nil {
				return Event{}, ctxErr
			}
			return Event{}, fmt.Errorf("read stream: %w", err)
		}
	}
}

// Close releases the underlying body.
func (d *Decoder) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// appendLF appends p to the buffer with CRLF and CR rewritten to LF. A CR
// ending one read still pairs with an LF starting the next.
func (d *Decoder) appendLF(p []byte) {
	for _, b := range p {
		if d.lastCR {
			d.lastCR = false
			if b == '\n' {
				continue
			}
		}
		if b == '\r' {
			d.lastCR = true
			b = '\n'
		}
		d.buf = append(d.buf, b)
	}
}

// split moves every complete fragment out of the buffer.
func (d *Decoder) split() {
	consumed := 0
	for {
		i := bytes.Index(d.buf[consumed:], fragmentSep)
		if i < 0 {
			break
		}
		d.parse(d.buf[consumed : consumed+i])
		consumed += i + len(fragmentSep)
	}
	if consumed > 0 {
		d.buf = append(d.buf[:0:0], d.buf[consumed:]...)
	}
}

// flushTail parses an unterminated final fragment.
func (d *Decoder) flushTail() {
	if len(bytes.TrimSpace(d.buf)) > 0 {
		d.parse(d.buf)
	}
	d.buf = nil
}

// parse decodes one fragment. Fragments without a data: line or with an
// empty payload carry nothing and are skipped.
func (d *Decoder) parse(fragment []byte) {
	payload, ok := dataPayload(fragment)
	if !ok {
		return
	}

	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		d.logger.Debug("stream payload is not JSON, passing it through as text",
			"bytes", len(payload), "error", err)
		d.pending = append(d.pending, Event{Delta: string(payload), Anomaly: true})
		return
	}

	ev := Event{Delta: w.Delta, Text: w.Text, Done: w.Done}
	if w.RecordID.Valid {
		ev.RecordID = model.RecordID(w.RecordID.Value)
	}
	d.pending = append(d.pending, ev)
}

// dataPayload returns the payload of the first data: line, minus the one
// space that may follow the colon. Whitespace-only payloads are keep-alives.
func dataPayload(fragment []byte) ([]byte, bool) {
	for _, line := range bytes.Split(fragment, []byte("\n")) {
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimPrefix(line[len(dataPrefix):], []byte(" "))
		return payload, len(bytes.TrimSpace(payload)) > 0
	}
	return nil, false
}

// Fold replays events onto empty content the way the live accumulator does
// and returns the resulting text. Folding stops at the first Done event.
func Fold(events []Event) string {
	var b bytes.Buffer
	for _, ev := range events {
		b.WriteString(ev.Content())
		if ev.Done {
			break
		}
	}
	return b.String()
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream opens the streaming chat endpoint and returns a Decoder over
// the response body. Cancelling ctx aborts the transport and makes Next
// return ctx.Err(). The caller must Close the decoder.
//
// A transport failure, a non-OK status or a missing body is reported as
// *StreamOpenError before any event is produced.
func (c *Client) ChatStream(ctx context.Context, chat ChatRequest) (*Decoder, error) {
	if !c.IsConfigured() {
		return nil, &StreamOpenError{Err: ErrNotConfigured}
	}

	chat.Message = norm.NFC.String(chat.Message)
	bodyBytes, err := json.Marshal(chat)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.paths.chat, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, &StreamOpenError{Err: fmt.Errorf("request failed: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, &StreamOpenError{
			Status: resp.StatusCode,
			Err:    errorFromResponse(resp.StatusCode, body),
		}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, &StreamOpenError{Status: resp.StatusCode, Err: ErrNoBody}
	}

	c.logger.Debug("stream opened",
		"path", c.paths.chat,
		"type", int(chat.Type),
		"request_id", req.Header.Get("X-Request-ID"))

	return NewDecoder(ctx, resp.Body).WithLogger(c.logger), nil
}
