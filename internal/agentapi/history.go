// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agentapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/agentlz/agentlz-tui/internal/model"
)

// =============================================================================
// SESSION HISTORY
// =============================================================================

// HistoryRow is one raw row of a session history page. A row is either a
// question/answer pair (Input, Output) or a single message (Content or
// Message, with Role).
type HistoryRow struct {
	ID        FlexString `json:"id"`
	CreatedAt FlexString `json:"created_at"`
	Time      FlexString `json:"time"`
	Input     FlexString `json:"input"`
	Output    FlexString `json:"output"`
	Role      string     `json:"role"`
	Content   FlexString `json:"content"`
	Message   FlexString `json:"message"`
}

// HistoryQuery is the body of a session history request.
type HistoryQuery struct {
	AgentID  *int64 `json:"agent_id,omitempty"`
	Meta     Meta   `json:"meta"`
	RecordID int64  `json:"record_id"`
	Page     int    `json:"page"`
	PerPage  int    `json:"per_page"`
}

// HistoryPage is one page of session history.
type HistoryPage struct {
	Rows  []HistoryRow
	Total int
}

// HistoryFetchError reports a failed history page request. It is
// retryable; paginator counters are left untouched.
type HistoryFetchError struct {
	RecordID model.RecordID
	Page     int
	Err      error
}

// Error implements the error interface.
func (e *HistoryFetchError) Error() string {
	return fmt.Sprintf("fetch history (record %s, page %d): %v", e.RecordID, e.Page, e.Err)
}

// Unwrap returns the underlying error.
func (e *HistoryFetchError) Unwrap() error {
	return e.Err
}

// ListSessionHistory fetches one page of the turns of a conversation record.
// Every failure is returned as *HistoryFetchError.
func (c *Client) ListSessionHistory(ctx context.Context, q HistoryQuery) (*HistoryPage, error) {
	wrap := func(err error) error {
		return &HistoryFetchError{RecordID: model.RecordID(q.RecordID), Page: q.Page, Err: err}
	}

	raw, err := c.doJSON(ctx, http.MethodPost, c.paths.sessions, nil, q)
	if err != nil {
		return nil, wrap(err)
	}
	rows, total, err := decodeList[HistoryRow](raw)
	if err != nil {
		return nil, wrap(err)
	}
	return &HistoryPage{Rows: rows, Total: total}, nil
}

// =============================================================================
// CONVERSATION RECORDS
// =============================================================================

// RecordQuery is the body of a conversation record list request.
type RecordQuery struct {
	AgentID *int64 `json:"agent_id,omitempty"`
	Meta    Meta   `json:"meta"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	Keyword string `json:"keyword,omitempty"`
}

// RecordSummary is one past conversation of an agent.
type RecordSummary struct {
	ID        model.RecordID
	Name      string
	CreatedAt string
}

type wireRecord struct {
	ID        FlexInt    `json:"id"`
	RecordID  FlexInt    `json:"record_id"`
	Name      FlexString `json:"name"`
	CreatedAt FlexString `json:"created_at"`
}

// RecordPage is one page of conversation records.
type RecordPage struct {
	Records []RecordSummary
	// Rows is the number of rows the server returned, including rows
	// dropped for lacking a usable record id.
	Rows  int
	Total int
}

// ListChatRecords fetches one page of the conversation records of an agent.
// Rows whose record id is not numeric are skipped.
func (c *Client) ListChatRecords(ctx context.Context, q RecordQuery) (*RecordPage, error) {
	q.Keyword = strings.TrimSpace(q.Keyword)
	raw, err := c.doJSON(ctx, http.MethodPost, c.paths.records, nil, q)
	if err != nil {
		return nil, fmt.Errorf("list chat records: %w", err)
	}
	rows, total, err := decodeList[wireRecord](raw)
	if err != nil {
		return nil, fmt.Errorf("list chat records: %w", err)
	}

	page := &RecordPage{Rows: len(rows), Total: total}
	for _, r := range rows {
		id := r.RecordID
		if !id.Valid {
			id = r.ID
		}
		if !id.Valid {
			continue
		}
		page.Records = append(page.Records, RecordSummary{
			ID:        model.RecordID(id.Value),
			Name:      string(r.Name),
			CreatedAt: string(r.CreatedAt),
		})
	}
	return page, nil
}
