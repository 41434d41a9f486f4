// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"strings"
	"sync"

	"github.com/agentlz/agentlz-tui/internal/agentapi"
	"github.com/agentlz/agentlz-tui/internal/model"
)

// DefaultRecordsPerPage is the page size of the record list.
const DefaultRecordsPerPage = 15

// RecordLister loads one page of conversation records.
type RecordLister interface {
	ListChatRecords(ctx context.Context, q agentapi.RecordQuery) (*agentapi.RecordPage, error)
}

// RecordList is a snapshot of the records loaded so far.
type RecordList struct {
	Keyword string
	Records []agentapi.RecordSummary
	Loaded  int
	Total   int
	HasMore bool
}

// =============================================================================
// RECORD BROWSER
// =============================================================================

// RecordBrowser pages through the conversation records of an agent, newest
// first, optionally filtered by keyword. Search restarts the list; More
// appends the next page. Like Paginator it runs one fetch at a time and
// discards pages that arrive after a new search started.
type RecordBrowser struct {
	mu sync.Mutex

	lister  RecordLister
	perPage int

	generation uint64
	keyword    string
	page       int
	loaded     int
	total      int
	inFlight   bool
	records    []agentapi.RecordSummary
}

// NewRecordBrowser creates a browser using lister. perPage <= 0 selects
// DefaultRecordsPerPage.
func NewRecordBrowser(lister RecordLister, perPage int) *RecordBrowser {
	if perPage <= 0 {
		perPage = DefaultRecordsPerPage
	}
	return &RecordBrowser{lister: lister, perPage: perPage}
}

// Search clears the list and loads the first page matching keyword.
func (b *RecordBrowser) Search(ctx context.Context, scope Scope, keyword string) (*RecordList, error) {
	b.mu.Lock()
	b.generation++
	b.keyword = strings.TrimSpace(keyword)
	b.page = 0
	b.loaded = 0
	b.total = 0
	b.inFlight = false
	b.records = nil
	b.mu.Unlock()

	return b.fetch(ctx, scope, 1)
}

// More loads the page after the last loaded one. It returns ErrNoMore once
// every record has been listed.
func (b *RecordBrowser) More(ctx context.Context, scope Scope) (*RecordList, error) {
	b.mu.Lock()
	if b.page > 0 && b.loaded >= b.total {
		b.mu.Unlock()
		return nil, ErrNoMore
	}
	next := b.page + 1
	b.mu.Unlock()
	return b.fetch(ctx, scope, next)
}

func (b *RecordBrowser) fetch(ctx context.Context, scope Scope, page int) (*RecordList, error) {
	b.mu.Lock()
	if b.inFlight {
		b.mu.Unlock()
		return nil, ErrInFlight
	}
	b.inFlight = true
	generation, keyword := b.generation, b.keyword
	b.mu.Unlock()

	resp, err := b.lister.ListChatRecords(ctx, agentapi.RecordQuery{
		AgentID: scope.AgentID,
		Meta:    agentapi.Meta{UserID: scope.UserID},
		Page:    page,
		PerPage: b.perPage,
		Keyword: keyword,
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != generation {
		return nil, ErrStale
	}
	b.inFlight = false
	if err != nil {
		return nil, err
	}

	b.records = appendRecords(b.records, resp.Records)
	b.loaded += resp.Rows
	b.total = resp.Total
	b.page = page
	return b.snapshotLocked(), nil
}

// appendRecords appends the records of batch not already in list.
func appendRecords(list, batch []agentapi.RecordSummary) []agentapi.RecordSummary {
	seen := make(map[model.RecordID]struct{}, len(list))
	for _, r := range list {
		seen[r.ID] = struct{}{}
	}
	for _, r := range batch {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		list = append(list, r)
	}
	return list
}

// List returns the records loaded so far.
func (b *RecordBrowser) List() *RecordList {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// InFlight reports whether a fetch is running.
func (b *RecordBrowser) InFlight() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

func (b *RecordBrowser) snapshotLocked() *RecordList {
	return &RecordList{
		Keyword: b.keyword,
		Records: append([]agentapi.RecordSummary(nil), b.records...),
		Loaded:  b.loaded,
		Total:   b.total,
		HasMore: b.loaded < b.total,
	}
}
