// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/agentlz/agentlz-tui/internal/agentapi"
	"github.com/agentlz/agentlz-tui/internal/model"
)

// DefaultPerPage is the number of history rows requested per page.
const DefaultPerPage = 25

// Error variables for paginator preconditions.
var (
	// ErrNoRecord indicates there is no conversation record to page through.
	ErrNoRecord = errors.New("no conversation record selected")

	// ErrInFlight indicates a fetch is already running. The call was a no-op.
	ErrInFlight = errors.New("history fetch already in flight")

	// ErrStale indicates the page arrived after the record changed and was
	// discarded.
	ErrStale = errors.New("history page is stale")

	// ErrNoMore indicates every row of the record has been loaded.
	ErrNoMore = errors.New("no more history")
)

// Fetcher loads one page of session history.
type Fetcher interface {
	ListSessionHistory(ctx context.Context, q agentapi.HistoryQuery) (*agentapi.HistoryPage, error)
}

// Scope carries the agent and user sent with every history request.
type Scope struct {
	AgentID *int64
	UserID  string
}

// Options configures a Paginator.
type Options struct {
	// PerPage is the page size (default: 25).
	PerPage int

	// Now supplies the fallback timestamp for rows without one.
	Now func() time.Time

	Logger *slog.Logger
}

// Result is one page applied to the paginator.
type Result struct {
	Record   model.RecordID
	Page     int
	Messages []model.Message

	// Kind is ChangeReplace for the first page and ChangePrepend after.
	Kind model.ChangeKind

	LoadedCount int
	Total       int
	HasMore     bool
}

// Status is a snapshot of the paginator counters.
type Status struct {
	Record      model.RecordID
	Page        int
	LoadedCount int
	Total       int
	HasMore     bool
	InFlight    bool
}

// stamp identifies the record and reset generation a fetch was issued for.
type stamp struct {
	record     model.RecordID
	generation uint64
}

// =============================================================================
// PAGINATOR
// =============================================================================

// Paginator pages through the history of one record at a time.
type Paginator struct {
	mu sync.Mutex

	fetcher Fetcher
	perPage int
	now     func() time.Time
	logger  *slog.Logger

	current  stamp
	page     int
	loaded   int
	total    int
	inFlight bool
	rows     []agentapi.HistoryRow
}

// NewPaginator creates a paginator using fetcher.
func NewPaginator(fetcher Fetcher, opts Options) *Paginator {
	p := &Paginator{
		fetcher: fetcher,
		perPage: opts.PerPage,
		now:     opts.Now,
		logger:  opts.Logger,
	}
	if p.perPage <= 0 {
		p.perPage = DefaultPerPage
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Reset switches the paginator to record and clears every counter. Any fetch
// still running for the previous record becomes stale.
func (p *Paginator) Reset(record model.RecordID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = stamp{record: record, generation: p.current.generation + 1}
	p.page = 0
	p.loaded = 0
	p.total = 0
	p.inFlight = false
	p.rows = nil
}

// Fetch loads page for the current record. Page 1 replaces the page buffer
// and restarts the loaded count; later pages append to both.
//
// A concurrent call returns ErrInFlight without doing anything. A failed
// request leaves every counter untouched and returns the fetch error.
func (p *Paginator) Fetch(ctx context.Context, scope Scope, page int) (*Result, error) {
	if page < 1 {
		page = 1
	}

	p.mu.Lock()
	if !p.current.record.IsSet() {
		p.mu.Unlock()
		return nil, ErrNoRecord
	}
	if p.inFlight {
		p.mu.Unlock()
		return nil, ErrInFlight
	}
	issued := p.current
	p.inFlight = true
	p.mu.Unlock()

	resp, err := p.fetcher.ListSessionHistory(ctx, agentapi.HistoryQuery{
		AgentID:  scope.AgentID,
		Meta:     agentapi.Meta{UserID: scope.UserID},
		RecordID: int64(issued.record),
		Page:     page,
		PerPage:  p.perPage,
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != issued {
		p.logger.Debug("discarding stale history page",
			"record", issued.record, "page", page, "current", p.current.record)
		return nil, ErrStale
	}
	p.inFlight = false

	if err != nil {
		var fetchErr *agentapi.HistoryFetchError
		if !errors.As(err, &fetchErr) {
			err = &agentapi.HistoryFetchError{RecordID: issued.record, Page: page, Err: err}
		}
		return nil, err
	}

	if page == 1 {
		p.rows = append([]agentapi.HistoryRow(nil), resp.Rows...)
		p.loaded = len(resp.Rows)
	} else {
		p.rows = append(p.rows, resp.Rows...)
		p.loaded += len(resp.Rows)
	}
	p.total = resp.Total
	p.page = page

	kind := model.ChangePrepend
	if page == 1 {
		kind = model.ChangeReplace
	}
	return &Result{
		Record:      issued.record,
		Page:        page,
		Messages:    Normalize(resp.Rows, p.now()),
		Kind:        kind,
		LoadedCount: p.loaded,
		Total:       p.total,
		HasMore:     p.loaded < p.total,
	}, nil
}

// Next fetches the page after the last loaded one. It returns ErrNoMore when
// the record is exhausted.
func (p *Paginator) Next(ctx context.Context, scope Scope) (*Result, error) {
	p.mu.Lock()
	if p.page > 0 && p.loaded >= p.total {
		p.mu.Unlock()
		return nil, ErrNoMore
	}
	next := p.page + 1
	p.mu.Unlock()
	return p.Fetch(ctx, scope, next)
}

// HasMore reports whether more rows exist than have been loaded.
func (p *Paginator) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded < p.total
}

// InFlight reports whether a fetch is running.
func (p *Paginator) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// Record returns the record the paginator is bound to.
func (p *Paginator) Record() model.RecordID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.record
}

// Rows returns a copy of the raw rows loaded for the current record, oldest
// page last.
func (p *Paginator) Rows() []agentapi.HistoryRow {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]agentapi.HistoryRow(nil), p.rows...)
}

// Status returns a snapshot of the counters.
func (p *Paginator) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Record:      p.current.record,
		Page:        p.page,
		LoadedCount: p.loaded,
		Total:       p.total,
		HasMore:     p.loaded < p.total,
		InFlight:    p.inFlight,
	}
}
