// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockapi

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agentlz/agentlz-tui/internal/model"
)

// ErrRecordNotFound is returned for an unknown or foreign record.
var ErrRecordNotFound = errors.New("record not found")

// Agent is an agent the mock backend exposes.
type Agent struct {
	ID          int64
	Name        string
	Description string
	Tags        []string
}

// Info converts a to the client model.
func (a Agent) Info() model.AgentInfo {
	return model.AgentInfo{
		ID:          strconv.FormatInt(a.ID, 10),
		Name:        a.Name,
		Description: a.Description,
		Tags:        append([]string(nil), a.Tags...),
	}
}

// Turn is one question and answer stored in a record.
type Turn struct {
	ID        int64
	Input     string
	Output    string
	CreatedAt time.Time
}

// Record is a stored conversation.
type Record struct {
	ID        int64
	AgentID   int64
	UserID    string
	Name      string
	CreatedAt time.Time
	Turns     []Turn
}

// DefaultAgents is the agent catalogue a new Store starts with.
var DefaultAgents = []Agent{
	{ID: 1, Name: "Ops Assistant", Description: "Runbooks and incident triage", Tags: []string{"ops"}},
	{ID: 2, Name: "Docs Helper", Description: "Answers from the product manual", Tags: []string{"docs"}},
	{ID: 3, Name: "SQL Analyst", Description: "Explains and drafts queries", Tags: []string{"data"}},
}

// =============================================================================
// STORE
// =============================================================================

// Store keeps agents and records in memory.
type Store struct {
	mu       sync.Mutex
	agents   []Agent
	records  map[int64]*Record
	nextRec  int64
	nextTurn int64
	lastTurn time.Time
	now      func() time.Time
}

// NewStore creates a store seeded with agents.
func NewStore(agents []Agent, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		agents:   append([]Agent(nil), agents...),
		records:  make(map[int64]*Record),
		nextRec:  1,
		nextTurn: 1,
		now:      now,
	}
}

// Agent returns the agent with id.
func (s *Store) Agent(id int64) (Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// Agents returns one page of agents whose name or description contains
// query, and the number of matches.
func (s *Store) Agents(query string, page, perPage int) ([]Agent, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	var matched []Agent
	for _, a := range s.agents {
		if q == "" ||
			strings.Contains(strings.ToLower(a.Name), q) ||
			strings.Contains(strings.ToLower(a.Description), q) {
			matched = append(matched, a)
		}
	}
	return pageOf(matched, page, perPage), len(matched)
}

// StartTurn stores input for userID. A zero record creates a new record
// named after the input. The answer is filled in by FinishTurn.
func (s *Store) StartTurn(userID string, agentID, record int64, input string) (recordID, turnID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Turns are at least 2ms apart so the answer, stamped 1ms after its
	// question, never ties with the next question.
	now := s.now()
	if floor := s.lastTurn.Add(2 * time.Millisecond); now.Before(floor) {
		now = floor
	}
	rec, ok := s.records[record]
	switch {
	case record == 0:
		rec = &Record{
			ID:        s.nextRec,
			AgentID:   agentID,
			UserID:    userID,
			Name:      model.Message{Content: input}.Preview(40),
			CreatedAt: now,
		}
		s.records[rec.ID] = rec
		s.nextRec++
	case !ok || rec.UserID != userID:
		return 0, 0, ErrRecordNotFound
	}

	turn := Turn{ID: s.nextTurn, Input: input, CreatedAt: now}
	s.nextTurn++
	s.lastTurn = now
	rec.Turns = append(rec.Turns, turn)
	return rec.ID, turn.ID, nil
}

// FinishTurn stores the answer of a turn.
func (s *Store) FinishTurn(recordID, turnID int64, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return
	}
	for i := range rec.Turns {
		if rec.Turns[i].ID == turnID {
			rec.Turns[i].Output = output
			return
		}
	}
}

// AddRecord stores a finished conversation and returns its id.
func (s *Store) AddRecord(userID string, agentID int64, name string, turns []Turn) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &Record{
		ID:        s.nextRec,
		AgentID:   agentID,
		UserID:    userID,
		Name:      name,
		CreatedAt: s.now(),
	}
	s.nextRec++
	for _, t := range turns {
		t.ID = s.nextTurn
		s.nextTurn++
		if t.CreatedAt.IsZero() {
			t.CreatedAt = rec.CreatedAt
		}
		rec.Turns = append(rec.Turns, t)
	}
	if len(rec.Turns) > 0 {
		rec.CreatedAt = rec.Turns[0].CreatedAt
	}
	s.records[rec.ID] = rec
	return rec.ID
}

// Sessions returns one page of a record's turns, newest first, and the
// number of turns.
func (s *Store) Sessions(userID string, recordID int64, page, perPage int) ([]Turn, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recordID]
	if !ok || rec.UserID != userID {
		return nil, 0, ErrRecordNotFound
	}
	turns := make([]Turn, len(rec.Turns))
	for i, t := range rec.Turns {
		turns[len(turns)-1-i] = t
	}
	return pageOf(turns, page, perPage), len(turns), nil
}

// Records returns one page of userID's records, newest first. A non-nil
// agentID restricts to that agent; keyword matches the name or any turn.
func (s *Store) Records(userID string, agentID *int64, keyword string, page, perPage int) ([]Record, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kw := strings.ToLower(strings.TrimSpace(keyword))
	var matched []Record
	for _, rec := range s.records {
		if rec.UserID != userID {
			continue
		}
		if agentID != nil && rec.AgentID != *agentID {
			continue
		}
		if kw != "" && !rec.matches(kw) {
			continue
		}
		cp := *rec
		cp.Turns = nil
		matched = append(matched, cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return pageOf(matched, page, perPage), len(matched)
}

func (r *Record) matches(kw string) bool {
	if strings.Contains(strings.ToLower(r.Name), kw) {
		return true
	}
	for _, t := range r.Turns {
		if strings.Contains(strings.ToLower(t.Input), kw) || strings.Contains(strings.ToLower(t.Output), kw) {
			return true
		}
	}
	return false
}

func pageOf[T any](items []T, page, perPage int) []T {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
