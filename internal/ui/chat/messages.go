// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/agentlz/agentlz-tui/internal/history"
	"github.com/agentlz/agentlz-tui/internal/model"
	"github.com/agentlz/agentlz-tui/internal/session"
)

// =============================================================================
// TRANSCRIPT MESSAGES
// =============================================================================

// transcriptMsg carries the transcript changes queued since the last cycle.
type transcriptMsg struct {
	changes []model.Change
}

// turnDoneMsg signals that a streamed reply ended.
type turnDoneMsg struct {
	turn *session.Turn
	err  error
}

// =============================================================================
// HISTORY MESSAGES
// =============================================================================

// historyOp names what a history load was for.
type historyOp int

const (
	opSelectRecord historyOp = iota
	opLoadOlder
)

// historyLoadedMsg reports the end of a history page load. fired is false
// when a scroll to the top did not need a page.
type historyLoadedMsg struct {
	op    historyOp
	fired bool
	res   *history.Result
	err   error
}

// recordsLoadedMsg carries the record browser listing.
type recordsLoadedMsg struct {
	list  *history.RecordList
	reset bool
	err   error
}

// agentsLoadedMsg carries the accessible agents.
type agentsLoadedMsg struct {
	agents []model.AgentInfo
	total  int
	err    error
}

// =============================================================================
// STATUS MESSAGES
// =============================================================================

// copiedMsg reports a clipboard write.
type copiedMsg struct {
	err error
}

// exportedMsg reports a conversation export.
type exportedMsg struct {
	path string
	err  error
}

// clearNoticeMsg hides the notice with the matching sequence number.
type clearNoticeMsg struct {
	seq int
}
