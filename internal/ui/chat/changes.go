// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/agentlz/agentlz-tui/internal/model"
)

// =============================================================================
// CHANGE QUEUE
// =============================================================================

// changeQueue buffers transcript changes between update cycles. push never
// blocks, so it is safe as a transcript subscriber on the streaming
// goroutine.
type changeQueue struct {
	mu      sync.Mutex
	pending []model.Change
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newChangeQueue() *changeQueue {
	return &changeQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// push queues c and wakes the waiting command.
func (q *changeQueue) push(c model.Change) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain returns and clears the queued changes.
func (q *changeQueue) drain() []model.Change {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// wait returns a command that blocks until changes are queued and delivers
// them as one transcriptMsg. It returns nil after close.
func (q *changeQueue) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-q.wake:
		case <-q.done:
			return nil
		}
		return transcriptMsg{changes: q.drain()}
	}
}

// close releases a pending wait.
func (q *changeQueue) close() {
	q.once.Do(func() { close(q.done) })
}

// =============================================================================
// COALESCING
// =============================================================================

// changeRank orders kinds by how much of the view they invalidate.
func changeRank(k model.ChangeKind) int {
	switch k {
	case model.ChangeReplace, model.ChangeClear:
		return 3
	case model.ChangePrepend:
		return 2
	case model.ChangeAppend:
		return 1
	default:
		return 0
	}
}

// coalesce reduces a batch to the single kind the anchor should apply.
// grows is true when a prepend shares the batch with appended or streamed
// content, which is positioned after the prepend.
func coalesce(changes []model.Change) (kind model.ChangeKind, grows bool) {
	kind = model.ChangeDelta
	var sawPrepend, sawTail bool
	for _, c := range changes {
		switch c.Kind {
		case model.ChangePrepend:
			sawPrepend = true
		case model.ChangeAppend, model.ChangeDelta:
			sawTail = true
		case model.ChangeReplace, model.ChangeClear:
			// Everything before a reset is void.
			sawPrepend, sawTail = false, false
		}
		if changeRank(c.Kind) >= changeRank(kind) {
			kind = c.Kind
		}
	}
	return kind, kind == model.ChangePrepend && sawPrepend && sawTail
}
