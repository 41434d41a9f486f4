// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"
	"sync/atomic"
)

// =============================================================================
// TURN LIFECYCLE (THREAD-SAFE)
// =============================================================================

// turn holds the state of one streaming reply. The stream goroutine and
// Stop both touch it, so every field is guarded.
//
// mu is held while a delta is written into the transcript. abort takes the
// same lock, so once abort returns no further write can land. activeID is
// written under mu but may be read without it.
type turn struct {
	mu       sync.Mutex
	activeID atomic.Pointer[string]
	aborted  atomic.Bool

	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc

	// clears counts how many times activeID went from set to empty.
	clears int

	once sync.Once
	done chan struct{}
	err  error
}

func newTurn(activeID string, cancel context.CancelFunc) *turn {
	t := &turn{
		cancelFunc: cancel,
		done:       make(chan struct{}),
	}
	t.activeID.Store(&activeID)
	return t
}

// active returns the placeholder id deltas go to, or "".
func (t *turn) active() string {
	if id := t.activeID.Load(); id != nil {
		return *id
	}
	return ""
}

// cancel invokes the stored cancel function and clears it. Safe to call
// multiple times.
func (t *turn) cancel() {
	t.cancelMu.Lock()
	defer t.cancelMu.Unlock()
	if t.cancelFunc != nil {
		t.cancelFunc()
		t.cancelFunc = nil
	}
}

// abort marks the turn aborted and cancels its transport. It blocks until
// any delta being written has landed.
func (t *turn) abort() {
	t.mu.Lock()
	t.aborted.Store(true)
	t.clearActiveLocked()
	t.mu.Unlock()
	t.cancel()
}

func (t *turn) clearActiveLocked() {
	if t.active() != "" {
		t.activeID.Store(nil)
		t.clears++
	}
}

// finish records the outcome and releases waiters. Only the first call has
// any effect.
func (t *turn) finish(err error) bool {
	first := false
	t.once.Do(func() {
		first = true
		t.mu.Lock()
		t.clearActiveLocked()
		t.mu.Unlock()
		t.cancel()
		t.err = err
		close(t.done)
	})
	return first
}

// =============================================================================
// TURN HANDLE
// =============================================================================

// Turn is the caller's handle on a streaming reply started by Send.
type Turn struct {
	// UserID and AssistantID are the local ids of the two transcript rows
	// appended for this turn.
	UserID      string
	AssistantID string

	t *turn
}

// Done is closed when the turn has ended.
func (h *Turn) Done() <-chan struct{} {
	return h.t.done
}

// Wait blocks until the turn ends and returns its outcome: nil on a
// completed reply, an error wrapping ErrStopped when stopped, or the
// transport error that ended it.
func (h *Turn) Wait() error {
	<-h.t.done
	return h.t.err
}

// Err returns the outcome without blocking. It is nil while the turn runs.
func (h *Turn) Err() error {
	select {
	case <-h.t.done:
		return h.t.err
	default:
		return nil
	}
}
