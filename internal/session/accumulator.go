// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/agentlz/agentlz-tui/internal/agentapi"
)

// =============================================================================
// DELTA ACCUMULATION
// =============================================================================

// run opens the stream for t and folds its events into the placeholder
// until Done, an error, or abort.
func (c *Controller) run(ctx context.Context, t *turn, req agentapi.ChatRequest) {
	dec, err := c.api.ChatStream(ctx, req)
	if err != nil {
		c.end(t, c.turnError(ctx, t, err))
		return
	}
	defer dec.Close()

	for {
		ev, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			c.end(t, c.turnError(ctx, t, err))
			return
		}
		if ev.Anomaly {
			c.logger.Debug("stream fragment was not an event object", "raw_len", len(ev.Delta))
		}
		if !c.accumulate(ctx, t, ev) {
			c.end(t, c.turnError(ctx, t, nil))
			return
		}
	}
}

// accumulate applies one event. It returns false once the turn should stop
// reading: after Done, or when the turn was aborted, cancelled or replaced.
//
// The abort check and the transcript write happen under t.mu, which abort
// also takes, so a write never lands after abort returns.
func (c *Controller) accumulate(ctx context.Context, t *turn, ev agentapi.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.aborted.Load() || ctx.Err() != nil {
		return false
	}

	c.mu.Lock()
	current := c.current == t
	if current && ev.RecordID.IsSet() && !c.record.IsSet() {
		c.record = ev.RecordID
		c.logger.Info("record assigned", "record", ev.RecordID)
	}
	c.mu.Unlock()
	if !current {
		return false
	}

	if id, delta := t.active(), ev.Content(); id != "" && delta != "" {
		c.transcript.AppendDelta(id, delta)
	}
	if ev.Done {
		t.clearActiveLocked()
		return false
	}
	return true
}

// turnError maps the error that ended t. A cancelled context is treated as
// a stop.
func (c *Controller) turnError(ctx context.Context, t *turn, err error) error {
	if ctx.Err() != nil && !t.aborted.Load() {
		t.abort()
	}
	if !t.aborted.Load() {
		return err
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return ErrStopped
	}
	return fmt.Errorf("%w: %w", ErrStopped, err)
}
