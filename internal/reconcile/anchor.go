// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"sync"

	"github.com/agentlz/agentlz-tui/internal/model"
)

// =============================================================================
// VIEWPORT
// =============================================================================

// Viewport is a vertically scrolling surface measured in lines.
type Viewport interface {
	// TotalLines is the height of the rendered content.
	TotalLines() int
	// YOffset is the index of the first visible line.
	YOffset() int
	SetYOffset(offset int)
	GotoBottom()
}

// AtTop reports whether vp is scrolled to within threshold lines of the top.
func AtTop(vp Viewport, threshold int) bool {
	return vp.YOffset() <= threshold
}

// =============================================================================
// ANCHOR
// =============================================================================

// Anchor keeps a Viewport positioned across transcript changes.
type Anchor struct {
	mu sync.Mutex
	vp Viewport

	// suppressFollow is set by a prepend and cancels exactly one
	// follow-to-bottom in the same update cycle.
	suppressFollow bool

	// follow is cleared while the user has scrolled away from the bottom.
	follow bool
}

// NewAnchor creates an anchor driving vp.
func NewAnchor(vp Viewport) *Anchor {
	return &Anchor{vp: vp, follow: true}
}

// Apply re-renders the viewport through rerender and positions it for a
// change of the given kind. Changes delivered together should be applied in
// order and closed with EndCycle.
func (a *Anchor) Apply(kind model.ChangeKind, rerender func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prevHeight := a.vp.TotalLines()
	prevOffset := a.vp.YOffset()
	if rerender != nil {
		rerender()
	}

	switch kind {
	case model.ChangePrepend:
		a.vp.SetYOffset(prevOffset + (a.vp.TotalLines() - prevHeight))
		a.suppressFollow = true
	case model.ChangeReplace, model.ChangeClear:
		a.suppressFollow = false
		a.follow = true
		a.vp.GotoBottom()
	default:
		if a.suppressFollow {
			a.suppressFollow = false
			a.vp.SetYOffset(prevOffset)
			return
		}
		if a.follow {
			a.vp.GotoBottom()
			return
		}
		a.vp.SetYOffset(prevOffset)
	}
}

// EndCycle closes one update cycle. A prepend only suppresses a follow
// within the cycle it happened in.
func (a *Anchor) EndCycle() {
	a.mu.Lock()
	a.suppressFollow = false
	a.mu.Unlock()
}

// SetFollow pauses (false) or resumes (true) following the bottom. Views
// call it when the user scrolls away from or back to the bottom.
func (a *Anchor) SetFollow(follow bool) {
	a.mu.Lock()
	a.follow = follow
	a.mu.Unlock()
}

// Following reports whether appends currently follow the bottom.
func (a *Anchor) Following() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.follow
}

// =============================================================================
// TOP SENTINEL
// =============================================================================

// Sentinel detects the transition into the top region of the viewport.
// Remaining at the top does not fire again until the viewport has left the
// top region and come back.
type Sentinel struct {
	mu       sync.Mutex
	wasAtTop bool
}

// Observe records the current position and reports whether an older page
// should be requested: true only on a not-at-top to at-top transition while
// no fetch is in flight and more pages exist.
func (s *Sentinel) Observe(atTop, inFlight, hasMore bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rising := atTop && !s.wasAtTop
	s.wasAtTop = atTop
	return rising && !inFlight && hasMore
}

// Reset forgets the last position, e.g. after switching conversation.
func (s *Sentinel) Reset() {
	s.mu.Lock()
	s.wasAtTop = false
	s.mu.Unlock()
}
