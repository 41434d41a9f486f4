// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"fmt"

	"github.com/agentlz/agentlz-tui/internal/history"
	"github.com/agentlz/agentlz-tui/internal/model"
)

// Reconciler folds history pages into a transcript.
type Reconciler struct {
	transcript *model.Transcript
}

// NewReconciler creates a reconciler writing into t.
func NewReconciler(t *model.Transcript) *Reconciler {
	return &Reconciler{transcript: t}
}

// ApplyPage merges a fetched page. Page 1 replaces the transcript, later
// pages are unioned in by id and re-sorted, so applying the same page twice
// has no further effect. It returns the number of new messages.
func (r *Reconciler) ApplyPage(res *history.Result) (int, error) {
	if res == nil {
		return 0, nil
	}
	kind := res.Kind
	if kind != model.ChangeReplace && kind != model.ChangePrepend {
		return 0, fmt.Errorf("apply page %d: unexpected change kind %s", res.Page, kind)
	}
	return r.transcript.Merge(res.Messages, kind)
}
