// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
)

// Error variables for session operations.
var (
	// ErrStateViolation is matched by every *StateViolation.
	ErrStateViolation = errors.New("operation not allowed in current state")

	// ErrEmptyMessage indicates Send was called with blank text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoAgent indicates no agent has been selected.
	ErrNoAgent = errors.New("no agent selected")

	// ErrStopped is the result of a turn that ended by Stop, a new
	// conversation, or cancellation of the caller's context.
	ErrStopped = errors.New("stream stopped")
)

// StateViolation reports an operation attempted in a state that forbids it.
type StateViolation struct {
	Op    string
	State State
}

func (e *StateViolation) Error() string {
	return fmt.Sprintf("%s not allowed while %s", e.Op, e.State)
}

// Is makes errors.Is(err, ErrStateViolation) succeed.
func (e *StateViolation) Is(target error) bool {
	return target == ErrStateViolation
}
