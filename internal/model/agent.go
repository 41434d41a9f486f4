// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"strings"
)

// =============================================================================
// AGENT INFO
// =============================================================================

// AgentInfo describes an agent the current user may chat with.
type AgentInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// NumericID returns the agent id as an integer when it is numeric.
// Requests omit agent_id for agents with non-numeric ids.
func (a AgentInfo) NumericID() (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(a.ID), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Label returns the name to display for the agent.
func (a AgentInfo) Label() string {
	if a.Name != "" {
		return a.Name
	}
	if a.ID != "" {
		return "Agent " + a.ID
	}
	return "Agent"
}

// IsZero reports whether no agent is set.
func (a AgentInfo) IsZero() bool {
	return a.ID == ""
}

// FindAgent returns the agent with the given id.
func FindAgent(agents []AgentInfo, id string) (AgentInfo, bool) {
	for _, a := range agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentInfo{}, false
}
