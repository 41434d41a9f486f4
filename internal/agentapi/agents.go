// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agentapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/agentlz/agentlz-tui/internal/model"
)

// DefaultAgentsPerPage is the page size of the agent picker.
const DefaultAgentsPerPage = 50

type wireAgent struct {
	ID          FlexString `json:"id"`
	AgentID     FlexString `json:"agent_id"`
	Name        FlexString `json:"name"`
	Description FlexString `json:"description"`
	Avatar      FlexString `json:"avatar"`
	Tags        []string   `json:"tags"`
}

// ListAccessibleAgents returns the agents the current user may chat with,
// optionally filtered by a search query.
func (c *Client) ListAccessibleAgents(ctx context.Context, query string, page, perPage int) ([]model.AgentInfo, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultAgentsPerPage
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	if q := strings.TrimSpace(query); q != "" {
		params.Set("q", q)
	}

	raw, err := c.doJSON(ctx, http.MethodGet, c.paths.agents, params, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("list agents: %w", err)
	}
	rows, total, err := decodeList[wireAgent](raw)
	if err != nil {
		return nil, 0, fmt.Errorf("list agents: %w", err)
	}

	agents := make([]model.AgentInfo, 0, len(rows))
	for _, r := range rows {
		id := string(r.ID)
		if id == "" {
			id = string(r.AgentID)
		}
		agents = append(agents, model.AgentInfo{
			ID:          id,
			Name:        string(r.Name),
			Description: string(r.Description),
			Avatar:      string(r.Avatar),
			Tags:        r.Tags,
		})
	}
	return agents, total, nil
}
