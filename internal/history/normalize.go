// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agentlz/agentlz-tui/internal/agentapi"
	"github.com/agentlz/agentlz-tui/internal/model"
)

// timeLayouts are the timestamp formats accepted in created_at and time.
// Layouts without a zone are read as local time.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05",
}

// Normalize maps raw history rows onto transcript messages.
//
// A row with a non-blank input yields a user message at its timestamp, and a
// non-blank output yields an assistant message one millisecond later. A row
// with neither yields one message from content (or message) with the row's
// role, defaulting to assistant. Rows with no text at all are dropped.
//
// The timestamp comes from created_at, else time, else now. The result is
// stable-sorted by timestamp.
func Normalize(rows []agentapi.HistoryRow, now time.Time) []model.Message {
	out := make([]model.Message, 0, 2*len(rows))
	for i, row := range rows {
		ts := rowTimestamp(row, now)
		key := strings.TrimSpace(string(row.ID))
		if key == "" {
			key = fmt.Sprintf("anon-%d-%d", ts, i)
		}

		input, output := string(row.Input), string(row.Output)
		hasInput := strings.TrimSpace(input) != ""
		hasOutput := strings.TrimSpace(output) != ""

		if hasInput {
			out = append(out, model.Message{
				ID:        key + "-u",
				Role:      model.RoleUser,
				Content:   input,
				CreatedAt: ts,
			})
		}
		if hasOutput {
			out = append(out, model.Message{
				ID:        key + "-a",
				Role:      model.RoleAssistant,
				Content:   output,
				CreatedAt: ts + 1,
			})
		}
		if hasInput || hasOutput {
			continue
		}

		content := string(row.Content)
		if content == "" {
			content = string(row.Message)
		}
		if content == "" {
			continue
		}
		out = append(out, model.Message{
			ID:        key + "-m",
			Role:      model.ParseRole(row.Role),
			Content:   content,
			CreatedAt: ts,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

// rowTimestamp returns the row's logical timestamp in Unix milliseconds.
func rowTimestamp(row agentapi.HistoryRow, now time.Time) int64 {
	if ts, ok := ParseTimestamp(string(row.CreatedAt)); ok {
		return ts
	}
	if ts, ok := ParseTimestamp(string(row.Time)); ok {
		return ts
	}
	return now.UnixMilli()
}

// Integers in [minUnixSeconds, maxUnixSeconds) are Unix seconds (2001
// through year 5138); anything else is milliseconds or a logical tick.
const (
	minUnixSeconds = 1_000_000_000
	maxUnixSeconds = 100_000_000_000
)

// ParseTimestamp parses an ISO-8601 style timestamp, a date, or a Unix
// time in seconds or milliseconds. The result is in milliseconds.
func ParseTimestamp(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n >= minUnixSeconds && n < maxUnixSeconds {
			return n * 1000, true
		}
		return n, true
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.UnixMilli(), true
		}
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UnixMilli(), true
	}
	return 0, false
}
