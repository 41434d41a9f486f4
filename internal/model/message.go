// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// ParseRole maps a server-provided role string onto a Role.
// Unknown or empty values fall back to RoleAssistant.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser
	case RoleSystem:
		return RoleSystem
	default:
		return RoleAssistant
	}
}

// =============================================================================
// RECORD ID
// =============================================================================

// RecordID identifies a server-side conversation record.
// The zero value means "no record yet".
type RecordID int64

// NoRecord is the null record.
const NoRecord RecordID = 0

// IsSet reports whether the record id refers to a server record.
func (r RecordID) IsSet() bool {
	return r != NoRecord
}

// String returns the decimal form of the id, or "-" for the null record.
func (r RecordID) String() string {
	if r == NoRecord {
		return "-"
	}
	return strconv.FormatInt(int64(r), 10)
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a transcript.
//
// CreatedAt is a logical timestamp in Unix milliseconds and is the only sort
// key. Content only changes while the message is the active streaming target.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// LocalUserID returns the id of the user message of a locally sent turn.
func LocalUserID(ts int64) string {
	return strconv.FormatInt(ts, 10) + "-u"
}

// LocalAssistantID returns the id of the assistant placeholder of a locally
// sent turn.
func LocalAssistantID(ts int64) string {
	return strconv.FormatInt(ts, 10) + "-a"
}

// NewUserMessage creates the user half of a local turn.
func NewUserMessage(ts int64, content string) Message {
	return Message{
		ID:        LocalUserID(ts),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: ts,
	}
}

// NewPlaceholder creates the empty assistant message that receives stream
// deltas for the turn started at ts. It shares the user message's timestamp,
// so insertion order keeps it after the user message.
func NewPlaceholder(ts int64) Message {
	return Message{
		ID:        LocalAssistantID(ts),
		Role:      RoleAssistant,
		CreatedAt: ts,
	}
}

// Time returns CreatedAt as a time.Time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.CreatedAt)
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	content := strings.Join(strings.Fields(m.Content), " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
