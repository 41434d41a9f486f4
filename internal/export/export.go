// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentlz/agentlz-tui/internal/model"
	"github.com/agentlz/agentlz-tui/internal/util"
)

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("conversation has no messages")

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation is the exported view of a transcript.
type Conversation struct {
	Title      string          `json:"title"`
	Agent      model.AgentInfo `json:"agent"`
	Record     model.RecordID  `json:"record_id,omitempty"`
	Messages   []model.Message `json:"messages"`
	ExportedAt time.Time       `json:"exported_at"`
}

// NewConversation builds an export from a transcript snapshot. Empty
// assistant placeholders are dropped. The title is taken from the first
// user message.
func NewConversation(agent model.AgentInfo, record model.RecordID, msgs []model.Message, now time.Time) *Conversation {
	conv := &Conversation{
		Agent:      agent,
		Record:     record,
		ExportedAt: now,
	}
	for _, m := range msgs {
		if m.Role == model.RoleAssistant && m.IsEmpty() {
			continue
		}
		conv.Messages = append(conv.Messages, m)
		if conv.Title == "" && m.Role == model.RoleUser {
			conv.Title = m.Preview(60)
		}
	}
	if conv.Title == "" {
		conv.Title = "Conversation " + record.String()
	}
	return conv
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a conversation in one format.
type Exporter interface {
	// Export converts a conversation to the target format.
	Export(conv *Conversation) ([]byte, error)

	// FileExtension returns the file extension, e.g. ".md".
	FileExtension() string
}

// Options configures export behavior.
type Options struct {
	// OutputDir is where files are written. Default: current directory
	OutputDir string

	// IncludeMetadata adds a header with agent, record and counts.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message times.
	IncludeTimestamps bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

// ForFormat returns the exporter for format: "md", "markdown" or "json".
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// =============================================================================
// FILE OUTPUT
// =============================================================================

// ToFile exports conv with exporter into opts.OutputDir and returns the
// path written.
func ToFile(conv *Conversation, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if conv == nil || len(conv.Messages) == 0 {
		return "", ErrEmpty
	}

	content, err := exporter.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	filename := fmt.Sprintf("agentlz_%s_%s%s",
		sanitizeFilename(conv.Title),
		conv.ExportedAt.Format("20060102_150405"),
		exporter.FileExtension(),
	)
	path := filepath.Join(dir, filename)
	if err := util.WriteFileAtomic(path, content, util.SharedPerms); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// sanitizeFilename replaces characters that are invalid in file names on
// common platforms.
func sanitizeFilename(s string) string {
	const maxLen = 50
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	result := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			result = append(result, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			result = append(result, '_')
		case r < 32 || r == 127:
			result = append(result, '-')
		default:
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return "conversation"
	}
	return string(result)
}
