// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes the open conversation to a file.
//
// # Supported Formats
//
//   - Markdown: YAML frontmatter, one heading per message
//   - JSON: the full Conversation value
//
// # Usage
//
//	conv := export.NewConversation(ctrl.Agent(), ctrl.RecordID(), ctrl.Snapshot(), time.Now())
//	exp, _ := export.ForFormat("md", nil)
//	path, err := export.ToFile(conv, exp, nil)
package export
