// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the agentlz packages:
// column-aware string truncation and wrapping for terminal output, and
// crash-safe file writes for the config, REPL history and export files.
//
//	title := util.TruncateWidth(record.Name, 32)
//	err := util.WriteFileAtomic(path, data, util.PrivatePerms)
package util
