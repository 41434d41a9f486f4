// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides the visual building blocks of the agentlz TUI:
// the transcript viewport, message rendering, the status bar, the streaming
// spinner and the list pickers used for agents and past conversations.
//
// Components hold no session state. The chat model feeds them snapshots and
// decides when to re-render.
package components
