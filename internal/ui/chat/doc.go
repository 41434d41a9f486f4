// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the conversation screen of the agentlz TUI.

The Model is a Bubble Tea model over a session.Controller. It never mutates
the transcript itself: Send, Stop, SelectRecord and friends go through the
controller, and the transcript's change notifications come back through a
queue that is drained once per update cycle.

# Rendering

Each drained batch re-renders the transcript once and hands the viewport to
a reconcile.Anchor, which keeps the reader in place when older history is
prepended and follows the bottom while a reply streams in.

# History

Scrolling to the top of an open conversation asks the controller for the
next older page. The history drawer (ctrl+r) lists past conversations with
keyword search and paging; the agent drawer (ctrl+g) switches agents.

# Key Bindings

	enter      send
	esc        stop the reply / close a drawer
	up/down    scroll
	pgup/pgdn  page
	ctrl+p     load older messages
	ctrl+n     new conversation
	ctrl+r     past conversations
	ctrl+g     agents
	ctrl+y     copy last reply
	ctrl+e     export the conversation as Markdown
	ctrl+c     quit
*/
package chat
