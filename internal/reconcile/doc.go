// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reconcile merges history pages into the live transcript and keeps
// the scroll position stable while content is inserted above the viewport.
//
// # Key Types
//
//   - Reconciler: Applies a history page to the transcript as replace or prepend
//   - Anchor: Adjusts a Viewport after each transcript change
//   - Sentinel: Edge-triggered detector for "scrolled to the top"
//   - Viewport: The scrolling surface the anchor drives
//
// # Anchoring Rules
//
// After a prepend the offset moves down by exactly the height that was
// inserted, so the message under the user's eye stays put. After a replace
// the view jumps to the bottom. Appends and deltas follow the bottom, except
// for the single follow that a prepend suppresses.
package reconcile
