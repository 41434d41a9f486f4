// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history loads the prior turns of a conversation record page by page.
//
// A Paginator tracks, per record, how many rows have been loaded and how many
// exist. Fetches are single-flight and stamped with the record and a
// generation counter, so a page that arrives after the user switched to
// another record is discarded instead of being merged into the wrong
// conversation.
//
// # Key Types
//
//   - Paginator: Page counters, single-flight guard and page buffer
//   - Result: One applied page, normalized into messages
//   - Scope: Agent and user sent with every history request
//
// # Usage
//
//	p := history.NewPaginator(client, history.Options{PerPage: 25})
//	p.Reset(recordID)
//	res, err := p.Fetch(ctx, scope, 1)      // Replace
//	if p.HasMore() {
//	    res, err = p.Next(ctx, scope)       // Prepend
//	}
package history
