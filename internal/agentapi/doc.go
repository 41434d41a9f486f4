// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agentapi is the HTTP client for the agent console backend.
//
// It opens the streaming chat endpoint and decodes its event stream, and it
// wraps the plain JSON endpoints used around a conversation: session history
// pages, the list of past conversation records and the accessible agents.
//
// # Key Types
//
//   - Client: HTTP client with bearer auth, tenant header and request ids
//   - Decoder: Incremental decoder turning stream bytes into Events
//   - Event: One decoded stream event (delta, text, done, record id)
//   - ChatRequest: Body of the streaming chat call
//   - HistoryRow: One raw row of a session history page
//
// # Usage
//
// Open a stream and drain it:
//
//	client := agentapi.NewClient(agentapi.Options{BaseURL: base, Token: tok})
//	dec, err := client.ChatStream(ctx, agentapi.ChatRequest{Message: "hello"})
//	if err != nil {
//	    return err // *StreamOpenError when the server refused the stream
//	}
//	defer dec.Close()
//	for {
//	    ev, err := dec.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// # Errors
//
// StreamOpenError, HistoryFetchError and APIError carry the HTTP status and
// unwrap to the sentinels ErrUnauthorized, ErrForbidden, ErrValidation and
// ErrServer, so callers can use errors.Is.
package agentapi
