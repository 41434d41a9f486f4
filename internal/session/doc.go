// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives one conversation with an agent.
//
// The Controller owns the transcript, the history paginator and the
// streaming turn. It enforces a two-state machine:
//
//   - Idle: no stream is open. Send, SelectRecord, NewConversation and
//     history loads are allowed.
//   - Streaming: exactly one assistant reply is being accumulated. Only
//     Stop, NewConversation and reads are allowed.
//
// # Usage
//
//	ctrl := session.NewController(client, session.Config{
//	    Agent:  agent,
//	    UserID: userID,
//	})
//
//	turn, err := ctrl.Send(ctx, "hello")
//	if err != nil {
//	    return err
//	}
//	if err := turn.Wait(); err != nil && !errors.Is(err, session.ErrStopped) {
//	    return err
//	}
//
// Views observe the transcript through ctrl.Transcript().Subscribe. A
// subscriber runs on the goroutine that mutated the transcript and must not
// call back into the Controller's mutating methods synchronously.
package session
