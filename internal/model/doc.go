// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types shared by the streaming client,
// the history paginator and the terminal views.
//
// # Key Types
//
//   - Message: Single message with id, role, content and logical timestamp
//   - Transcript: Ordered, observable list of messages for one conversation
//   - Change: Notification emitted by every transcript mutation
//   - RecordID: Server-assigned conversation record identifier
//   - AgentInfo: An agent the current user may chat with
//   - Role: Message role enumeration (user, assistant, system)
//
// # Usage
//
// Build a transcript and observe it:
//
//	t := model.NewTranscript()
//	unsubscribe := t.Subscribe(func(c model.Change) {
//	    fmt.Println(c.Kind, c.MessageID)
//	})
//	defer unsubscribe()
//
//	ts := time.Now().UnixMilli()
//	t.Append(model.NewUserMessage(ts, "Hello!"), model.NewPlaceholder(ts))
//	t.AppendDelta(model.LocalAssistantID(ts), "Hi")
//
// Merge a page of history:
//
//	t.Merge(page, model.ChangePrepend)
package model
