// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mockapi is an in-memory stand-in for the admin console backend.
//
// It serves the same four endpoints the client talks to (streaming chat,
// session history, record list and accessible agents) from a gin engine,
// authenticating requests with HS256 bearer tokens. It backs the
// cmd/mockserver binary and the end-to-end tests.
//
// # Usage
//
//	srv := mockapi.New(mockapi.Options{Secret: []byte("dev")})
//	token, _ := srv.IssueToken("1024", time.Hour)
//	http.ListenAndServe(":8080", srv.Handler())
package mockapi
