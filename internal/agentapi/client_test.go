// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agentapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlz/agentlz-tui/internal/model"
)

// =============================================================================
// ENVELOPE TESTS
// =============================================================================

func TestDecodeList_Envelopes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantIDs   []string
		wantTotal int
	}{
		{"data and total", `{"data":[{"id":1},{"id":2}],"total":12}`, []string{"1", "2"}, 12},
		{"nested rows", `{"data":{"rows":[{"id":"a"}],"total":"5"}}`, []string{"a"}, 5},
		{"top-level rows", `{"rows":[{"id":3}],"total":3}`, []string{"3"}, 3},
		{"bare array", `[{"id":1},{"id":2},{"id":3}]`, []string{"1", "2", "3"}, 3},
		{"missing total", `{"data":[{"id":1}]}`, []string{"1"}, 1},
		{"null data", `{"data":null,"total":0}`, nil, 0},
		{"empty", ``, nil, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rows, total, err := decodeList[HistoryRow]([]byte(tc.body))
			require.NoError(t, err)
			var ids []string
			for _, r := range rows {
				ids = append(ids, string(r.ID))
			}
			assert.Equal(t, tc.wantIDs, ids)
			assert.Equal(t, tc.wantTotal, total)
		})
	}
}

func TestDecodeList_Malformed(t *testing.T) {
	_, _, err := decodeList[HistoryRow]([]byte(`{"data":`))
	assert.Error(t, err)
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

func TestListSessionHistory(t *testing.T) {
	var got HistoryQuery
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/agent/chat/sessions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":7,"input":"a","output":"b","created_at":"2024-05-01T10:00:00Z"}],"total":1}`))
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL})
	page, err := client.ListSessionHistory(context.Background(), HistoryQuery{
		Meta:     Meta{UserID: "u1"},
		RecordID: 7,
		Page:     1,
		PerPage:  25,
	})
	require.NoError(t, err)

	require.Len(t, page.Rows, 1)
	assert.Equal(t, FlexString("7"), page.Rows[0].ID)
	assert.Equal(t, FlexString("a"), page.Rows[0].Input)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, int64(7), got.RecordID)
	assert.Equal(t, 25, got.PerPage)
	assert.Nil(t, got.AgentID)
}

func TestListSessionHistory_FailureIsHistoryFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"db down"}}`))
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL})
	_, err := client.ListSessionHistory(context.Background(), HistoryQuery{RecordID: 7, Page: 2})

	var fetchErr *HistoryFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, model.RecordID(7), fetchErr.RecordID)
	assert.Equal(t, 2, fetchErr.Page)
	assert.ErrorIs(t, err, ErrServer)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "db down", apiErr.Message)
}

func TestListChatRecords(t *testing.T) {
	var got RecordQuery
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agent/chat/history", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"data":[
			{"id":1,"record_id":"42","name":"first","created_at":"2024-05-01"},
			{"id":"9","name":"second"},
			{"id":"x","name":"broken"}
		],"total":30}`))
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL})
	page, err := client.ListChatRecords(context.Background(), RecordQuery{Page: 1, PerPage: 15, Keyword: "  deploy "})
	require.NoError(t, err)

	assert.Equal(t, "deploy", got.Keyword)
	assert.Equal(t, 3, page.Rows)
	assert.Equal(t, 30, page.Total)
	assert.Equal(t, []RecordSummary{
		{ID: 42, Name: "first", CreatedAt: "2024-05-01"},
		{ID: 9, Name: "second"},
	}, page.Records)
}

// =============================================================================
// AGENT TESTS
// =============================================================================

func TestListAccessibleAgents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "ops", r.URL.Query().Get("q"))
		assert.Equal(t, "50", r.URL.Query().Get("per_page"))
		w.Write([]byte(`{"data":{"rows":[
			{"id":3,"name":"Ops","description":"runbooks","tags":["infra"]},
			{"agent_id":"a-7","name":"Helper"}
		],"total":2}}`))
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL})
	agents, total, err := client.ListAccessibleAgents(context.Background(), " ops ", 1, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, total)
	require.Len(t, agents, 2)
	assert.Equal(t, model.AgentInfo{ID: "3", Name: "Ops", Description: "runbooks", Tags: []string{"infra"}}, agents[0])
	assert.Equal(t, "a-7", agents[1].ID)
}

// =============================================================================
// ERROR AND HEADER TESTS
// =============================================================================

func TestAPIError_Is(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{401, ErrUnauthorized},
		{403, ErrForbidden},
		{422, ErrValidation},
		{500, ErrServer},
		{503, ErrServer},
	}
	for _, tc := range tests {
		err := error(&APIError{Status: tc.status})
		if !errors.Is(err, tc.sentinel) {
			t.Errorf("status %d should match %v", tc.status, tc.sentinel)
		}
	}
	assert.False(t, errors.Is(&APIError{Status: 404}, ErrServer))
}

func TestErrorFromResponse_Fallbacks(t *testing.T) {
	assert.Equal(t, "bad input", errorFromResponse(422, []byte(`{"msg":"bad input"}`)).Message)
	assert.Equal(t, "plain text", errorFromResponse(500, []byte("plain text")).Message)
	assert.Equal(t, "Forbidden", errorFromResponse(403, nil).Message)
}

func TestClient_SetToken(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL + "/", Token: "old"})
	client.SetToken("new")
	_, _, err := client.ListAccessibleAgents(context.Background(), "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "Bearer new", auth)
}

func TestClient_TimeoutApplies(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Options{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.ListSessionHistory(context.Background(), HistoryQuery{RecordID: 1, Page: 1})

	var fetchErr *HistoryFetchError
	assert.ErrorAs(t, err, &fetchErr)
}

// =============================================================================
// IDENTITY TESTS
// =============================================================================

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return tok
}

func TestUserIDFromToken(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"numeric user_id", jwt.MapClaims{"user_id": 1024}, "1024"},
		{"string user_id", jwt.MapClaims{"user_id": "u-9"}, "u-9"},
		{"sub fallback", jwt.MapClaims{"sub": "alice"}, "alice"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := UserIDFromToken("Bearer " + signedToken(t, tc.claims))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestUserIDFromToken_Errors(t *testing.T) {
	_, err := UserIDFromToken("")
	assert.ErrorIs(t, err, ErrNoUserClaim)

	_, err = UserIDFromToken(signedToken(t, jwt.MapClaims{"role": "admin"}))
	assert.ErrorIs(t, err, ErrNoUserClaim)

	_, err = UserIDFromToken("not-a-jwt")
	assert.Error(t, err)
}
