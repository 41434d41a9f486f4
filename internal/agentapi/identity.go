// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agentapi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoUserClaim indicates the token carries no recognizable user id.
var ErrNoUserClaim = errors.New("token has no user id claim")

// userClaims lists the claims that may carry the user id, in priority order.
var userClaims = []string{"user_id", "uid", "id", "sub"}

// UserIDFromToken extracts the user id from a bearer token's claims.
//
// The signature is NOT verified: the token is only read to fill meta.user_id
// in requests, and the backend remains the authority on its validity.
func UserIDFromToken(token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return "", ErrNoUserClaim
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	for _, name := range userClaims {
		v, ok := claims[name]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				return val, nil
			}
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64), nil
		}
	}
	return "", ErrNoUserClaim
}
