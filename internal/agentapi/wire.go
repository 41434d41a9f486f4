// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agentapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// =============================================================================
// LENIENT SCALARS
// =============================================================================

// FlexInt decodes an integer sent either as a JSON number or as a numeric
// string. Values that are null, empty or not numeric leave Valid false
// instead of failing the surrounding document.
type FlexInt struct {
	Value int64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	*f = FlexInt{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.Value, f.Valid = n, true
		return nil
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(x) && !math.IsInf(x, 0) && x == math.Trunc(x) {
		f.Value, f.Valid = int64(x), true
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.Value, 10)), nil
}

// FlexString decodes a JSON string or number into its string form. Null
// decodes to the empty string.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}

// =============================================================================
// LIST ENVELOPES
// =============================================================================

// listEnvelope covers {data: [...], total}, {data: {rows, total}} and
// {rows, total}.
type listEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Rows  json.RawMessage `json:"rows"`
	Total FlexInt         `json:"total"`
}

// decodeList extracts the items and total of a paginated response. A bare
// JSON array is accepted too; a missing total defaults to the item count.
func decodeList[T any](raw []byte) ([]T, int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, 0, nil
	}

	var items []T
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, 0, fmt.Errorf("failed to parse list: %w", err)
		}
		return items, len(items), nil
	}

	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, fmt.Errorf("failed to parse list envelope: %w", err)
	}

	total := env.Total
	data := bytes.TrimSpace(env.Data)
	switch {
	case len(data) > 0 && data[0] == '[':
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, 0, fmt.Errorf("failed to parse data: %w", err)
		}
	case len(data) > 0 && data[0] == '{':
		var inner listEnvelope
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, 0, fmt.Errorf("failed to parse data: %w", err)
		}
		rows := inner.Rows
		if len(rows) == 0 {
			rows = inner.Data
		}
		if len(bytes.TrimSpace(rows)) > 0 && !bytes.Equal(bytes.TrimSpace(rows), []byte("null")) {
			if err := json.Unmarshal(rows, &items); err != nil {
				return nil, 0, fmt.Errorf("failed to parse rows: %w", err)
			}
		}
		if inner.Total.Valid {
			total = inner.Total
		}
	case len(env.Rows) > 0:
		if err := json.Unmarshal(env.Rows, &items); err != nil {
			return nil, 0, fmt.Errorf("failed to parse rows: %w", err)
		}
	}

	if !total.Valid {
		return items, len(items), nil
	}
	return items, int(total.Value), nil
}
