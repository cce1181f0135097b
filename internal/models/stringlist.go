// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package models

import (
	"database/sql/driver"
	"fmt"

	json "github.com/goccy/go-json"
)

// StringList is an ordered string collection stored as a JSONB array.
// Order is insertion order; duplicates are removed on write, keeping the
// first occurrence. Used for subcategories, locations, entities, and
// visual tags.
type StringList []string

// Dedup returns the list with duplicates removed, preserving first-seen
// order. Empty strings are dropped.
func (l StringList) Dedup() StringList {
	if len(l) == 0 {
		return l
	}
	seen := make(map[string]struct{}, len(l))
	out := make(StringList, 0, len(l))
	for _, s := range l {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Head returns at most n leading elements.
func (l StringList) Head(n int) StringList {
	if len(l) <= n {
		return l
	}
	return l[:n]
}

// Value implements driver.Valuer, serialising to a JSONB array with
// duplicates removed. A nil list stores as an empty array, not SQL NULL.
func (l StringList) Value() (driver.Value, error) {
	b, err := json.Marshal(l.Dedup())
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSONB columns.
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("stringlist: cannot scan %T", src)
	}
}
