// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package ai

import (
	"strings"

	"github.com/keepstack/keepstack/internal/errs"
)

// ExtractJSON pulls the JSON object out of a model reply. Models frequently
// wrap output in ```json fences or prepend prose despite instructions; this
// strips fences and trims to the outermost braces.
func ExtractJSON(content string) ([]byte, error) {
	s := strings.TrimSpace(content)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, errs.E(errs.Validation, "model reply contains no json object")
	}
	return []byte(s[start : end+1]), nil
}
