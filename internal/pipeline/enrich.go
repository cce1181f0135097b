// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package pipeline

import (
	"fmt"
	"strings"

	"github.com/keepstack/keepstack/internal/database"
	"github.com/keepstack/keepstack/internal/ingest"
)

const enrichSnippetLimit = 200

// BuildContentText produces the deterministic text block stored on the
// content row and handed to the classifier: the platform metadata fields,
// non-empty ones only, in a fixed order.
func BuildContentText(meta *ingest.Metadata) string {
	var parts []string
	add := func(s *string) {
		if s != nil {
			if t := strings.TrimSpace(*s); t != "" {
				parts = append(parts, t)
			}
		}
	}
	add(meta.Title)
	add(meta.Caption)
	add(meta.Description)
	return strings.Join(parts, "\n\n")
}

// BuildEmbeddingText produces the text that gets embedded. It leads with the
// most discriminative signal (main topic, then title when it adds anything),
// then the structured analysis, so nearby vectors mean nearby subjects rather
// than similar boilerplate.
//
// When the analysis carries no topic and ingestion found no title, it falls
// back to a caption or description snippet, and as a last resort the URL, so
// every READY item is embeddable.
func BuildEmbeddingText(url string, meta *ingest.Metadata, a *database.Analysis) string {
	var parts []string

	topic := ""
	if a.TopicMain != nil {
		topic = strings.TrimSpace(*a.TopicMain)
	}
	if topic != "" {
		parts = append(parts, topic)
	}
	title := ""
	if meta.Title != nil {
		title = strings.TrimSpace(*meta.Title)
	}
	if title != "" && !strings.EqualFold(title, topic) {
		parts = append(parts, title)
	}

	parts = append(parts, fmt.Sprintf("Category: %s", a.Category))
	if tags := a.Subcategories.Dedup().Head(5); len(tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(tags, ", "))
	}
	if locs := a.Locations.Dedup().Head(3); len(locs) > 0 {
		parts = append(parts, "Location: "+strings.Join(locs, ", "))
	}

	if topic == "" && title == "" {
		if s := snippet(meta.Caption); s != "" {
			parts = append(parts, s)
		} else if s := snippet(meta.Description); s != "" {
			parts = append(parts, s)
		} else {
			parts = append(parts, url)
		}
	}

	return strings.Join(parts, ". ")
}

// snippet trims and truncates an optional field to enrichSnippetLimit runes.
func snippet(s *string) string {
	if s == nil {
		return ""
	}
	t := strings.TrimSpace(*s)
	if runes := []rune(t); len(runes) > enrichSnippetLimit {
		return string(runes[:enrichSnippetLimit])
	}
	return t
}
