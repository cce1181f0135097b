// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/keepstack/keepstack/internal/logging"
	"github.com/keepstack/keepstack/internal/models"
)

// ClusterLabel is a human-facing name and blurb for one cluster.
type ClusterLabel struct {
	Label            string `json:"label"`
	ShortDescription string `json:"short_description"`
}

// Labeler names clusters. Labelling is best-effort: when the provider fails
// or returns junk, the deterministic fallback keeps the clustering run
// succeeding with a generic but accurate name.
type Labeler struct {
	client *Client
}

// NewLabeler wraps the provider client.
func NewLabeler(client *Client) *Labeler {
	return &Labeler{client: client}
}

const labelSystemPrompt = `You name groups of saved content for a personal knowledge manager.
Given the category and the topics and locations of the group's items, respond with ONLY a JSON
object: {"label": "...", "short_description": "..."}.
The label is 2-5 words, specific, no quotes. The description is one sentence.`

// Label asks the model for a cluster name, falling back deterministically.
func (l *Labeler) Label(ctx context.Context, category models.ContentCategory, topics, locations []string) ClusterLabel {
	var b strings.Builder
	fmt.Fprintf(&b, "Category: %s\n", category)
	if len(topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(topics, "; "))
	}
	if len(locations) > 0 {
		fmt.Fprintf(&b, "Locations: %s\n", strings.Join(locations, "; "))
	}

	out := ClusterLabel{}
	err := l.client.CompleteJSON(ctx, labelSystemPrompt, b.String(), &out)
	if err != nil || strings.TrimSpace(out.Label) == "" {
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("category", string(category)).
				Msg("Cluster labelling failed, using fallback label")
		}
		return FallbackLabel(category, topics, locations)
	}
	out.Label = strings.TrimSpace(out.Label)
	out.ShortDescription = strings.TrimSpace(out.ShortDescription)
	return out
}

// FallbackLabel derives a generic label without the provider:
// "{Category} in {location}" when the group shares a location,
// "{Category} Collection" when topics exist, else "{Category} Saves".
func FallbackLabel(category models.ContentCategory, topics, locations []string) ClusterLabel {
	if loc := sharedLocation(locations); loc != "" {
		return ClusterLabel{
			Label:            fmt.Sprintf("%s in %s", category, loc),
			ShortDescription: fmt.Sprintf("Saved %s content about %s.", strings.ToLower(string(category)), loc),
		}
	}
	if len(topics) > 0 {
		return ClusterLabel{
			Label:            fmt.Sprintf("%s Collection", category),
			ShortDescription: fmt.Sprintf("A collection of related %s saves.", strings.ToLower(string(category))),
		}
	}
	return ClusterLabel{
		Label:            fmt.Sprintf("%s Saves", category),
		ShortDescription: fmt.Sprintf("Saved %s content.", strings.ToLower(string(category))),
	}
}

// sharedLocation returns the most frequent location if it appears in the
// list more than once, preferring the earliest seen on ties.
func sharedLocation(locations []string) string {
	if len(locations) == 0 {
		return ""
	}
	counts := make(map[string]int, len(locations))
	order := make([]string, 0, len(locations))
	for _, loc := range locations {
		if loc == "" {
			continue
		}
		if counts[loc] == 0 {
			order = append(order, loc)
		}
		counts[loc]++
	}
	best := ""
	bestCount := 1
	for _, loc := range order {
		if counts[loc] > bestCount {
			best = loc
			bestCount = counts[loc]
		}
	}
	return best
}
