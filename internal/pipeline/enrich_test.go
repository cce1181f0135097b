// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package pipeline

import (
	"strings"
	"testing"

	"github.com/keepstack/keepstack/internal/database"
	"github.com/keepstack/keepstack/internal/ingest"
	"github.com/keepstack/keepstack/internal/models"
)

func strptr(s string) *string { return &s }

func TestBuildContentText(t *testing.T) {
	tests := []struct {
		name string
		meta ingest.Metadata
		want string
	}{
		{
			name: "all fields",
			meta: ingest.Metadata{
				Title:       strptr("Best Ramen in Tokyo"),
				Caption:     strptr("slurp slurp"),
				Description: strptr("A tour of five shops."),
			},
			want: "Best Ramen in Tokyo\n\nslurp slurp\n\nA tour of five shops.",
		},
		{
			name: "skips empty and whitespace",
			meta: ingest.Metadata{
				Title:       strptr("  Title  "),
				Caption:     strptr("   "),
				Description: nil,
			},
			want: "Title",
		},
		{
			name: "nothing",
			meta: ingest.Metadata{},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildContentText(&tt.meta); got != tt.want {
				t.Errorf("BuildContentText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildEmbeddingText(t *testing.T) {
	t.Run("leads with topic then distinct title", func(t *testing.T) {
		meta := &ingest.Metadata{Title: strptr("Tokyo Ramen Tour")}
		a := &database.Analysis{
			Category:      models.CategoryFood,
			TopicMain:     strptr("tonkotsu ramen"),
			Subcategories: models.StringList{"ramen", "noodles"},
			Locations:     models.StringList{"Tokyo"},
		}
		got := BuildEmbeddingText("https://example.com/v", meta, a)
		want := "tonkotsu ramen. Tokyo Ramen Tour. Category: Food. Tags: ramen, noodles. Location: Tokyo"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("drops title equal to topic", func(t *testing.T) {
		meta := &ingest.Metadata{Title: strptr("Tonkotsu Ramen")}
		a := &database.Analysis{
			Category:  models.CategoryFood,
			TopicMain: strptr("tonkotsu ramen"),
		}
		got := BuildEmbeddingText("https://example.com/v", meta, a)
		if got != "tonkotsu ramen. Category: Food" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("caps tags at five and locations at three", func(t *testing.T) {
		a := &database.Analysis{
			Category:      models.CategoryTravel,
			TopicMain:     strptr("island hopping"),
			Subcategories: models.StringList{"a", "b", "c", "d", "e", "f", "g"},
			Locations:     models.StringList{"One", "Two", "Three", "Four"},
		}
		got := BuildEmbeddingText("https://example.com", &ingest.Metadata{}, a)
		if !strings.Contains(got, "Tags: a, b, c, d, e") || strings.Contains(got, "f") {
			t.Errorf("tags not capped: %q", got)
		}
		if !strings.Contains(got, "Location: One, Two, Three") || strings.Contains(got, "Four") {
			t.Errorf("locations not capped: %q", got)
		}
	})

	t.Run("falls back to caption snippet", func(t *testing.T) {
		long := strings.Repeat("x", 300)
		meta := &ingest.Metadata{Caption: strptr(long)}
		a := &database.Analysis{Category: models.CategoryMisc}
		got := BuildEmbeddingText("https://example.com", meta, a)
		if !strings.Contains(got, strings.Repeat("x", 200)) {
			t.Errorf("caption snippet missing: %q", got)
		}
		if strings.Contains(got, strings.Repeat("x", 201)) {
			t.Error("caption snippet not truncated at 200 runes")
		}
	})

	t.Run("falls back to url when nothing else exists", func(t *testing.T) {
		a := &database.Analysis{Category: models.CategoryMisc}
		got := BuildEmbeddingText("https://example.com/post/1", &ingest.Metadata{}, a)
		if got != "Category: Misc. https://example.com/post/1" {
			t.Errorf("got %q", got)
		}
	})
}
