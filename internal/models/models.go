// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package models defines the domain entities shared across repositories,
// services, workers, and the HTTP layer.
//
// Two data planes are deliberately kept distinct:
//
//   - SharedContent: canonical, deduplicated, platform-sourced metadata
//     shared across all users who save the same URL.
//   - UserContentSave: a per-user pointer to a SharedContent with private
//     annotations (note, favorite, archive).
//
// Relationships are modelled as plain ids with lookup, not in-memory pointer
// cycles; joined projections (SaveWithContent, ClusterWithItems) exist only
// where the API shape demands them.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account owner. Created by registration; never silently mutated.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SharedContent is the canonical record for one unique URL. Created once per
// unique url_hash; the expensive processing pipeline runs at most once per
// row regardless of how many users save it.
type SharedContent struct {
	ID             uuid.UUID       `json:"id"`
	URL            string          `json:"url"`
	URLHash        string          `json:"-"`
	SourcePlatform SourcePlatform  `json:"source_platform"`
	Status         ItemStatus      `json:"status"`

	// ContentCategory is assigned once, on the transition to READY, and is
	// immutable thereafter. Nil until READY.
	ContentCategory *ContentCategory `json:"content_category,omitempty"`

	// Platform metadata from ingestion.
	Title           *string `json:"title,omitempty"`
	Caption         *string `json:"caption,omitempty"`
	Description     *string `json:"description,omitempty"`
	ThumbnailURL    *string `json:"thumbnail_url,omitempty"`
	DurationSeconds *int    `json:"duration_seconds,omitempty"`

	// AI-derived text analysis.
	ContentText   *string     `json:"content_text,omitempty"`
	TopicMain     *string     `json:"topic_main,omitempty"`
	Subcategories StringList  `json:"subcategories,omitempty"`
	Locations     StringList  `json:"locations,omitempty"`
	Entities      StringList  `json:"entities,omitempty"`
	Intent        *IntentType `json:"intent,omitempty"`

	// AI-derived visual analysis.
	VisualDescription *string    `json:"visual_description,omitempty"`
	VisualTags        StringList `json:"visual_tags,omitempty"`

	// EmbeddingID references the vector-index point. By convention it equals
	// the SharedContent id once vectorisation has run.
	EmbeddingID *string `json:"embedding_id,omitempty"`

	// SaveCount equals the number of non-deleted UserContentSave rows
	// pointing at this content.
	SaveCount int `json:"save_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the pipeline considers this content finished.
func (c *SharedContent) IsTerminal() bool {
	return c.Status == StatusReady || c.Status == StatusFailed
}

// UserContentSave is one user's private pointer to a SharedContent.
// (user_id, shared_content_id) is unique.
type UserContentSave struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	SharedContentID uuid.UUID  `json:"shared_content_id"`
	RawShareText    *string    `json:"raw_share_text,omitempty"`
	IsFavorited     bool       `json:"is_favorited"`
	IsArchived      bool       `json:"is_archived"`
	LastViewedAt    *time.Time `json:"last_viewed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Cluster is a per-user, per-category group of similar saves with an
// AI-generated label. Every member save's content shares the cluster's
// category by construction.
type Cluster struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	ContentCategory  ContentCategory `json:"content_category"`
	Label            string          `json:"label"`
	ShortDescription string          `json:"short_description"`

	// RepresentativeSaveID is the member closest to the group's center,
	// used as the cluster's cover item.
	RepresentativeSaveID *uuid.UUID `json:"representative_save_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClusterMembership links a Cluster to a UserContentSave. The pair is the
// composite identity; rows cascade on either parent deletion.
type ClusterMembership struct {
	ClusterID uuid.UUID `json:"cluster_id"`
	SaveID    uuid.UUID `json:"save_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ProcessingJob is the audit record for queued work. The queue is the
// scheduling authority; these rows exist for observability and error text.
type ProcessingJob struct {
	ID              uuid.UUID         `json:"id"`
	SharedContentID uuid.UUID         `json:"shared_content_id"`
	JobType         JobType           `json:"job_type"`
	Status          JobStatus         `json:"status"`
	ErrorText       *string           `json:"error_text,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// SaveWithContent is the joined projection the list/get endpoints return,
// avoiding N+1 fetches.
type SaveWithContent struct {
	Save    UserContentSave `json:"save"`
	Content SharedContent   `json:"content"`
}

// ClusterWithCount is the list projection for a user's clusters.
type ClusterWithCount struct {
	Cluster   Cluster `json:"cluster"`
	ItemCount int     `json:"item_count"`
}

// ClusterWithItems is the detail projection for one cluster.
type ClusterWithItems struct {
	Cluster Cluster           `json:"cluster"`
	Items   []SaveWithContent `json:"items"`
}
