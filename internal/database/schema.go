// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package database

import (
	"context"
	"fmt"

	"github.com/keepstack/keepstack/internal/logging"
)

// schemaStatements are executed in order; each is idempotent so restarts
// and rolling deploys are safe. Category and status validity is enforced
// with CHECK constraints rather than Postgres enum types so that adding a
// value is one migration statement, not a type rebuild.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (lower(email))`,

	`CREATE TABLE IF NOT EXISTS shared_content (
		id UUID PRIMARY KEY,
		url TEXT NOT NULL,
		url_hash TEXT NOT NULL,
		source_platform TEXT NOT NULL
			CHECK (source_platform IN ('instagram', 'youtube', 'unknown')),
		status TEXT NOT NULL DEFAULT 'PENDING'
			CHECK (status IN ('PENDING', 'PROCESSING', 'READY', 'FAILED')),
		content_category TEXT
			CHECK (content_category IN ('Travel', 'Food', 'Learning', 'Career',
				'Fitness', 'Entertainment', 'Shopping', 'Tech', 'Lifestyle', 'Misc')),
		title TEXT,
		caption TEXT,
		description TEXT,
		thumbnail_url TEXT,
		duration_seconds INTEGER,
		content_text TEXT,
		topic_main TEXT,
		subcategories JSONB NOT NULL DEFAULT '[]'::jsonb,
		locations JSONB NOT NULL DEFAULT '[]'::jsonb,
		entities JSONB NOT NULL DEFAULT '[]'::jsonb,
		intent TEXT,
		visual_description TEXT,
		visual_tags JSONB NOT NULL DEFAULT '[]'::jsonb,
		embedding_id TEXT,
		save_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// The dedup invariant: one row per normalized URL.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_shared_content_url_hash
		ON shared_content (url_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_shared_content_status
		ON shared_content (status)`,

	`CREATE TABLE IF NOT EXISTS user_content_saves (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		shared_content_id UUID NOT NULL REFERENCES shared_content (id) ON DELETE CASCADE,
		raw_share_text TEXT,
		is_favorited BOOLEAN NOT NULL DEFAULT false,
		is_archived BOOLEAN NOT NULL DEFAULT false,
		last_viewed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// One save per (user, content); the second save of the same URL is a
	// conflict, not a duplicate row.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_saves_user_content
		ON user_content_saves (user_id, shared_content_id)`,
	`CREATE INDEX IF NOT EXISTS idx_saves_user_created
		ON user_content_saves (user_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS clusters (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		content_category TEXT NOT NULL,
		label TEXT NOT NULL,
		short_description TEXT NOT NULL DEFAULT '',
		representative_save_id UUID REFERENCES user_content_saves (id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_clusters_user_category
		ON clusters (user_id, content_category)`,

	`CREATE TABLE IF NOT EXISTS cluster_memberships (
		cluster_id UUID NOT NULL REFERENCES clusters (id) ON DELETE CASCADE,
		save_id UUID NOT NULL REFERENCES user_content_saves (id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (cluster_id, save_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memberships_save
		ON cluster_memberships (save_id)`,

	`CREATE TABLE IF NOT EXISTS processing_jobs (
		id UUID PRIMARY KEY,
		shared_content_id UUID NOT NULL REFERENCES shared_content (id) ON DELETE CASCADE,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING'
			CHECK (status IN ('PENDING', 'RUNNING', 'COMPLETED', 'FAILED')),
		error_text TEXT,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_content
		ON processing_jobs (shared_content_id, created_at DESC)`,
}

// EnsureSchema creates all tables and indexes if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i, err)
		}
	}
	logging.Info().Int("statements", len(schemaStatements)).Msg("Database schema ensured")
	return nil
}
