// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/models"
)

// ContentRepo persists canonical shared content rows.
type ContentRepo struct {
	db *DB
}

const contentColumns = `
	id, url, url_hash, source_platform, status, content_category,
	title, caption, description, thumbnail_url, duration_seconds,
	content_text, topic_main, subcategories, locations, entities, intent,
	visual_description, visual_tags, embedding_id, save_count,
	created_at, updated_at`

func scanContent(row pgx.Row) (*models.SharedContent, error) {
	c := &models.SharedContent{}
	var category, intent *string
	err := row.Scan(
		&c.ID, &c.URL, &c.URLHash, &c.SourcePlatform, &c.Status, &category,
		&c.Title, &c.Caption, &c.Description, &c.ThumbnailURL, &c.DurationSeconds,
		&c.ContentText, &c.TopicMain, &c.Subcategories, &c.Locations, &c.Entities, &intent,
		&c.VisualDescription, &c.VisualTags, &c.EmbeddingID, &c.SaveCount,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if category != nil {
		if parsed, ok := models.ParseCategory(*category); ok {
			c.ContentCategory = &parsed
		}
	}
	if intent != nil {
		parsed := models.ParseIntent(*intent)
		c.Intent = &parsed
	}
	return c, nil
}

// GetByURLHash returns the canonical row for a normalized URL, if any.
func (r *ContentRepo) GetByURLHash(ctx context.Context, urlHash string) (*models.SharedContent, error) {
	row := r.db.pool.QueryRow(ctx,
		`SELECT `+contentColumns+` FROM shared_content WHERE url_hash = $1`, urlHash)
	c, err := scanContent(row)
	if err != nil {
		return nil, mapError(err, "content not found")
	}
	return c, nil
}

// GetByID returns one content row.
func (r *ContentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SharedContent, error) {
	row := r.db.pool.QueryRow(ctx,
		`SELECT `+contentColumns+` FROM shared_content WHERE id = $1`, id)
	c, err := scanContent(row)
	if err != nil {
		return nil, mapError(err, "content not found")
	}
	return c, nil
}

// Create inserts a new PENDING content row. When two users race on the same
// URL, the loser gets errs.Conflict and must re-read by hash; the unique
// index on url_hash is the arbiter.
func (r *ContentRepo) Create(ctx context.Context, url, urlHash string, platform models.SourcePlatform) (*models.SharedContent, error) {
	c := &models.SharedContent{
		ID:             uuid.New(),
		URL:            url,
		URLHash:        urlHash,
		SourcePlatform: platform,
		Status:         models.StatusPending,
	}
	row := r.db.pool.QueryRow(ctx, `
		INSERT INTO shared_content (id, url, url_hash, source_platform, status)
		VALUES ($1, $2, $3, $4, 'PENDING')
		RETURNING created_at, updated_at`,
		c.ID, c.URL, c.URLHash, c.SourcePlatform)
	if err := row.Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		if IsUniqueViolation(err) {
			return nil, errs.E(errs.Conflict, "content already exists for url")
		}
		return nil, mapError(err, "content not found")
	}
	return c, nil
}

// Lease attempts to claim a content row for pipeline processing. Returns the
// status the row had before the lease and whether the claim succeeded.
//
// READY rows are never leased: a redelivered job for finished content is an
// idempotent no-op. PENDING, PROCESSING (stale lease after a worker crash),
// and FAILED (operator re-enqueue) rows all transition to PROCESSING under
// a row lock so concurrent workers cannot double-claim.
func (r *ContentRepo) Lease(ctx context.Context, id uuid.UUID) (models.ItemStatus, bool, error) {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return "", false, mapError(err, "content not found")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var status models.ItemStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM shared_content WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		return "", false, mapError(err, "content not found")
	}

	if status == models.StatusReady {
		return status, false, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx,
		`UPDATE shared_content SET status = 'PROCESSING', updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return "", false, mapError(err, "content not found")
	}
	return status, true, tx.Commit(ctx)
}

// UpdateIngestMetadata stores platform metadata fetched by the ingest stage.
func (r *ContentRepo) UpdateIngestMetadata(ctx context.Context, id uuid.UUID, title, caption, description, thumbnailURL *string, durationSeconds *int) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE shared_content SET
			title = $2, caption = $3, description = $4,
			thumbnail_url = $5, duration_seconds = $6,
			updated_at = now()
		WHERE id = $1`,
		id, title, caption, description, thumbnailURL, durationSeconds)
	return mapError(err, "content not found")
}

// UpdateContentText stores the deterministic enrichment text.
func (r *ContentRepo) UpdateContentText(ctx context.Context, id uuid.UUID, contentText string) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE shared_content SET content_text = $2, updated_at = now() WHERE id = $1`,
		id, contentText)
	return mapError(err, "content not found")
}

// Analysis is the classify-stage output applied in one statement.
type Analysis struct {
	Category          models.ContentCategory
	TopicMain         *string
	Subcategories     models.StringList
	Locations         models.StringList
	Entities          models.StringList
	Intent            models.IntentType
	VisualDescription *string
	VisualTags        models.StringList
}

// ApplyAnalysis stores the classification result. The category is written
// here for the first and only time.
func (r *ContentRepo) ApplyAnalysis(ctx context.Context, id uuid.UUID, a Analysis) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE shared_content SET
			content_category = $2, topic_main = $3,
			subcategories = $4, locations = $5, entities = $6,
			intent = $7, visual_description = $8, visual_tags = $9,
			updated_at = now()
		WHERE id = $1`,
		id, a.Category, a.TopicMain,
		a.Subcategories.Dedup(), a.Locations.Dedup(), a.Entities.Dedup(),
		a.Intent, a.VisualDescription, a.VisualTags.Dedup())
	return mapError(err, "content not found")
}

// SetEmbeddingID records the vector-index point id after vectorisation.
func (r *ContentRepo) SetEmbeddingID(ctx context.Context, id uuid.UUID, embeddingID string) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE shared_content SET embedding_id = $2, updated_at = now() WHERE id = $1`,
		id, embeddingID)
	return mapError(err, "content not found")
}

// MarkReady finishes a successful pipeline run.
func (r *ContentRepo) MarkReady(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE shared_content SET status = 'READY', updated_at = now() WHERE id = $1`, id)
	return mapError(err, "content not found")
}

// MarkFailed finishes a pipeline run terminally.
func (r *ContentRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE shared_content SET status = 'FAILED', updated_at = now() WHERE id = $1`, id)
	return mapError(err, "content not found")
}

// CountReadyByUserCategory counts a user's READY saves in one category; the
// autocluster policy uses this to decide whether a clustering run is due.
func (r *ContentRepo) CountReadyByUserCategory(ctx context.Context, userID uuid.UUID, category models.ContentCategory) (int, error) {
	var n int
	err := r.db.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM user_content_saves s
		JOIN shared_content c ON c.id = s.shared_content_id
		WHERE s.user_id = $1 AND c.status = 'READY' AND c.content_category = $2`,
		userID, category).Scan(&n)
	if err != nil {
		return 0, mapError(err, "content not found")
	}
	return n, nil
}
