// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/models"
)

// SaveRepo persists per-user saves and their joined content projections.
type SaveRepo struct {
	db *DB
}

// Create inserts a save and bumps the content's save counter in one
// transaction. A second save of the same content by the same user returns
// errs.Conflict.
func (r *SaveRepo) Create(ctx context.Context, userID, contentID uuid.UUID, rawShareText *string) (*models.UserContentSave, error) {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err, "save not found")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	s := &models.UserContentSave{
		ID:              uuid.New(),
		UserID:          userID,
		SharedContentID: contentID,
		RawShareText:    rawShareText,
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO user_content_saves (id, user_id, shared_content_id, raw_share_text)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		s.ID, s.UserID, s.SharedContentID, s.RawShareText)
	if err := row.Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		if IsUniqueViolation(err) {
			return nil, errs.E(errs.Conflict, "content already saved")
		}
		return nil, mapError(err, "save not found")
	}

	_, err = tx.Exec(ctx, `
		UPDATE shared_content SET save_count = save_count + 1, updated_at = now()
		WHERE id = $1`, contentID)
	if err != nil {
		return nil, mapError(err, "content not found")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapError(err, "save not found")
	}
	return s, nil
}

const saveColumns = `
	s.id, s.user_id, s.shared_content_id, s.raw_share_text,
	s.is_favorited, s.is_archived, s.last_viewed_at, s.created_at, s.updated_at`

func scanSaveWithContent(row pgx.Row) (*models.SaveWithContent, error) {
	out := &models.SaveWithContent{}
	s := &out.Save
	c := &out.Content
	var category, intent *string
	err := row.Scan(
		&s.ID, &s.UserID, &s.SharedContentID, &s.RawShareText,
		&s.IsFavorited, &s.IsArchived, &s.LastViewedAt, &s.CreatedAt, &s.UpdatedAt,
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
	return out, nil
}

const saveJoin = `
	FROM user_content_saves s
	JOIN shared_content c ON c.id = s.shared_content_id`

const saveSelect = `SELECT ` + saveColumns + `,
	c.id, c.url, c.url_hash, c.source_platform, c.status, c.content_category,
	c.title, c.caption, c.description, c.thumbnail_url, c.duration_seconds,
	c.content_text, c.topic_main, c.subcategories, c.locations, c.entities, c.intent,
	c.visual_description, c.visual_tags, c.embedding_id, c.save_count,
	c.created_at, c.updated_at` + saveJoin

// GetWithContent fetches one save, ownership-scoped. NotFound covers both a
// missing save and another user's save; callers cannot distinguish them.
func (r *SaveRepo) GetWithContent(ctx context.Context, userID, saveID uuid.UUID) (*models.SaveWithContent, error) {
	row := r.db.pool.QueryRow(ctx,
		saveSelect+` WHERE s.id = $1 AND s.user_id = $2`, saveID, userID)
	out, err := scanSaveWithContent(row)
	if err != nil {
		return nil, mapError(err, "save not found")
	}
	return out, nil
}

// TouchViewed stamps last_viewed_at on a get-one read.
func (r *SaveRepo) TouchViewed(ctx context.Context, userID, saveID uuid.UUID) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE user_content_saves SET last_viewed_at = now()
		WHERE id = $1 AND user_id = $2`, saveID, userID)
	return mapError(err, "save not found")
}

// ListOptions filter and paginate a user's saves.
type ListOptions struct {
	Category  *models.ContentCategory
	Status    *models.ItemStatus
	Favorited *bool
	Archived  *bool
	Limit     int
	Offset    int
}

// List returns a page of a user's saves, newest first, plus the total count
// matching the filters.
func (r *SaveRepo) List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.SaveWithContent, int, error) {
	where := []string{"s.user_id = $1"}
	args := []any{userID}

	addFilter := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if opts.Category != nil {
		addFilter("c.content_category = $%d", *opts.Category)
	}
	if opts.Status != nil {
		addFilter("c.status = $%d", *opts.Status)
	}
	if opts.Favorited != nil {
		addFilter("s.is_favorited = $%d", *opts.Favorited)
	}
	if opts.Archived != nil {
		addFilter("s.is_archived = $%d", *opts.Archived)
	}
	cond := strings.Join(where, " AND ")

	var total int
	err := r.db.pool.QueryRow(ctx,
		`SELECT count(*)`+saveJoin+` WHERE `+cond, args...).Scan(&total)
	if err != nil {
		return nil, 0, mapError(err, "save not found")
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf("%s WHERE %s ORDER BY s.created_at DESC LIMIT $%d OFFSET $%d",
		saveSelect, cond, len(args)-1, len(args))
	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err, "save not found")
	}
	defer rows.Close()

	out := make([]models.SaveWithContent, 0, opts.Limit)
	for rows.Next() {
		item, err := scanSaveWithContent(rows)
		if err != nil {
			return nil, 0, mapError(err, "save not found")
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError(err, "save not found")
	}
	return out, total, nil
}

// CategoryCounts returns the user's save counts per category, READY items
// only (unclassified items have no category yet). Archived saves are
// excluded; the browse surface the counts feed never shows them.
func (r *SaveRepo) CategoryCounts(ctx context.Context, userID uuid.UUID) (map[models.ContentCategory]int, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT c.content_category, count(*)`+saveJoin+`
		WHERE s.user_id = $1 AND s.is_archived = false
			AND c.status = 'READY' AND c.content_category IS NOT NULL
		GROUP BY c.content_category`, userID)
	if err != nil {
		return nil, mapError(err, "save not found")
	}
	defer rows.Close()

	counts := make(map[models.ContentCategory]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, mapError(err, "save not found")
		}
		if parsed, ok := models.ParseCategory(cat); ok {
			counts[parsed] = n
		}
	}
	return counts, rows.Err()
}

// SetFavorited toggles the favorite flag, ownership-scoped.
func (r *SaveRepo) SetFavorited(ctx context.Context, userID, saveID uuid.UUID, favorited bool) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE user_content_saves SET is_favorited = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2`, saveID, userID, favorited)
	if err != nil {
		return mapError(err, "save not found")
	}
	if tag.RowsAffected() == 0 {
		return errs.E(errs.NotFound, "save not found")
	}
	return nil
}

// SetArchived toggles the archive flag, ownership-scoped.
func (r *SaveRepo) SetArchived(ctx context.Context, userID, saveID uuid.UUID, archived bool) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE user_content_saves SET is_archived = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2`, saveID, userID, archived)
	if err != nil {
		return mapError(err, "save not found")
	}
	if tag.RowsAffected() == 0 {
		return errs.E(errs.NotFound, "save not found")
	}
	return nil
}

// SaveUpdate carries the partially-updatable save fields; nil means leave
// the column alone.
type SaveUpdate struct {
	RawShareText *string
	Favorited    *bool
	Archived     *bool
}

// Update applies a partial update to a save, ownership-scoped. An update
// with no fields set is a validation error, not a silent no-op.
func (r *SaveRepo) Update(ctx context.Context, userID, saveID uuid.UUID, upd SaveUpdate) error {
	set := []string{"updated_at = now()"}
	args := []any{saveID, userID}

	addSet := func(col string, val any) {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.RawShareText != nil {
		addSet("raw_share_text", upd.RawShareText)
	}
	if upd.Favorited != nil {
		addSet("is_favorited", *upd.Favorited)
	}
	if upd.Archived != nil {
		addSet("is_archived", *upd.Archived)
	}
	if len(args) == 2 {
		return errs.E(errs.Validation, "update has no fields")
	}

	tag, err := r.db.pool.Exec(ctx, `
		UPDATE user_content_saves SET `+strings.Join(set, ", ")+`
		WHERE id = $1 AND user_id = $2`, args...)
	if err != nil {
		return mapError(err, "save not found")
	}
	if tag.RowsAffected() == 0 {
		return errs.E(errs.NotFound, "save not found")
	}
	return nil
}

// Delete removes a save and decrements the content's save counter. Cluster
// memberships cascade via the foreign key. Returns the content id so the
// caller can decide whether vector cleanup applies.
func (r *SaveRepo) Delete(ctx context.Context, userID, saveID uuid.UUID) (uuid.UUID, error) {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, mapError(err, "save not found")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var contentID uuid.UUID
	err = tx.QueryRow(ctx, `
		DELETE FROM user_content_saves WHERE id = $1 AND user_id = $2
		RETURNING shared_content_id`, saveID, userID).Scan(&contentID)
	if err != nil {
		return uuid.Nil, mapError(err, "save not found")
	}

	_, err = tx.Exec(ctx, `
		UPDATE shared_content
		SET save_count = GREATEST(save_count - 1, 0), updated_at = now()
		WHERE id = $1`, contentID)
	if err != nil {
		return uuid.Nil, mapError(err, "content not found")
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, mapError(err, "save not found")
	}
	return contentID, nil
}

// ListByContentIDs returns the user's saves whose content is in the given id
// set. Similarity search yields content ids; this maps them back to the
// caller's own saves, silently dropping contents the user never saved.
func (r *SaveRepo) ListByContentIDs(ctx context.Context, userID uuid.UUID, contentIDs []uuid.UUID) ([]models.SaveWithContent, error) {
	if len(contentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.pool.Query(ctx,
		saveSelect+` WHERE s.user_id = $1 AND c.id = ANY($2)`, userID, contentIDs)
	if err != nil {
		return nil, mapError(err, "save not found")
	}
	defer rows.Close()

	out := make([]models.SaveWithContent, 0, len(contentIDs))
	for rows.Next() {
		item, err := scanSaveWithContent(rows)
		if err != nil {
			return nil, mapError(err, "save not found")
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// ListOwnerIDs returns every user who has saved the given content. The
// pipeline uses this to fan out clustering jobs after enrichment.
func (r *SaveRepo) ListOwnerIDs(ctx context.Context, contentID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT user_id FROM user_content_saves WHERE shared_content_id = $1`, contentID)
	if err != nil {
		return nil, mapError(err, "save not found")
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err, "save not found")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ClusterCandidate is the slim projection clustering runs on: the save, its
// content's vector id, and the label-relevant analysis fields.
type ClusterCandidate struct {
	SaveID      uuid.UUID
	ContentID   uuid.UUID
	EmbeddingID string
	TopicMain   *string
	Locations   models.StringList
}

// ListClusterCandidates returns a user's READY, vectorised saves in one
// category, ordered by save creation so runs over identical data are
// deterministic. Archived saves never enter a clustering run.
func (r *SaveRepo) ListClusterCandidates(ctx context.Context, userID uuid.UUID, category models.ContentCategory) ([]ClusterCandidate, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT s.id, c.id, c.embedding_id, c.topic_main, c.locations`+saveJoin+`
		WHERE s.user_id = $1 AND s.is_archived = false
			AND c.content_category = $2
			AND c.status = 'READY' AND c.embedding_id IS NOT NULL
		ORDER BY s.created_at ASC`, userID, category)
	if err != nil {
		return nil, mapError(err, "save not found")
	}
	defer rows.Close()

	var out []ClusterCandidate
	for rows.Next() {
		var cand ClusterCandidate
		if err := rows.Scan(&cand.SaveID, &cand.ContentID, &cand.EmbeddingID,
			&cand.TopicMain, &cand.Locations); err != nil {
			return nil, mapError(err, "save not found")
		}
		out = append(out, cand)
	}
	return out, rows.Err()
}
