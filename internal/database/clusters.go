// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package database

import (
	"context"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/models"
)

// ClusterRepo persists cluster groupings and their memberships.
type ClusterRepo struct {
	db *DB
}

// NewCluster is one group produced by a clustering run, not yet persisted.
type NewCluster struct {
	Label            string
	ShortDescription string
	// RepresentativeSaveID must be one of SaveIDs; uuid.Nil stores NULL.
	RepresentativeSaveID uuid.UUID
	SaveIDs              []uuid.UUID
}

// advisoryLockKey derives a stable bigint for pg_advisory_xact_lock from the
// (user, category) pair, so concurrent clustering runs for the same scope
// serialise while unrelated scopes proceed in parallel.
func advisoryLockKey(userID uuid.UUID, category models.ContentCategory) int64 {
	h := fnv.New64a()
	h.Write([]byte(userID.String()))
	h.Write([]byte{'/'})
	h.Write([]byte(category))
	return int64(h.Sum64()) //nolint:gosec // wraparound is fine for a lock key
}

// ReplaceForCategory atomically swaps a user's clusters in one category for
// the freshly computed set: readers either see the complete old generation
// or the complete new one, never a mix. The advisory lock serialises
// concurrent runs for the same (user, category).
func (r *ClusterRepo) ReplaceForCategory(ctx context.Context, userID uuid.UUID, category models.ContentCategory, groups []NewCluster) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return mapError(err, "cluster not found")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`,
		advisoryLockKey(userID, category)); err != nil {
		return mapError(err, "cluster not found")
	}

	// Memberships cascade with the cluster rows.
	if _, err := tx.Exec(ctx, `
		DELETE FROM clusters WHERE user_id = $1 AND content_category = $2`,
		userID, category); err != nil {
		return mapError(err, "cluster not found")
	}

	for _, g := range groups {
		clusterID := uuid.New()
		var rep *uuid.UUID
		if g.RepresentativeSaveID != uuid.Nil {
			rep = &g.RepresentativeSaveID
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO clusters (id, user_id, content_category, label, short_description, representative_save_id)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			clusterID, userID, category, g.Label, g.ShortDescription, rep); err != nil {
			return mapError(err, "cluster not found")
		}
		for _, saveID := range g.SaveIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO cluster_memberships (cluster_id, save_id)
				VALUES ($1, $2)`, clusterID, saveID); err != nil {
				return mapError(err, "save not found")
			}
		}
	}

	return mapError(tx.Commit(ctx), "cluster not found")
}

// ListWithCounts returns a user's clusters with member counts, optionally
// filtered to one category, grouped by category then label.
func (r *ClusterRepo) ListWithCounts(ctx context.Context, userID uuid.UUID, category *models.ContentCategory) ([]models.ClusterWithCount, error) {
	query := `
		SELECT cl.id, cl.user_id, cl.content_category, cl.label,
			cl.short_description, cl.representative_save_id, cl.created_at, cl.updated_at,
			count(m.save_id)
		FROM clusters cl
		LEFT JOIN cluster_memberships m ON m.cluster_id = cl.id
		WHERE cl.user_id = $1`
	args := []any{userID}
	if category != nil {
		query += ` AND cl.content_category = $2`
		args = append(args, *category)
	}
	query += `
		GROUP BY cl.id
		ORDER BY cl.content_category, cl.label`

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "cluster not found")
	}
	defer rows.Close()

	out := make([]models.ClusterWithCount, 0)
	for rows.Next() {
		var cw models.ClusterWithCount
		if err := rows.Scan(&cw.Cluster.ID, &cw.Cluster.UserID, &cw.Cluster.ContentCategory,
			&cw.Cluster.Label, &cw.Cluster.ShortDescription, &cw.Cluster.RepresentativeSaveID,
			&cw.Cluster.CreatedAt, &cw.Cluster.UpdatedAt, &cw.ItemCount); err != nil {
			return nil, mapError(err, "cluster not found")
		}
		out = append(out, cw)
	}
	return out, rows.Err()
}

// GetWithItems returns one cluster and its member saves joined with content,
// ownership-scoped.
func (r *ClusterRepo) GetWithItems(ctx context.Context, userID, clusterID uuid.UUID) (*models.ClusterWithItems, error) {
	out := &models.ClusterWithItems{}
	cl := &out.Cluster
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, user_id, content_category, label, short_description,
			representative_save_id, created_at, updated_at
		FROM clusters WHERE id = $1 AND user_id = $2`, clusterID, userID)
	if err := row.Scan(&cl.ID, &cl.UserID, &cl.ContentCategory, &cl.Label,
		&cl.ShortDescription, &cl.RepresentativeSaveID, &cl.CreatedAt, &cl.UpdatedAt); err != nil {
		return nil, mapError(err, "cluster not found")
	}

	rows, err := r.db.pool.Query(ctx,
		saveSelect+`
		JOIN cluster_memberships m ON m.save_id = s.id
		WHERE m.cluster_id = $1
		ORDER BY s.created_at DESC`, clusterID)
	if err != nil {
		return nil, mapError(err, "cluster not found")
	}
	defer rows.Close()

	out.Items = make([]models.SaveWithContent, 0)
	for rows.Next() {
		item, err := scanSaveWithContent(rows)
		if err != nil {
			return nil, mapError(err, "save not found")
		}
		out.Items = append(out.Items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "cluster not found")
	}
	return out, nil
}

// Delete removes one cluster; memberships cascade, saves are untouched.
func (r *ClusterRepo) Delete(ctx context.Context, userID, clusterID uuid.UUID) error {
	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM clusters WHERE id = $1 AND user_id = $2`, clusterID, userID)
	if err != nil {
		return mapError(err, "cluster not found")
	}
	if tag.RowsAffected() == 0 {
		return errs.E(errs.NotFound, "cluster not found")
	}
	return nil
}
