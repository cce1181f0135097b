// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package vector stores content embeddings in Postgres via pgvector and
// answers similarity queries. Point ids equal the SharedContent id, so the
// relational row and its vector stay trivially joinable.
package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/keepstack/keepstack/internal/config"
	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/logging"
	"github.com/keepstack/keepstack/internal/models"
)

// Index is the vector store over one pgvector-backed table.
type Index struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
}

// New wraps an existing pool. The pool may be shared with the relational
// layer or dedicated, per config.
func New(pool *pgxpool.Pool, cfg *config.VectorConfig) *Index {
	return &Index{
		pool:       pool,
		table:      cfg.Table,
		dimensions: cfg.Dimensions,
	}
}

// EnsureSchema creates the pgvector extension, the embeddings table, and the
// cosine index. Idempotent.
func (ix *Index) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			content_category TEXT NOT NULL,
			source_platform TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, ix.table, ix.dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_cosine
			ON %s USING hnsw (embedding vector_cosine_ops)`, ix.table, ix.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_category
			ON %s (content_category)`, ix.table, ix.table),
	}
	for i, stmt := range stmts {
		if _, err := ix.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("vector schema statement %d failed: %w", i, err)
		}
	}
	logging.Info().Str("table", ix.table).Int("dimensions", ix.dimensions).
		Msg("Vector index schema ensured")
	return nil
}

// Ping verifies the index is reachable; used by readiness checks.
func (ix *Index) Ping(ctx context.Context) error {
	return ix.pool.Ping(ctx)
}

// Upsert writes one embedding, replacing any previous vector for the id.
// Re-vectorising after an operator re-enqueue must not duplicate points.
func (ix *Index) Upsert(ctx context.Context, id uuid.UUID, embedding []float32, category models.ContentCategory, platform models.SourcePlatform) error {
	if len(embedding) != ix.dimensions {
		return errs.Ef(errs.Validation, "embedding has %d dimensions, index expects %d",
			len(embedding), ix.dimensions)
	}
	_, err := ix.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, embedding, content_category, source_platform)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content_category = EXCLUDED.content_category,
			source_platform = EXCLUDED.source_platform`, ix.table),
		id, pgvector.NewVector(embedding), category, platform)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "vector upsert failed", err)
	}
	return nil
}

// Fetch returns the embeddings for the given ids. Missing ids are absent
// from the map, not an error; callers decide whether a gap is fatal.
func (ix *Index) Fetch(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]float32, error) {
	if len(ids) == 0 {
		return map[uuid.UUID][]float32{}, nil
	}
	rows, err := ix.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, embedding FROM %s WHERE id = ANY($1)`, ix.table), ids)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "vector fetch failed", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]float32, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var vec pgvector.Vector
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, errs.Wrap(errs.Unavailable, "vector scan failed", err)
		}
		out[id] = vec.Slice()
	}
	return out, rows.Err()
}

// Delete removes one point. Deleting a missing id is a no-op.
func (ix *Index) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := ix.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, ix.table), id)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "vector delete failed", err)
	}
	return nil
}

// CountByCategory reports how many points exist per category.
func (ix *Index) CountByCategory(ctx context.Context) (map[models.ContentCategory]int, error) {
	rows, err := ix.pool.Query(ctx, fmt.Sprintf(`
		SELECT content_category, count(*) FROM %s GROUP BY content_category`, ix.table))
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "vector count failed", err)
	}
	defer rows.Close()

	out := make(map[models.ContentCategory]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, errs.Wrap(errs.Unavailable, "vector scan failed", err)
		}
		if parsed, ok := models.ParseCategory(cat); ok {
			out[parsed] = n
		}
	}
	return out, rows.Err()
}

// SimilarResult is one similarity hit. Score is cosine similarity in [-1, 1];
// float64 because Postgres computes `1 - (embedding <=> $1)` in double
// precision and the API payload carries it through unchanged.
type SimilarResult struct {
	ID    uuid.UUID
	Score float64
}

// SearchSimilar returns the nearest points to the query embedding by cosine
// distance, optionally restricted to one category, excluding excludeID.
func (ix *Index) SearchSimilar(ctx context.Context, embedding []float32, category *models.ContentCategory, excludeID uuid.UUID, limit int) ([]SimilarResult, error) {
	if len(embedding) != ix.dimensions {
		return nil, errs.Ef(errs.Validation, "embedding has %d dimensions, index expects %d",
			len(embedding), ix.dimensions)
	}
	query := fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE id <> $2`, ix.table)
	args := []any{pgvector.NewVector(embedding), excludeID}
	if category != nil {
		args = append(args, *category)
		query += fmt.Sprintf(" AND content_category = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := ix.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "vector search failed", err)
	}
	defer rows.Close()

	out := make([]SimilarResult, 0, limit)
	for rows.Next() {
		var r SimilarResult
		if err := rows.Scan(&r.ID, &r.Score); err != nil {
			return nil, errs.Wrap(errs.Unavailable, "vector scan failed", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
