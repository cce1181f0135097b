// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package database

import (
	"context"

	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/models"
)

// JobRepo records processing job audit rows. The queue is the scheduling
// authority; these rows only exist so operators can see what ran and why
// something failed.
type JobRepo struct {
	db *DB
}

// Create inserts a PENDING audit row at enqueue time.
func (r *JobRepo) Create(ctx context.Context, contentID uuid.UUID, jobType models.JobType) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO processing_jobs (id, shared_content_id, job_type, status)
		VALUES ($1, $2, $3, 'PENDING')`, id, contentID, jobType)
	if err != nil {
		return uuid.Nil, mapError(err, "content not found")
	}
	return id, nil
}

// MarkRunning stamps the latest pending job for the content as RUNNING when
// a worker leases it.
func (r *JobRepo) MarkRunning(ctx context.Context, contentID uuid.UUID) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE processing_jobs SET status = 'RUNNING', updated_at = now()
		WHERE id = (
			SELECT id FROM processing_jobs
			WHERE shared_content_id = $1 AND status = 'PENDING'
			ORDER BY created_at DESC LIMIT 1
		)`, contentID)
	return mapError(err, "job not found")
}

// MarkCompleted closes the running job for the content.
func (r *JobRepo) MarkCompleted(ctx context.Context, contentID uuid.UUID) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE processing_jobs SET status = 'COMPLETED', updated_at = now()
		WHERE id = (
			SELECT id FROM processing_jobs
			WHERE shared_content_id = $1 AND status IN ('PENDING', 'RUNNING')
			ORDER BY created_at DESC LIMIT 1
		)`, contentID)
	return mapError(err, "job not found")
}

// MarkFailed closes the running job with the failure reason.
func (r *JobRepo) MarkFailed(ctx context.Context, contentID uuid.UUID, errText string) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE processing_jobs SET status = 'FAILED', error_text = $2, updated_at = now()
		WHERE id = (
			SELECT id FROM processing_jobs
			WHERE shared_content_id = $1 AND status IN ('PENDING', 'RUNNING')
			ORDER BY created_at DESC LIMIT 1
		)`, contentID, errText)
	return mapError(err, "job not found")
}

// ListByContent returns a content row's job history, newest first.
func (r *JobRepo) ListByContent(ctx context.Context, contentID uuid.UUID) ([]models.ProcessingJob, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, shared_content_id, job_type, status, error_text, metadata, created_at, updated_at
		FROM processing_jobs
		WHERE shared_content_id = $1
		ORDER BY created_at DESC`, contentID)
	if err != nil {
		return nil, mapError(err, "job not found")
	}
	defer rows.Close()

	var out []models.ProcessingJob
	for rows.Next() {
		var j models.ProcessingJob
		if err := rows.Scan(&j.ID, &j.SharedContentID, &j.JobType, &j.Status,
			&j.ErrorText, &j.Metadata, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, mapError(err, "job not found")
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
