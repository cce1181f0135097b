// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package saves implements the write and read services over a user's saved
// content: the dedup-aware save flow that feeds the processing pipeline, and
// the retrieval surface (lists, counts, similarity, clusters).
package saves

import (
	"context"

	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/database"
	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/logging"
	"github.com/keepstack/keepstack/internal/models"
	"github.com/keepstack/keepstack/internal/urlutil"
)

// ContentStore is the content-repository slice the save flow needs.
// *database.ContentRepo satisfies it.
type ContentStore interface {
	GetByURLHash(ctx context.Context, urlHash string) (*models.SharedContent, error)
	Create(ctx context.Context, url, urlHash string, platform models.SourcePlatform) (*models.SharedContent, error)
}

// SaveStore is the save-repository slice the save flow needs.
// *database.SaveRepo satisfies it.
type SaveStore interface {
	Create(ctx context.Context, userID, contentID uuid.UUID, rawShareText *string) (*models.UserContentSave, error)
}

// JobRecorder creates the audit row at enqueue time.
// *database.JobRepo satisfies it.
type JobRecorder interface {
	Create(ctx context.Context, contentID uuid.UUID, jobType models.JobType) (uuid.UUID, error)
}

// ContentEnqueuer publishes processing jobs. *queue.Publisher satisfies it.
type ContentEnqueuer interface {
	EnqueueContent(contentID uuid.UUID, url string) error
}

// SaveService handles the save-a-URL flow.
type SaveService struct {
	content  ContentStore
	saves    SaveStore
	jobs     JobRecorder
	enqueuer ContentEnqueuer
}

// NewSaveService wires the service.
func NewSaveService(content ContentStore, saves SaveStore, jobs JobRecorder, enqueuer ContentEnqueuer) *SaveService {
	return &SaveService{content: content, saves: saves, jobs: jobs, enqueuer: enqueuer}
}

// Save records a URL for the user. The URL is normalized before hashing, so
// share-sheet noise (tracking params, scheme and host casing, trailing slash)
// dedups to one canonical content row. Content already processed by another
// user's earlier save is served from cache: no new pipeline run.
//
// Saving the same content twice returns errs.Conflict.
func (s *SaveService) Save(ctx context.Context, userID uuid.UUID, rawURL string, rawShareText *string) (*models.SaveWithContent, error) {
	normalized, err := urlutil.Normalize(rawURL)
	if err != nil {
		return nil, err
	}
	hash := urlutil.Hash(normalized)

	content, created, err := s.findOrCreateContent(ctx, normalized, hash)
	if err != nil {
		return nil, err
	}

	save, err := s.saves.Create(ctx, userID, content.ID, rawShareText)
	if err != nil {
		return nil, err
	}

	if created || content.Status == models.StatusFailed {
		s.enqueueProcessing(ctx, content)
	}

	return &models.SaveWithContent{Save: *save, Content: *content}, nil
}

// findOrCreateContent resolves the canonical row for a normalized URL,
// creating it when absent. Two users saving the same new URL at once race on
// the unique hash index; the loser re-reads the winner's row.
func (s *SaveService) findOrCreateContent(ctx context.Context, normalized, hash string) (*models.SharedContent, bool, error) {
	content, err := s.content.GetByURLHash(ctx, hash)
	if err == nil {
		return content, false, nil
	}
	if !errs.Is(err, errs.NotFound) {
		return nil, false, err
	}

	platform := urlutil.DetectPlatform(normalized)
	content, err = s.content.Create(ctx, normalized, hash, platform)
	if err == nil {
		return content, true, nil
	}
	if !errs.Is(err, errs.Conflict) {
		return nil, false, err
	}

	content, err = s.content.GetByURLHash(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	return content, false, nil
}

// enqueueProcessing creates the audit row and publishes the job. Best-effort:
// the save is already durable, and a failed row can be re-enqueued by a later
// save of the same URL.
func (s *SaveService) enqueueProcessing(ctx context.Context, content *models.SharedContent) {
	if _, err := s.jobs.Create(ctx, content.ID, models.JobTypeIngestContent); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("content_id", content.ID.String()).
			Msg("Failed to record processing job")
	}
	if err := s.enqueuer.EnqueueContent(content.ID, content.URL); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("content_id", content.ID.String()).
			Msg("Failed to enqueue content processing")
		return
	}
	logging.Ctx(ctx).Info().Str("content_id", content.ID.String()).
		Str("platform", string(content.SourcePlatform)).
		Msg("Content processing enqueued")
}

// Ensure the database repos satisfy the service interfaces.
var (
	_ ContentStore = (*database.ContentRepo)(nil)
	_ SaveStore    = (*database.SaveRepo)(nil)
	_ JobRecorder  = (*database.JobRepo)(nil)
)
