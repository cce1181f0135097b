// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package pipeline runs the background processing for saved content: lease
// the row, fetch platform metadata, classify with the AI provider, embed,
// index the vector, and finish terminally as READY or FAILED. The pipeline
// runs at most once per canonical URL no matter how many users saved it.
package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/ai"
	"github.com/keepstack/keepstack/internal/config"
	"github.com/keepstack/keepstack/internal/database"
	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/ingest"
	"github.com/keepstack/keepstack/internal/logging"
	"github.com/keepstack/keepstack/internal/metrics"
	"github.com/keepstack/keepstack/internal/models"
	"github.com/keepstack/keepstack/internal/queue"
)

// ContentStore is the slice of the content repository the worker needs.
// *database.ContentRepo satisfies it.
type ContentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.SharedContent, error)
	Lease(ctx context.Context, id uuid.UUID) (models.ItemStatus, bool, error)
	UpdateIngestMetadata(ctx context.Context, id uuid.UUID, title, caption, description, thumbnailURL *string, durationSeconds *int) error
	UpdateContentText(ctx context.Context, id uuid.UUID, contentText string) error
	ApplyAnalysis(ctx context.Context, id uuid.UUID, a database.Analysis) error
	SetEmbeddingID(ctx context.Context, id uuid.UUID, embeddingID string) error
	MarkReady(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	CountReadyByUserCategory(ctx context.Context, userID uuid.UUID, category models.ContentCategory) (int, error)
}

// JobAudit records job state transitions. *database.JobRepo satisfies it.
type JobAudit interface {
	MarkRunning(ctx context.Context, contentID uuid.UUID) error
	MarkCompleted(ctx context.Context, contentID uuid.UUID) error
	MarkFailed(ctx context.Context, contentID uuid.UUID, errText string) error
}

// OwnerLister resolves which users saved a content row.
// *database.SaveRepo satisfies it.
type OwnerLister interface {
	ListOwnerIDs(ctx context.Context, contentID uuid.UUID) ([]uuid.UUID, error)
}

// MetadataFetcher is the ingest stage. *ingest.Fetcher satisfies it.
type MetadataFetcher interface {
	Fetch(ctx context.Context, rawURL string, platform models.SourcePlatform) (*ingest.Metadata, error)
}

// ContentClassifier is the classify stage. *ai.Classifier satisfies it.
type ContentClassifier interface {
	Classify(ctx context.Context, in ai.ClassifyInput) (*ai.Classification, error)
}

// Embedder is the vectorise stage. *ai.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorUpserter writes embeddings to the vector index.
// *vector.Index satisfies it.
type VectorUpserter interface {
	Upsert(ctx context.Context, id uuid.UUID, embedding []float32, category models.ContentCategory, platform models.SourcePlatform) error
}

// ClusterEnqueuer publishes clustering jobs. *queue.Publisher satisfies it.
type ClusterEnqueuer interface {
	EnqueueCluster(userID uuid.UUID, category *models.ContentCategory) error
}

// ContentWorker processes one content job end to end.
type ContentWorker struct {
	store      ContentStore
	jobs       JobAudit
	owners     OwnerLister
	fetcher    MetadataFetcher
	classifier ContentClassifier
	embedder   Embedder
	vectors    VectorUpserter
	enqueuer   ClusterEnqueuer

	retry               retryStage
	autocluster         bool
	autoclusterMinItems int
}

// NewContentWorker wires the worker from its collaborators.
func NewContentWorker(
	store ContentStore,
	jobs JobAudit,
	owners OwnerLister,
	fetcher MetadataFetcher,
	classifier ContentClassifier,
	embedder Embedder,
	vectors VectorUpserter,
	enqueuer ClusterEnqueuer,
	pipeCfg *config.PipelineConfig,
	clusterCfg *config.ClusteringConfig,
) *ContentWorker {
	return &ContentWorker{
		store:               store,
		jobs:                jobs,
		owners:              owners,
		fetcher:             fetcher,
		classifier:          classifier,
		embedder:            embedder,
		vectors:             vectors,
		enqueuer:            enqueuer,
		retry:               newRetryStage(pipeCfg.StageAttempts, pipeCfg.BackoffInitial, pipeCfg.BackoffMax),
		autocluster:         pipeCfg.Autocluster,
		autoclusterMinItems: clusterCfg.MinItems,
	}
}

// Process runs the pipeline for one job. A nil return acks the message:
// either the run succeeded, the content was already READY, or the run failed
// terminally and the row was marked FAILED. A non-nil return means our own
// persistence failed mid-run and the broker should redeliver; the lease makes
// redelivery safe.
func (w *ContentWorker) Process(ctx context.Context, job *queue.ContentJob) error {
	id := job.SharedContentID
	lg := logging.Ctx(ctx)

	prev, leased, err := w.store.Lease(ctx, id)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			lg.Warn().Str("content_id", id.String()).Msg("Content job references missing row, dropping")
			return nil
		}
		return err
	}
	if !leased {
		lg.Info().Str("content_id", id.String()).Msg("Content already processed, skipping")
		metrics.PipelineJobs.WithLabelValues("skipped").Inc()
		return nil
	}
	lg.Info().Str("content_id", id.String()).Str("previous_status", string(prev)).
		Msg("Content leased for processing")

	if err := w.jobs.MarkRunning(ctx, id); err != nil {
		lg.Warn().Err(err).Msg("Failed to mark job running")
	}

	content, err := w.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := w.run(ctx, content); err != nil {
		return w.fail(ctx, id, err)
	}

	if err := w.store.MarkReady(ctx, id); err != nil {
		return err
	}
	if err := w.jobs.MarkCompleted(ctx, id); err != nil {
		lg.Warn().Err(err).Msg("Failed to mark job completed")
	}
	lg.Info().Str("content_id", id.String()).Msg("Content processing completed")
	metrics.PipelineJobs.WithLabelValues("ready").Inc()

	w.maybeAutocluster(ctx, content)
	return nil
}

// run executes the stages. Stage errors come back to Process, which decides
// terminal failure; persistence errors between stages do the same.
func (w *ContentWorker) run(ctx context.Context, content *models.SharedContent) error {
	id := content.ID

	// Ingest: platform metadata.
	var meta *ingest.Metadata
	err := w.retry.run(ctx, "ingest", func(ctx context.Context) error {
		var ferr error
		meta, ferr = w.fetcher.Fetch(ctx, content.URL, content.SourcePlatform)
		return ferr
	})
	if err != nil {
		return errs.Wrap(errs.KindOf(err), "ingest stage failed", err)
	}
	if err := w.store.UpdateIngestMetadata(ctx, id,
		meta.Title, meta.Caption, meta.Description, meta.ThumbnailURL, meta.DurationSeconds); err != nil {
		return err
	}

	// Enrich: deterministic text for the classifier and the row.
	contentText := BuildContentText(meta)
	if err := w.store.UpdateContentText(ctx, id, contentText); err != nil {
		return err
	}

	// Classify.
	var classification *ai.Classification
	err = w.retry.run(ctx, "classify", func(ctx context.Context) error {
		var cerr error
		classification, cerr = w.classifier.Classify(ctx, ai.ClassifyInput{
			URL:         content.URL,
			Platform:    content.SourcePlatform,
			Title:       deref(meta.Title),
			Caption:     deref(meta.Caption),
			Description: deref(meta.Description),
			ContentText: contentText,
		})
		return cerr
	})
	if err != nil {
		return errs.Wrap(errs.KindOf(err), "classify stage failed", err)
	}
	analysis := database.Analysis{
		Category:      classification.Category,
		Subcategories: classification.Subcategories,
		Locations:     classification.Locations,
		Entities:      classification.Entities,
		Intent:        classification.Intent,
		VisualTags:    classification.VisualTags,
	}
	if classification.TopicMain != "" {
		analysis.TopicMain = &classification.TopicMain
	}
	if classification.VisualDescription != "" {
		analysis.VisualDescription = &classification.VisualDescription
	}
	if err := w.store.ApplyAnalysis(ctx, id, analysis); err != nil {
		return err
	}
	content.ContentCategory = &classification.Category

	// Vectorise and index.
	embedText := BuildEmbeddingText(content.URL, meta, &analysis)
	var embedding []float32
	err = w.retry.run(ctx, "vectorise", func(ctx context.Context) error {
		vecs, eerr := w.embedder.Embed(ctx, []string{embedText})
		if eerr != nil {
			return eerr
		}
		embedding = vecs[0]
		return w.vectors.Upsert(ctx, id, embedding, classification.Category, content.SourcePlatform)
	})
	if err != nil {
		return errs.Wrap(errs.KindOf(err), "vectorise stage failed", err)
	}
	// The vector point id equals the content id by convention.
	return w.store.SetEmbeddingID(ctx, id, id.String())
}

// fail marks the content and its audit row terminally failed, then acks.
func (w *ContentWorker) fail(ctx context.Context, id uuid.UUID, cause error) error {
	logging.Ctx(ctx).Error().Err(cause).Str("content_id", id.String()).
		Msg("Content processing failed terminally")
	if err := w.store.MarkFailed(ctx, id); err != nil {
		// The row is still PROCESSING; let the broker redeliver so a later
		// attempt can settle it.
		return err
	}
	if err := w.jobs.MarkFailed(ctx, id, cause.Error()); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to mark job failed")
	}
	metrics.PipelineJobs.WithLabelValues("failed").Inc()
	return nil
}

// maybeAutocluster enqueues a clustering run for each owner whose READY count
// in the new category just reached the threshold. Best-effort: clustering
// also runs on demand, so enqueue failures only log.
func (w *ContentWorker) maybeAutocluster(ctx context.Context, content *models.SharedContent) {
	if !w.autocluster || content.ContentCategory == nil {
		return
	}
	category := *content.ContentCategory
	lg := logging.Ctx(ctx)

	owners, err := w.owners.ListOwnerIDs(ctx, content.ID)
	if err != nil {
		lg.Warn().Err(err).Msg("Autocluster owner lookup failed")
		return
	}
	for _, userID := range owners {
		n, err := w.store.CountReadyByUserCategory(ctx, userID, category)
		if err != nil {
			lg.Warn().Err(err).Str("user_id", userID.String()).Msg("Autocluster count failed")
			continue
		}
		if n < w.autoclusterMinItems {
			continue
		}
		if err := w.enqueuer.EnqueueCluster(userID, &category); err != nil {
			lg.Warn().Err(err).Str("user_id", userID.String()).Msg("Autocluster enqueue failed")
			continue
		}
		lg.Info().Str("user_id", userID.String()).Str("category", string(category)).
			Int("ready_items", n).Msg("Autocluster job enqueued")
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
