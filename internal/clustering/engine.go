// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package clustering

import (
	"context"

	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/ai"
	"github.com/keepstack/keepstack/internal/config"
	"github.com/keepstack/keepstack/internal/database"
	"github.com/keepstack/keepstack/internal/logging"
	"github.com/keepstack/keepstack/internal/metrics"
	"github.com/keepstack/keepstack/internal/models"
)

// CandidateLister supplies the saves eligible for clustering.
type CandidateLister interface {
	ListClusterCandidates(ctx context.Context, userID uuid.UUID, category models.ContentCategory) ([]database.ClusterCandidate, error)
}

// ClusterWriter persists the computed grouping atomically.
type ClusterWriter interface {
	ReplaceForCategory(ctx context.Context, userID uuid.UUID, category models.ContentCategory, groups []database.NewCluster) error
}

// VectorFetcher loads embeddings for content ids.
type VectorFetcher interface {
	Fetch(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]float32, error)
}

// Labeler names a group. ai.Labeler satisfies this; tests use a fake.
type Labeler interface {
	Label(ctx context.Context, category models.ContentCategory, topics, locations []string) ai.ClusterLabel
}

// Engine runs clustering for one user, one category at a time.
type Engine struct {
	candidates CandidateLister
	writer     ClusterWriter
	vectors    VectorFetcher
	labeler    Labeler

	minItems       int
	minClusterSize int
}

// NewEngine wires the engine from its collaborators.
func NewEngine(candidates CandidateLister, writer ClusterWriter, vectors VectorFetcher, labeler Labeler, cfg *config.ClusteringConfig) *Engine {
	return &Engine{
		candidates:     candidates,
		writer:         writer,
		vectors:        vectors,
		labeler:        labeler,
		minItems:       cfg.MinItems,
		minClusterSize: cfg.MinClusterSize,
	}
}

// Run reclusters the user. A nil category means every category; a category
// below the minimum item count is skipped, leaving any existing clusters
// for it untouched.
func (e *Engine) Run(ctx context.Context, userID uuid.UUID, category *models.ContentCategory) error {
	cats := models.AllCategories
	if category != nil {
		cats = []models.ContentCategory{*category}
	}

	for _, cat := range cats {
		if err := e.runCategory(ctx, userID, cat); err != nil {
			metrics.ClusteringRuns.WithLabelValues("failed").Inc()
			return err
		}
	}
	metrics.ClusteringRuns.WithLabelValues("completed").Inc()
	return nil
}

func (e *Engine) runCategory(ctx context.Context, userID uuid.UUID, category models.ContentCategory) error {
	cands, err := e.candidates.ListClusterCandidates(ctx, userID, category)
	if err != nil {
		return err
	}
	if len(cands) < e.minItems {
		logging.Ctx(ctx).Debug().
			Str("category", string(category)).
			Int("items", len(cands)).
			Msg("Skipping clustering, below minimum item count")
		return nil
	}

	ids := make([]uuid.UUID, len(cands))
	for i, c := range cands {
		ids[i] = c.ContentID
	}
	embeddings, err := e.vectors.Fetch(ctx, ids)
	if err != nil {
		return err
	}

	// Drop candidates whose vector is missing (deleted index point, partial
	// backfill); the rest still cluster.
	kept := cands[:0]
	vectors := make([][]float32, 0, len(cands))
	for _, c := range cands {
		vec, ok := embeddings[c.ContentID]
		if !ok {
			logging.Ctx(ctx).Warn().
				Str("content_id", c.ContentID.String()).
				Msg("Candidate has no embedding, excluded from clustering")
			continue
		}
		kept = append(kept, c)
		vectors = append(vectors, vec)
	}
	if len(kept) < e.minItems {
		return nil
	}

	dist, err := DistanceMatrix(vectors)
	if err != nil {
		return err
	}

	groups := Agglomerate(dist, TargetK(len(kept)))

	newClusters := make([]database.NewCluster, 0, len(groups))
	for _, group := range groups {
		if len(group) < e.minClusterSize {
			continue
		}
		rep := Representative(group, dist)

		// Representative's topic leads the label prompt; the rest follow in
		// member order.
		topics := make([]string, 0, len(group))
		locations := make([]string, 0, len(group))
		if t := kept[rep].TopicMain; t != nil && *t != "" {
			topics = append(topics, *t)
		}
		saveIDs := make([]uuid.UUID, 0, len(group))
		for _, idx := range group {
			saveIDs = append(saveIDs, kept[idx].SaveID)
			if idx != rep {
				if t := kept[idx].TopicMain; t != nil && *t != "" {
					topics = append(topics, *t)
				}
			}
			locations = append(locations, kept[idx].Locations...)
		}
		topics = models.StringList(topics).Dedup()

		label := e.labeler.Label(ctx, category, topics, locations)
		newClusters = append(newClusters, database.NewCluster{
			Label:                label.Label,
			ShortDescription:     label.ShortDescription,
			RepresentativeSaveID: kept[rep].SaveID,
			SaveIDs:              saveIDs,
		})
	}

	if err := e.writer.ReplaceForCategory(ctx, userID, category, newClusters); err != nil {
		return err
	}

	metrics.ClustersProduced.Observe(float64(len(newClusters)))
	logging.Ctx(ctx).Info().
		Str("user_id", userID.String()).
		Str("category", string(category)).
		Int("items", len(kept)).
		Int("clusters", len(newClusters)).
		Msg("Clustering run completed")
	return nil
}
