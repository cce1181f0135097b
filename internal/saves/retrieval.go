// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package saves

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/database"
	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/logging"
	"github.com/keepstack/keepstack/internal/models"
	"github.com/keepstack/keepstack/internal/vector"
)

// SaveReader is the read/annotate slice of the save repository.
// *database.SaveRepo satisfies it.
type SaveReader interface {
	GetWithContent(ctx context.Context, userID, saveID uuid.UUID) (*models.SaveWithContent, error)
	TouchViewed(ctx context.Context, userID, saveID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, opts database.ListOptions) ([]models.SaveWithContent, int, error)
	CategoryCounts(ctx context.Context, userID uuid.UUID) (map[models.ContentCategory]int, error)
	SetFavorited(ctx context.Context, userID, saveID uuid.UUID, favorited bool) error
	SetArchived(ctx context.Context, userID, saveID uuid.UUID, archived bool) error
	Update(ctx context.Context, userID, saveID uuid.UUID, upd database.SaveUpdate) error
	Delete(ctx context.Context, userID, saveID uuid.UUID) (uuid.UUID, error)
	ListByContentIDs(ctx context.Context, userID uuid.UUID, contentIDs []uuid.UUID) ([]models.SaveWithContent, error)
}

// ClusterReader is the read/delete slice of the cluster repository.
// *database.ClusterRepo satisfies it.
type ClusterReader interface {
	ListWithCounts(ctx context.Context, userID uuid.UUID, category *models.ContentCategory) ([]models.ClusterWithCount, error)
	GetWithItems(ctx context.Context, userID, clusterID uuid.UUID) (*models.ClusterWithItems, error)
	Delete(ctx context.Context, userID, clusterID uuid.UUID) error
}

// VectorSearcher is the similarity slice of the vector index.
// *vector.Index satisfies it.
type VectorSearcher interface {
	Fetch(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]float32, error)
	SearchSimilar(ctx context.Context, embedding []float32, category *models.ContentCategory, excludeID uuid.UUID, limit int) ([]vector.SimilarResult, error)
}

// ReclusterEnqueuer publishes clustering jobs. *queue.Publisher satisfies it.
type ReclusterEnqueuer interface {
	EnqueueCluster(userID uuid.UUID, category *models.ContentCategory) error
}

// RetrievalService serves the read side: lists, counts, single items,
// annotations, similarity, and cluster views.
type RetrievalService struct {
	saves    SaveReader
	clusters ClusterReader
	vectors  VectorSearcher
	enqueuer ReclusterEnqueuer
}

// NewRetrievalService wires the service.
func NewRetrievalService(saves SaveReader, clusters ClusterReader, vectors VectorSearcher, enqueuer ReclusterEnqueuer) *RetrievalService {
	return &RetrievalService{saves: saves, clusters: clusters, vectors: vectors, enqueuer: enqueuer}
}

// List returns a filtered page of the user's saves plus the total match count.
func (s *RetrievalService) List(ctx context.Context, userID uuid.UUID, opts database.ListOptions) ([]models.SaveWithContent, int, error) {
	return s.saves.List(ctx, userID, opts)
}

// CategoryCounts returns the user's READY save counts per category.
func (s *RetrievalService) CategoryCounts(ctx context.Context, userID uuid.UUID) (map[models.ContentCategory]int, error) {
	return s.saves.CategoryCounts(ctx, userID)
}

// Get returns one save with its content and stamps last_viewed_at. The view
// stamp is best-effort; a failed stamp never fails the read.
func (s *RetrievalService) Get(ctx context.Context, userID, saveID uuid.UUID) (*models.SaveWithContent, error) {
	out, err := s.saves.GetWithContent(ctx, userID, saveID)
	if err != nil {
		return nil, err
	}
	if err := s.saves.TouchViewed(ctx, userID, saveID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("save_id", saveID.String()).
			Msg("Failed to stamp last viewed")
	}
	return out, nil
}

// ToggleFavorited flips the favorite flag and returns the new value.
func (s *RetrievalService) ToggleFavorited(ctx context.Context, userID, saveID uuid.UUID) (bool, error) {
	sw, err := s.saves.GetWithContent(ctx, userID, saveID)
	if err != nil {
		return false, err
	}
	next := !sw.Save.IsFavorited
	if err := s.saves.SetFavorited(ctx, userID, saveID, next); err != nil {
		return false, err
	}
	return next, nil
}

// ToggleArchived flips the archive flag and returns the new value.
func (s *RetrievalService) ToggleArchived(ctx context.Context, userID, saveID uuid.UUID) (bool, error) {
	sw, err := s.saves.GetWithContent(ctx, userID, saveID)
	if err != nil {
		return false, err
	}
	next := !sw.Save.IsArchived
	if err := s.saves.SetArchived(ctx, userID, saveID, next); err != nil {
		return false, err
	}
	return next, nil
}

// Update applies a partial edit to a save and returns the refreshed item.
func (s *RetrievalService) Update(ctx context.Context, userID, saveID uuid.UUID, upd database.SaveUpdate) (*models.SaveWithContent, error) {
	if err := s.saves.Update(ctx, userID, saveID, upd); err != nil {
		return nil, err
	}
	return s.saves.GetWithContent(ctx, userID, saveID)
}

// Delete removes the user's save. The canonical content row and its vector
// stay: other users may hold saves on them, and a future re-save reuses the
// finished pipeline output. When the deleted item had a category, a recluster
// for it is enqueued so stale groupings heal.
func (s *RetrievalService) Delete(ctx context.Context, userID, saveID uuid.UUID) error {
	sw, err := s.saves.GetWithContent(ctx, userID, saveID)
	if err != nil {
		return err
	}
	if _, err := s.saves.Delete(ctx, userID, saveID); err != nil {
		return err
	}
	if cat := sw.Content.ContentCategory; cat != nil {
		if err := s.enqueuer.EnqueueCluster(userID, cat); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID.String()).
				Msg("Failed to enqueue recluster after delete")
		}
	}
	return nil
}

// SimilarItem is one similarity hit mapped back to the caller's own save.
type SimilarItem struct {
	Item  models.SaveWithContent `json:"item"`
	Score float64                `json:"score"`
}

// Similar returns the user's saves most similar to the given one, best first.
// Only the caller's own saves come back; other users' saves of nearby content
// are invisible. The item must have finished processing.
func (s *RetrievalService) Similar(ctx context.Context, userID, saveID uuid.UUID, limit int) ([]SimilarItem, error) {
	sw, err := s.saves.GetWithContent(ctx, userID, saveID)
	if err != nil {
		return nil, err
	}
	if sw.Content.EmbeddingID == nil {
		return nil, errs.E(errs.Conflict, "item has not finished processing")
	}

	contentID := sw.Content.ID
	vecs, err := s.vectors.Fetch(ctx, []uuid.UUID{contentID})
	if err != nil {
		return nil, err
	}
	embedding, ok := vecs[contentID]
	if !ok {
		return nil, errs.E(errs.NotFound, "embedding not found for item")
	}

	// Over-fetch: hits include content the caller never saved, which gets
	// filtered out below. The search stays inside the item's category.
	hits, err := s.vectors.SearchSimilar(ctx, embedding, sw.Content.ContentCategory, contentID, limit*4)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	scores := make(map[uuid.UUID]float64, len(hits))
	ids := make([]uuid.UUID, 0, len(hits))
	for _, h := range hits {
		scores[h.ID] = h.Score
		ids = append(ids, h.ID)
	}

	items, err := s.saves.ListByContentIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	out := make([]SimilarItem, 0, len(items))
	for _, item := range items {
		out = append(out, SimilarItem{Item: item, Score: scores[item.Content.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Clusters returns the user's clusters with member counts.
func (s *RetrievalService) Clusters(ctx context.Context, userID uuid.UUID, category *models.ContentCategory) ([]models.ClusterWithCount, error) {
	return s.clusters.ListWithCounts(ctx, userID, category)
}

// Cluster returns one cluster with its member items.
func (s *RetrievalService) Cluster(ctx context.Context, userID, clusterID uuid.UUID) (*models.ClusterWithItems, error) {
	return s.clusters.GetWithItems(ctx, userID, clusterID)
}

// DeleteCluster removes a cluster; the saves inside it are untouched. The
// next clustering run for the category will regroup them.
func (s *RetrievalService) DeleteCluster(ctx context.Context, userID, clusterID uuid.UUID) error {
	return s.clusters.Delete(ctx, userID, clusterID)
}

// Recluster enqueues an on-demand clustering run for the user, optionally
// scoped to one category.
func (s *RetrievalService) Recluster(ctx context.Context, userID uuid.UUID, category *models.ContentCategory) error {
	if err := s.enqueuer.EnqueueCluster(userID, category); err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Str("user_id", userID.String()).Msg("Clustering run enqueued")
	return nil
}

var (
	_ SaveReader     = (*database.SaveRepo)(nil)
	_ ClusterReader  = (*database.ClusterRepo)(nil)
	_ VectorSearcher = (*vector.Index)(nil)
)
