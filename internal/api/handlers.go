// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/auth"
	"github.com/keepstack/keepstack/internal/config"
	"github.com/keepstack/keepstack/internal/database"
	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/models"
	"github.com/keepstack/keepstack/internal/saves"
)

// AuthService is the auth surface the handlers call.
// *auth.Service satisfies it.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
}

// Saver is the write surface. *saves.SaveService satisfies it.
type Saver interface {
	Save(ctx context.Context, userID uuid.UUID, rawURL string, rawShareText *string) (*models.SaveWithContent, error)
}

// Retriever is the read surface. *saves.RetrievalService satisfies it.
type Retriever interface {
	List(ctx context.Context, userID uuid.UUID, opts database.ListOptions) ([]models.SaveWithContent, int, error)
	CategoryCounts(ctx context.Context, userID uuid.UUID) (map[models.ContentCategory]int, error)
	Get(ctx context.Context, userID, saveID uuid.UUID) (*models.SaveWithContent, error)
	ToggleFavorited(ctx context.Context, userID, saveID uuid.UUID) (bool, error)
	ToggleArchived(ctx context.Context, userID, saveID uuid.UUID) (bool, error)
	Update(ctx context.Context, userID, saveID uuid.UUID, upd database.SaveUpdate) (*models.SaveWithContent, error)
	Delete(ctx context.Context, userID, saveID uuid.UUID) error
	Similar(ctx context.Context, userID, saveID uuid.UUID, limit int) ([]saves.SimilarItem, error)
	Clusters(ctx context.Context, userID uuid.UUID, category *models.ContentCategory) ([]models.ClusterWithCount, error)
	Cluster(ctx context.Context, userID, clusterID uuid.UUID) (*models.ClusterWithItems, error)
	DeleteCluster(ctx context.Context, userID, clusterID uuid.UUID) error
	Recluster(ctx context.Context, userID uuid.UUID, category *models.ContentCategory) error
}

// Handler holds the endpoint implementations.
type Handler struct {
	auth      AuthService
	saver     Saver
	retriever Retriever

	defaultPageSize int
	maxPageSize     int
}

// NewHandler wires the handlers.
func NewHandler(authSvc AuthService, saver Saver, retriever Retriever, cfg *config.APIConfig) *Handler {
	return &Handler{
		auth:            authSvc,
		saver:           saver,
		retriever:       retriever,
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
	}
}

// callerID extracts the authenticated user; the auth middleware guarantees
// its presence on protected routes.
func callerID(r *http.Request) (uuid.UUID, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, errs.E(errs.Auth, "missing authentication")
	}
	return id, nil
}

// pathID parses a UUID path parameter.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errs.Ef(errs.Validation, "invalid %s", name)
	}
	return id, nil
}

// sessionResponse is the auth endpoints' payload.
type sessionResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"`
}

// Register handles POST /api/v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		if details := validationDetails(err); details != nil {
			respondValidation(w, r, details)
			return
		}
		respondError(w, r, err)
		return
	}

	session, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, sessionResponse{
		User: session.User, Token: session.Token, ExpiresIn: session.ExpiresIn,
	})
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		if details := validationDetails(err); details != nil {
			respondValidation(w, r, details)
			return
		}
		respondError(w, r, err)
		return
	}

	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, sessionResponse{
		User: session.User, Token: session.Token, ExpiresIn: session.ExpiresIn,
	})
}

// CreateItem handles POST /api/v1/items: the save-a-URL entry point.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req createItemRequest
	if err := decode(r, &req); err != nil {
		if details := validationDetails(err); details != nil {
			respondValidation(w, r, details)
			return
		}
		respondError(w, r, err)
		return
	}

	out, err := h.saver.Save(r.Context(), userID, req.URL, req.RawShareText)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, out)
}

// ListItems handles GET /api/v1/items with filters and pagination.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	opts, err := h.listQuery(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	items, total, err := h.retriever.List(r.Context(), userID, opts)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondPage(w, items, total, len(items), opts.Offset, opts.Limit)
}

// CategoryCounts handles GET /api/v1/items/categories.
func (h *Handler) CategoryCounts(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	counts, err := h.retriever.CategoryCounts(r.Context(), userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, counts)
}

// GetItem handles GET /api/v1/items/{itemID}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	out, err := h.retriever.Get(r.Context(), userID, itemID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, out)
}

// FavoriteItem handles POST /api/v1/items/{itemID}/favorite. The endpoint is
// a toggle: no body, each call flips the flag and returns the new value.
func (h *Handler) FavoriteItem(w http.ResponseWriter, r *http.Request) {
	h.toggleFlag(w, r, h.retriever.ToggleFavorited)
}

// ArchiveItem handles POST /api/v1/items/{itemID}/archive, toggling like
// FavoriteItem.
func (h *Handler) ArchiveItem(w http.ResponseWriter, r *http.Request) {
	h.toggleFlag(w, r, h.retriever.ToggleArchived)
}

func (h *Handler) toggleFlag(w http.ResponseWriter, r *http.Request, toggle func(context.Context, uuid.UUID, uuid.UUID) (bool, error)) {
	userID, err := callerID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	value, err := toggle(r.Context(), userID, itemID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]bool{"value": value})
}

// UpdateItem handles PATCH /api/v1/items/{itemID}: a partial edit of the
// save's share text and flags. Omitted fields stay untouched.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req updateItemRequest
	if err := decode(r, &req); err != nil {
		if details := validationDetails(err); details != nil {
			respondValidation(w, r, details)
			return
		}
		respondError(w, r, err)
		return
	}
	if req.RawShareText == nil && req.IsFavorited == nil && req.IsArchived == nil {
		respondError(w, r, errs.E(errs.Validation, "update has no fields"))
		return
	}

	out, err := h.retriever.Update(r.Context(), userID, itemID, database.SaveUpdate{
		RawShareText: req.RawShareText,
		Favorited:    req.IsFavorited,
		Archived:     req.IsArchived,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, out)
}

// DeleteItem handles DELETE /api/v1/items/{itemID}.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.retriever.Delete(r.Context(), userID, itemID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SimilarItems handles GET /api/v1/items/{itemID}/similar.
func (h *Handler) SimilarItems(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	limit := h.defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, convErr := parsePositive(raw)
		if convErr != nil {
			respondError(w, r, convErr)
			return
		}
		limit = n
	}
	if limit > h.maxPageSize {
		limit = h.maxPageSize
	}

	items, err := h.retriever.Similar(r.Context(), userID, itemID, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, items)
}

// ListClusters handles GET /api/v1/clusters.
func (h *Handler) ListClusters(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	category, err := categoryParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	clusters, err := h.retriever.Clusters(r.Context(), userID, category)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, clusters)
}

// GetCluster handles GET /api/v1/clusters/{clusterID}.
func (h *Handler) GetCluster(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	clusterID, err := pathID(r, "clusterID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	out, err := h.retriever.Cluster(r.Context(), userID, clusterID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, out)
}

// DeleteCluster handles DELETE /api/v1/clusters/{clusterID}.
func (h *Handler) DeleteCluster(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	clusterID, err := pathID(r, "clusterID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.retriever.DeleteCluster(r.Context(), userID, clusterID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Recluster handles POST /api/v1/clusters/recluster: an on-demand run.
func (h *Handler) Recluster(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req reclusterRequest
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			respondError(w, r, err)
			return
		}
	}
	var category *models.ContentCategory
	if req.Category != nil {
		cat, ok := models.ParseCategory(*req.Category)
		if !ok {
			respondError(w, r, errs.Ef(errs.Validation, "unknown category %q", *req.Category))
			return
		}
		category = &cat
	}

	if err := h.retriever.Recluster(r.Context(), userID, category); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}

func parsePositive(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errs.E(errs.Validation, "limit must be a positive integer")
	}
	return n, nil
}
