// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package api

import (
	"net/http"
	"strconv"

	validator "github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/keepstack/keepstack/internal/database"
	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// maxBodyBytes caps request bodies; saved-URL payloads are tiny.
const maxBodyBytes = 64 << 10

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type createItemRequest struct {
	URL          string  `json:"url" validate:"required"`
	RawShareText *string `json:"raw_share_text,omitempty" validate:"omitempty,max=4096"`
}

type updateItemRequest struct {
	RawShareText *string `json:"raw_share_text,omitempty" validate:"omitempty,max=4096"`
	IsFavorited  *bool   `json:"is_favorited,omitempty"`
	IsArchived   *bool   `json:"is_archived,omitempty"`
}

type reclusterRequest struct {
	Category *string `json:"category,omitempty"`
}

// decode reads, unmarshals, and validates a JSON body.
func decode(r *http.Request, out interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return errs.Wrap(errs.Validation, "malformed request body", err)
	}
	if err := validate.Struct(out); err != nil {
		return errs.Wrap(errs.Validation, "request validation failed", err)
	}
	return nil
}

// validationDetails flattens validator errors into field: reason pairs.
func validationDetails(err error) map[string]string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		var wrapped *errs.Error
		if e, isErr := err.(*errs.Error); isErr {
			wrapped = e
		}
		if wrapped == nil || wrapped.Err == nil {
			return nil
		}
		verrs, ok = wrapped.Err.(validator.ValidationErrors)
		if !ok {
			return nil
		}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

// listQuery parses the list-endpoint filters and pagination.
func (h *Handler) listQuery(r *http.Request) (database.ListOptions, error) {
	q := r.URL.Query()
	opts := database.ListOptions{
		Limit: h.defaultPageSize,
	}

	if raw := q.Get("category"); raw != "" {
		cat, ok := models.ParseCategory(raw)
		if !ok {
			return opts, errs.Ef(errs.Validation, "unknown category %q", raw)
		}
		opts.Category = &cat
	}
	if raw := q.Get("status"); raw != "" {
		status, ok := models.ParseStatus(raw)
		if !ok {
			return opts, errs.Ef(errs.Validation, "unknown status %q", raw)
		}
		opts.Status = &status
	}
	var err error
	if opts.Favorited, err = parseBoolParam(q.Get("favorited")); err != nil {
		return opts, err
	}
	if opts.Archived, err = parseBoolParam(q.Get("archived")); err != nil {
		return opts, err
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return opts, errs.E(errs.Validation, "limit must be a positive integer")
		}
		opts.Limit = n
	}
	if opts.Limit > h.maxPageSize {
		opts.Limit = h.maxPageSize
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, errs.E(errs.Validation, "offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	return opts, nil
}

func parseBoolParam(raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errs.Ef(errs.Validation, "expected true or false, got %q", raw)
	}
	return &v, nil
}

// categoryParam parses an optional ?category= filter.
func categoryParam(r *http.Request) (*models.ContentCategory, error) {
	raw := r.URL.Query().Get("category")
	if raw == "" {
		return nil, nil
	}
	cat, ok := models.ParseCategory(raw)
	if !ok {
		return nil, errs.Ef(errs.Validation, "unknown category %q", raw)
	}
	return &cat, nil
}
