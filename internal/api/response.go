// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package api is the HTTP surface: chi routing, request decoding and
// validation, the response envelope, and the error-kind to status mapping.
package api

import (
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/logging"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Error is the machine-readable error payload.
type Error struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// Meta carries pagination for list responses.
type Meta struct {
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes the returned page.
type Pagination struct {
	Total   int  `json:"total"`
	Count   int  `json:"count"`
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

// respond writes a success envelope.
func respond(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

// respondPage writes a success envelope with pagination meta.
func respondPage(w http.ResponseWriter, data interface{}, total, count, offset, limit int) {
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    data,
		Meta: &Meta{Pagination: &Pagination{
			Total:   total,
			Count:   count,
			Offset:  offset,
			Limit:   limit,
			HasMore: offset+count < total,
		}},
	})
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind errs.Kind) int {
	switch kind {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.Auth:
		return http.StatusUnauthorized
	case errs.Forbidden:
		return http.StatusForbidden
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Conflict:
		return http.StatusConflict
	case errs.RateLimited:
		return http.StatusTooManyRequests
	case errs.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps a service error onto the envelope. Internal causes are
// never echoed to the client; they go to the log under the request id.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := statusOf(kind)

	message := err.Error()
	if kind == errs.Internal {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
		message = "internal error"
	}
	if retryAfter := errs.RetryAfterOf(err); retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter/time.Second)))
	}

	writeJSON(w, status, Response{
		Success: false,
		Error: &Error{
			Code:      kind.String(),
			Message:   message,
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
	})
}

// Unauthorized writes the standard envelope for requests the auth
// middleware rejects. Passed to auth.NewMiddleware at wiring time.
func Unauthorized(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, errs.E(errs.Auth, "missing or invalid token"))
}

// respondValidation reports field-level validation failures.
func respondValidation(w http.ResponseWriter, r *http.Request, details interface{}) {
	writeJSON(w, http.StatusBadRequest, Response{
		Success: false,
		Error: &Error{
			Code:      errs.Validation.String(),
			Message:   "request validation failed",
			Details:   details,
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
	})
}
