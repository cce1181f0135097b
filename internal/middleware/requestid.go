// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package middleware holds the HTTP middleware shared across the router:
// request ids, request logging, and Prometheus instrumentation. Rate
// limiting and CORS come from chi ecosystem middleware wired in the router.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// RequestID tags each request with an id, honouring one supplied by an
// upstream proxy, and exposes it on the response and in the logging context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
