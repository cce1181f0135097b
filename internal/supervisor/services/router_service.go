// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package services

import (
	"context"
	"fmt"
)

// MessageRouter matches the job router's run loop. Satisfied by
// *queue.Router.
type MessageRouter interface {
	Run(ctx context.Context) error
}

// RouterService runs the Watermill router under supervision. Run blocks
// until the context is cancelled; a non-nil return means the router
// crashed and suture should restart it.
type RouterService struct {
	router MessageRouter
}

// NewRouterService wraps the job router for the supervision tree.
func NewRouterService(router MessageRouter) *RouterService {
	return &RouterService{router: router}
}

// Serve implements suture.Service.
func (s *RouterService) Serve(ctx context.Context) error {
	if err := s.router.Run(ctx); err != nil {
		return fmt.Errorf("job router failed: %w", err)
	}
	return ctx.Err()
}

// String identifies the service in supervisor logs.
func (s *RouterService) String() string {
	return "job-router"
}
