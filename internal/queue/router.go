// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package queue

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/keepstack/keepstack/internal/config"
)

// Router wraps the Watermill router with the standard middleware chain:
// panic recovery, in-process retry with exponential backoff, and poison
// queue routing for messages that exhaust their retries.
type Router struct {
	router *message.Router
}

// NewRouter builds the router. poisonPublisher may be nil to disable the
// poison queue (failed messages then rely on broker redelivery alone).
func NewRouter(cfg *config.NATSConfig, poisonPublisher message.Publisher, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = NewLoggerAdapter()
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.RouterCloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create queue router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RouterRetryCount,
		InitialInterval: cfg.RouterRetryInitialInterval,
		MaxInterval:     cfg.AckWait / 2,
		Multiplier:      2.0,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	if poisonPublisher != nil && cfg.RouterPoisonQueueEnabled && cfg.RouterPoisonQueueTopic != "" {
		poison, err := middleware.PoisonQueue(poisonPublisher, cfg.RouterPoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poison)
	}

	return &Router{router: wmRouter}, nil
}

// AddConsumer registers a consume-only handler for one topic.
func (r *Router) AddConsumer(name, topic string, sub message.Subscriber, handler func(msg *message.Message) error) {
	r.router.AddNoPublisherHandler(name, topic, sub, handler)
}

// Run blocks until ctx is cancelled or the router fails.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel closed once the router has started.
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Close shuts the router down, waiting up to CloseTimeout for in-flight
// handlers.
func (r *Router) Close() error {
	return r.router.Close()
}

// Ping reports readiness for health probes: the router has started.
func (r *Router) Ping(_ context.Context) error {
	select {
	case <-r.router.Running():
		return nil
	default:
		return fmt.Errorf("job router not running")
	}
}
