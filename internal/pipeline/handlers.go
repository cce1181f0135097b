// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package pipeline

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/logging"
	"github.com/keepstack/keepstack/internal/metrics"
	"github.com/keepstack/keepstack/internal/models"
	"github.com/keepstack/keepstack/internal/queue"
)

// ClusterRunner reclusters one user. *clustering.Engine satisfies it.
type ClusterRunner interface {
	Run(ctx context.Context, userID uuid.UUID, category *models.ContentCategory) error
}

// ContentHandler adapts the content worker to a queue consumer. Malformed
// payloads return their Validation error so the middleware chain routes them
// to the poison queue instead of redelivering forever.
func ContentHandler(worker *ContentWorker) func(msg *message.Message) error {
	return instrumented(queue.TopicContentProcess, func(msg *message.Message) error {
		ctx := logging.ContextWithJobID(msg.Context(), msg.UUID)

		job, err := queue.ParseContentJob(msg.Payload)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Dropping malformed content job")
			return err
		}
		return worker.Process(ctx, job)
	})
}

// ClusterHandler adapts a cluster runner to a queue consumer.
func ClusterHandler(runner ClusterRunner) func(msg *message.Message) error {
	return instrumented(queue.TopicClusterUser, func(msg *message.Message) error {
		ctx := logging.ContextWithJobID(msg.Context(), msg.UUID)

		job, err := queue.ParseClusterJob(msg.Payload)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Dropping malformed cluster job")
			return err
		}

		if err := runner.Run(ctx, job.UserID, job.Category()); err != nil {
			// Clustering is recomputed wholesale on the next run, so a
			// deterministic failure is not worth redelivering.
			if !errs.Retryable(err) {
				logging.Ctx(ctx).Error().Err(err).
					Str("user_id", job.UserID.String()).
					Msg("Clustering run failed terminally")
				return nil
			}
			return err
		}
		return nil
	})
}

// instrumented counts handler outcomes per topic.
func instrumented(topic string, fn func(msg *message.Message) error) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		err := fn(msg)
		outcome := "acked"
		if err != nil {
			outcome = "nacked"
		}
		metrics.QueueMessages.WithLabelValues(topic, outcome).Inc()
		return err
	}
}
