// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package queue

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/config"
	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/models"
)

// Publisher enqueues jobs onto JetStream.
type Publisher struct {
	publisher message.Publisher
}

// NewPublisher connects a Watermill NATS publisher. Streams are
// auto-provisioned so a fresh broker works without manual setup.
func NewPublisher(cfg *config.NATSConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = NewLoggerAdapter()
	}

	wmConfig := wmNats.PublisherConfig{
		URL: cfg.URL,
		NatsOptions: []natsgo.Option{
			natsgo.RetryOnFailedConnect(true),
			natsgo.MaxReconnects(-1),
			natsgo.ReconnectWait(2 * time.Second),
		},
		Marshaler: &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create queue publisher: %w", err)
	}
	return &Publisher{publisher: pub}, nil
}

// EnqueueContent publishes a processing job for one content row.
func (p *Publisher) EnqueueContent(contentID uuid.UUID, url string) error {
	msg, err := NewContentMessage(contentID, url)
	if err != nil {
		return err
	}
	if err := p.publisher.Publish(TopicContentProcess, msg); err != nil {
		return errs.Wrap(errs.Unavailable, "failed to enqueue content job", err)
	}
	return nil
}

// EnqueueCluster publishes a clustering job for one user.
func (p *Publisher) EnqueueCluster(userID uuid.UUID, category *models.ContentCategory) error {
	msg, err := NewClusterMessage(userID, category)
	if err != nil {
		return err
	}
	if err := p.publisher.Publish(TopicClusterUser, msg); err != nil {
		return errs.Wrap(errs.Unavailable, "failed to enqueue cluster job", err)
	}
	return nil
}

// Raw exposes the underlying publisher for router poison-queue wiring.
func (p *Publisher) Raw() message.Publisher {
	return p.publisher
}

// Close shuts the publisher down.
func (p *Publisher) Close() error {
	return p.publisher.Close()
}
