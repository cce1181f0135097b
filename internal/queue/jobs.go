// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package queue carries background jobs over NATS JetStream via Watermill:
// durable consumers, visibility-timeout redelivery, bounded delivery
// attempts, and a poison queue for messages that keep failing.
package queue

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/models"
)

// Topics. Content processing and clustering are separate streams so a
// backlog of heavy enrichment work cannot starve cheap clustering runs.
const (
	TopicContentProcess = "jobs.content.process"
	TopicClusterUser    = "jobs.cluster.user"
)

// ContentJob asks a worker to run the processing pipeline for one
// SharedContent row.
type ContentJob struct {
	JobType         models.JobType `json:"job_type"`
	SharedContentID uuid.UUID      `json:"shared_content_id"`
	URL             string         `json:"url"`
}

// ClusterJob asks a worker to recluster one user, optionally scoped to a
// single category. A nil category means every category with enough items.
type ClusterJob struct {
	JobType         models.JobType `json:"job_type"`
	UserID          uuid.UUID      `json:"user_id"`
	ContentCategory *string        `json:"content_category,omitempty"`
}

// NewContentMessage serialises a content job into a Watermill message.
func NewContentMessage(contentID uuid.UUID, url string) (*message.Message, error) {
	payload, err := json.Marshal(ContentJob{
		JobType:         models.JobTypeIngestContent,
		SharedContentID: contentID,
		URL:             url,
	})
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to encode content job", err)
	}
	return message.NewMessage(watermill.NewUUID(), payload), nil
}

// NewClusterMessage serialises a clustering job into a Watermill message.
func NewClusterMessage(userID uuid.UUID, category *models.ContentCategory) (*message.Message, error) {
	job := ClusterJob{
		JobType: models.JobTypeClusterUser,
		UserID:  userID,
	}
	if category != nil {
		s := string(*category)
		job.ContentCategory = &s
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to encode cluster job", err)
	}
	return message.NewMessage(watermill.NewUUID(), payload), nil
}

// ParseContentJob decodes and validates a content job payload.
func ParseContentJob(payload []byte) (*ContentJob, error) {
	var job ContentJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, errs.Wrap(errs.Validation, "malformed content job payload", err)
	}
	if job.JobType != models.JobTypeIngestContent {
		return nil, errs.Ef(errs.Validation, "unexpected job_type %q on content topic", job.JobType)
	}
	if job.SharedContentID == uuid.Nil {
		return nil, errs.E(errs.Validation, "content job missing shared_content_id")
	}
	return &job, nil
}

// ParseClusterJob decodes and validates a clustering job payload.
func ParseClusterJob(payload []byte) (*ClusterJob, error) {
	var job ClusterJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, errs.Wrap(errs.Validation, "malformed cluster job payload", err)
	}
	if job.JobType != models.JobTypeClusterUser {
		return nil, errs.Ef(errs.Validation, "unexpected job_type %q on cluster topic", job.JobType)
	}
	if job.UserID == uuid.Nil {
		return nil, errs.E(errs.Validation, "cluster job missing user_id")
	}
	if job.ContentCategory != nil {
		if _, ok := models.ParseCategory(*job.ContentCategory); !ok {
			return nil, errs.Ef(errs.Validation, "cluster job has invalid category %q", *job.ContentCategory)
		}
	}
	return &job, nil
}

// Category resolves the optional category filter.
func (j *ClusterJob) Category() *models.ContentCategory {
	if j.ContentCategory == nil {
		return nil
	}
	if cat, ok := models.ParseCategory(*j.ContentCategory); ok {
		return &cat
	}
	return nil
}
