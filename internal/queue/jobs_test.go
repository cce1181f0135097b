// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package queue

import (
	"testing"

	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/models"
)

func TestContentJobRoundTrip(t *testing.T) {
	contentID := uuid.New()
	msg, err := NewContentMessage(contentID, "https://instagram.com/p/XYZ")
	if err != nil {
		t.Fatalf("NewContentMessage() error: %v", err)
	}
	if msg.UUID == "" {
		t.Error("message has no uuid")
	}

	job, err := ParseContentJob(msg.Payload)
	if err != nil {
		t.Fatalf("ParseContentJob() error: %v", err)
	}
	if job.SharedContentID != contentID {
		t.Errorf("SharedContentID = %v", job.SharedContentID)
	}
	if job.JobType != models.JobTypeIngestContent {
		t.Errorf("JobType = %v", job.JobType)
	}
	if job.URL != "https://instagram.com/p/XYZ" {
		t.Errorf("URL = %q", job.URL)
	}
}

func TestParseContentJobRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "nope"},
		{"wrong job type", `{"job_type":"cluster_user","shared_content_id":"` + uuid.New().String() + `"}`},
		{"missing id", `{"job_type":"ingest_content","url":"https://x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseContentJob([]byte(tt.payload))
			if !errs.Is(err, errs.Validation) {
				t.Errorf("ParseContentJob(%s) = %v, want validation error", tt.name, err)
			}
		})
	}
}

func TestClusterJobRoundTrip(t *testing.T) {
	userID := uuid.New()

	t.Run("with category", func(t *testing.T) {
		cat := models.CategoryTravel
		msg, err := NewClusterMessage(userID, &cat)
		if err != nil {
			t.Fatal(err)
		}
		job, err := ParseClusterJob(msg.Payload)
		if err != nil {
			t.Fatal(err)
		}
		if job.UserID != userID {
			t.Errorf("UserID = %v", job.UserID)
		}
		if got := job.Category(); got == nil || *got != models.CategoryTravel {
			t.Errorf("Category() = %v", got)
		}
	})

	t.Run("all categories", func(t *testing.T) {
		msg, err := NewClusterMessage(userID, nil)
		if err != nil {
			t.Fatal(err)
		}
		job, err := ParseClusterJob(msg.Payload)
		if err != nil {
			t.Fatal(err)
		}
		if job.Category() != nil {
			t.Errorf("Category() = %v, want nil", job.Category())
		}
	})

	t.Run("invalid category rejected", func(t *testing.T) {
		_, err := ParseClusterJob([]byte(
			`{"job_type":"cluster_user","user_id":"` + userID.String() + `","content_category":"Vacations"}`))
		if !errs.Is(err, errs.Validation) {
			t.Errorf("invalid category = %v, want validation error", err)
		}
	})

	t.Run("missing user rejected", func(t *testing.T) {
		_, err := ParseClusterJob([]byte(`{"job_type":"cluster_user"}`))
		if !errs.Is(err, errs.Validation) {
			t.Errorf("missing user = %v, want validation error", err)
		}
	})
}
