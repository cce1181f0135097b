// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package saves

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/models"
	"github.com/keepstack/keepstack/internal/urlutil"
)

type fakeContentStore struct {
	byHash map[string]*models.SharedContent

	// createConflict simulates losing the insert race: the first Create call
	// fails with Conflict after the row "appears" under the hash.
	createConflict bool
	creates        int
}

func (f *fakeContentStore) GetByURLHash(_ context.Context, hash string) (*models.SharedContent, error) {
	if c, ok := f.byHash[hash]; ok {
		cc := *c
		return &cc, nil
	}
	return nil, errs.E(errs.NotFound, "content not found")
}

func (f *fakeContentStore) Create(_ context.Context, url, hash string, platform models.SourcePlatform) (*models.SharedContent, error) {
	f.creates++
	if f.createConflict {
		f.byHash[hash] = &models.SharedContent{
			ID: uuid.New(), URL: url, URLHash: hash,
			SourcePlatform: platform, Status: models.StatusPending,
		}
		f.createConflict = false
		return nil, errs.E(errs.Conflict, "content already exists for url")
	}
	c := &models.SharedContent{
		ID: uuid.New(), URL: url, URLHash: hash,
		SourcePlatform: platform, Status: models.StatusPending,
	}
	f.byHash[hash] = c
	cc := *c
	return &cc, nil
}

type fakeSaveStore struct {
	saved map[string]bool // userID/contentID
}

func (f *fakeSaveStore) Create(_ context.Context, userID, contentID uuid.UUID, rawShareText *string) (*models.UserContentSave, error) {
	key := userID.String() + "/" + contentID.String()
	if f.saved[key] {
		return nil, errs.E(errs.Conflict, "content already saved")
	}
	if f.saved == nil {
		f.saved = map[string]bool{}
	}
	f.saved[key] = true
	return &models.UserContentSave{
		ID: uuid.New(), UserID: userID, SharedContentID: contentID,
		RawShareText: rawShareText,
	}, nil
}

type fakeJobRecorder struct{ created []uuid.UUID }

func (f *fakeJobRecorder) Create(_ context.Context, contentID uuid.UUID, _ models.JobType) (uuid.UUID, error) {
	f.created = append(f.created, contentID)
	return uuid.New(), nil
}

type fakeContentEnqueuer struct{ enqueued []uuid.UUID }

func (f *fakeContentEnqueuer) EnqueueContent(contentID uuid.UUID, _ string) error {
	f.enqueued = append(f.enqueued, contentID)
	return nil
}

func newSaveFixture() (*SaveService, *fakeContentStore, *fakeSaveStore, *fakeContentEnqueuer) {
	content := &fakeContentStore{byHash: map[string]*models.SharedContent{}}
	saveStore := &fakeSaveStore{saved: map[string]bool{}}
	enqueuer := &fakeContentEnqueuer{}
	svc := NewSaveService(content, saveStore, &fakeJobRecorder{}, enqueuer)
	return svc, content, saveStore, enqueuer
}

func TestSaveService(t *testing.T) {
	t.Run("new URL creates content and enqueues processing", func(t *testing.T) {
		svc, _, _, enqueuer := newSaveFixture()
		out, err := svc.Save(context.Background(), uuid.New(), "https://www.instagram.com/p/XYZ?utm_source=share", nil)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if out.Content.URL != "https://instagram.com/p/XYZ" {
			t.Errorf("normalized URL = %q", out.Content.URL)
		}
		if out.Content.SourcePlatform != models.PlatformInstagram {
			t.Errorf("platform = %q", out.Content.SourcePlatform)
		}
		if len(enqueuer.enqueued) != 1 || enqueuer.enqueued[0] != out.Content.ID {
			t.Errorf("enqueued = %v", enqueuer.enqueued)
		}
	})

	t.Run("equivalent URLs dedup to one content row", func(t *testing.T) {
		svc, content, _, enqueuer := newSaveFixture()
		first, err := svc.Save(context.Background(), uuid.New(), "https://www.instagram.com/p/XYZ?utm_source=share", nil)
		if err != nil {
			t.Fatalf("first Save: %v", err)
		}
		second, err := svc.Save(context.Background(), uuid.New(), "https://instagram.com/p/XYZ/", nil)
		if err != nil {
			t.Fatalf("second Save: %v", err)
		}
		if first.Content.ID != second.Content.ID {
			t.Error("equivalent URLs should share one content row")
		}
		if content.creates != 1 {
			t.Errorf("creates = %d, want 1", content.creates)
		}
		// The second save reuses the pending pipeline run.
		if len(enqueuer.enqueued) != 1 {
			t.Errorf("enqueued %d jobs, want 1", len(enqueuer.enqueued))
		}
	})

	t.Run("cached READY content skips the pipeline", func(t *testing.T) {
		svc, content, _, enqueuer := newSaveFixture()
		normalized, _ := urlutil.Normalize("https://instagram.com/p/cached")
		hash := urlutil.Hash(normalized)
		content.byHash[hash] = &models.SharedContent{
			ID: uuid.New(), URL: normalized, URLHash: hash,
			SourcePlatform: models.PlatformInstagram, Status: models.StatusReady,
		}

		out, err := svc.Save(context.Background(), uuid.New(), "https://instagram.com/p/cached", nil)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if out.Content.Status != models.StatusReady {
			t.Errorf("status = %q", out.Content.Status)
		}
		if len(enqueuer.enqueued) != 0 {
			t.Error("READY content must not re-enter the pipeline")
		}
	})

	t.Run("FAILED content gets another pipeline run", func(t *testing.T) {
		svc, content, _, enqueuer := newSaveFixture()
		normalized, _ := urlutil.Normalize("https://instagram.com/p/flaky")
		hash := urlutil.Hash(normalized)
		content.byHash[hash] = &models.SharedContent{
			ID: uuid.New(), URL: normalized, URLHash: hash,
			SourcePlatform: models.PlatformInstagram, Status: models.StatusFailed,
		}

		if _, err := svc.Save(context.Background(), uuid.New(), "https://instagram.com/p/flaky", nil); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if len(enqueuer.enqueued) != 1 {
			t.Error("FAILED content should be re-enqueued on a new save")
		}
	})

	t.Run("same user saving twice conflicts", func(t *testing.T) {
		svc, _, _, _ := newSaveFixture()
		userID := uuid.New()
		if _, err := svc.Save(context.Background(), userID, "https://instagram.com/p/dup", nil); err != nil {
			t.Fatalf("first Save: %v", err)
		}
		_, err := svc.Save(context.Background(), userID, "https://instagram.com/p/dup", nil)
		if !errs.Is(err, errs.Conflict) {
			t.Fatalf("err = %v, want Conflict", err)
		}
	})

	t.Run("losing the create race re-reads the winner's row", func(t *testing.T) {
		svc, content, _, _ := newSaveFixture()
		content.createConflict = true

		out, err := svc.Save(context.Background(), uuid.New(), "https://instagram.com/p/race", nil)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		normalized, _ := urlutil.Normalize("https://instagram.com/p/race")
		if out.Content.ID != content.byHash[urlutil.Hash(normalized)].ID {
			t.Error("should have adopted the winning row")
		}
	})

	t.Run("garbage URL is rejected", func(t *testing.T) {
		svc, content, _, _ := newSaveFixture()
		_, err := svc.Save(context.Background(), uuid.New(), "   ", nil)
		if !errs.Is(err, errs.Validation) {
			t.Fatalf("err = %v, want Validation", err)
		}
		if content.creates != 0 {
			t.Error("nothing should be created for invalid input")
		}
	})
}
