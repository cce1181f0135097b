// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/auth"
	"github.com/keepstack/keepstack/internal/config"
	"github.com/keepstack/keepstack/internal/database"
	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/models"
	"github.com/keepstack/keepstack/internal/saves"
)

type fakeAuthService struct {
	session *auth.Session
	err     error
}

func (f *fakeAuthService) Register(context.Context, string, string) (*auth.Session, error) {
	return f.session, f.err
}
func (f *fakeAuthService) Login(context.Context, string, string) (*auth.Session, error) {
	return f.session, f.err
}

type fakeSaver struct {
	result  *models.SaveWithContent
	err     error
	lastURL string
}

func (f *fakeSaver) Save(_ context.Context, _ uuid.UUID, rawURL string, _ *string) (*models.SaveWithContent, error) {
	f.lastURL = rawURL
	return f.result, f.err
}

type fakeRetriever struct {
	items    []models.SaveWithContent
	total    int
	lastOpts database.ListOptions

	item *models.SaveWithContent
	err  error

	clusters  []models.ClusterWithCount
	cluster   *models.ClusterWithItems
	similar   []saves.SimilarItem
	recluster  []*models.ContentCategory
	deleted    []uuid.UUID
	flags      map[string]bool
	lastUpdate *database.SaveUpdate
}

func (f *fakeRetriever) List(_ context.Context, _ uuid.UUID, opts database.ListOptions) ([]models.SaveWithContent, int, error) {
	f.lastOpts = opts
	return f.items, f.total, f.err
}

func (f *fakeRetriever) CategoryCounts(context.Context, uuid.UUID) (map[models.ContentCategory]int, error) {
	return map[models.ContentCategory]int{models.CategoryFood: 4}, f.err
}

func (f *fakeRetriever) Get(context.Context, uuid.UUID, uuid.UUID) (*models.SaveWithContent, error) {
	return f.item, f.err
}

func (f *fakeRetriever) ToggleFavorited(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	if f.flags == nil {
		f.flags = map[string]bool{}
	}
	f.flags["favorited"] = !f.flags["favorited"]
	return f.flags["favorited"], f.err
}

func (f *fakeRetriever) ToggleArchived(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	if f.flags == nil {
		f.flags = map[string]bool{}
	}
	f.flags["archived"] = !f.flags["archived"]
	return f.flags["archived"], f.err
}

func (f *fakeRetriever) Update(_ context.Context, _, _ uuid.UUID, upd database.SaveUpdate) (*models.SaveWithContent, error) {
	f.lastUpdate = &upd
	return f.item, f.err
}

func (f *fakeRetriever) Delete(_ context.Context, _, saveID uuid.UUID) error {
	f.deleted = append(f.deleted, saveID)
	return f.err
}

func (f *fakeRetriever) Similar(context.Context, uuid.UUID, uuid.UUID, int) ([]saves.SimilarItem, error) {
	return f.similar, f.err
}

func (f *fakeRetriever) Clusters(context.Context, uuid.UUID, *models.ContentCategory) ([]models.ClusterWithCount, error) {
	return f.clusters, f.err
}

func (f *fakeRetriever) Cluster(context.Context, uuid.UUID, uuid.UUID) (*models.ClusterWithItems, error) {
	return f.cluster, f.err
}

func (f *fakeRetriever) DeleteCluster(_ context.Context, _, clusterID uuid.UUID) error {
	f.deleted = append(f.deleted, clusterID)
	return f.err
}

func (f *fakeRetriever) Recluster(_ context.Context, _ uuid.UUID, category *models.ContentCategory) error {
	f.recluster = append(f.recluster, category)
	return f.err
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errs.E(errs.Unavailable, "down") }

type testServer struct {
	handler   http.Handler
	tokens    *auth.JWTManager
	saver     *fakeSaver
	retriever *fakeRetriever
	authSvc   *fakeAuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	secCfg := &config.SecurityConfig{
		JWTSecret:       strings.Repeat("k", 32),
		TokenTTL:        time.Hour,
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
		CORSOrigins:     []string{"*"},
	}
	tokens, err := auth.NewJWTManager(secCfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	ts := &testServer{
		tokens:    tokens,
		saver:     &fakeSaver{},
		retriever: &fakeRetriever{},
		authSvc:   &fakeAuthService{},
	}
	handler := NewHandler(ts.authSvc, ts.saver, ts.retriever,
		&config.APIConfig{DefaultPageSize: 20, MaxPageSize: 100})
	health := NewHealthChecker(map[string]Pinger{"database": okPinger{}})
	authMW := auth.NewMiddleware(tokens, Unauthorized)
	ts.handler = NewRouter(handler, health, authMW, secCfg).Setup()
	return ts
}

func (ts *testServer) request(t *testing.T, method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		token, err := ts.tokens.Generate(uuid.New())
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func TestAuthEndpoints(t *testing.T) {
	t.Run("register returns 201 with a session", func(t *testing.T) {
		ts := newTestServer(t)
		ts.authSvc.session = &auth.Session{
			User:  &models.User{ID: uuid.New(), Email: "alice@example.com"},
			Token: "signed", ExpiresIn: 3600,
		}
		rec := ts.request(t, http.MethodPost, "/api/v1/auth/register",
			map[string]string{"email": "alice@example.com", "password": "a sensible passphrase"}, false)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if resp := decodeResponse(t, rec); !resp.Success {
			t.Errorf("success = false: %+v", resp.Error)
		}
	})

	t.Run("register validates the payload", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.request(t, http.MethodPost, "/api/v1/auth/register",
			map[string]string{"email": "not-an-email", "password": "short"}, false)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
		resp := decodeResponse(t, rec)
		if resp.Error == nil || resp.Error.Code != "VALIDATION_FAILED" {
			t.Errorf("error = %+v", resp.Error)
		}
	})

	t.Run("login failure maps to 401", func(t *testing.T) {
		ts := newTestServer(t)
		ts.authSvc.err = errs.E(errs.Auth, "invalid credentials")
		rec := ts.request(t, http.MethodPost, "/api/v1/auth/login",
			map[string]string{"email": "alice@example.com", "password": "wrong password"}, false)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestItemEndpoints(t *testing.T) {
	t.Run("create item returns 201", func(t *testing.T) {
		ts := newTestServer(t)
		ts.saver.result = &models.SaveWithContent{
			Save:    models.UserContentSave{ID: uuid.New()},
			Content: models.SharedContent{ID: uuid.New(), Status: models.StatusPending},
		}
		rec := ts.request(t, http.MethodPost, "/api/v1/items",
			map[string]string{"url": "https://instagram.com/p/abc"}, true)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if ts.saver.lastURL != "https://instagram.com/p/abc" {
			t.Errorf("saver got %q", ts.saver.lastURL)
		}
	})

	t.Run("create without a token is 401", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.request(t, http.MethodPost, "/api/v1/items",
			map[string]string{"url": "https://instagram.com/p/abc"}, false)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("duplicate save maps to 409", func(t *testing.T) {
		ts := newTestServer(t)
		ts.saver.err = errs.E(errs.Conflict, "content already saved")
		rec := ts.request(t, http.MethodPost, "/api/v1/items",
			map[string]string{"url": "https://instagram.com/p/abc"}, true)
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("list parses filters and clamps the limit", func(t *testing.T) {
		ts := newTestServer(t)
		ts.retriever.total = 1
		rec := ts.request(t, http.MethodGet,
			"/api/v1/items?category=Food&favorited=true&limit=500&offset=40", nil, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		opts := ts.retriever.lastOpts
		if opts.Category == nil || *opts.Category != models.CategoryFood {
			t.Errorf("category = %v", opts.Category)
		}
		if opts.Favorited == nil || !*opts.Favorited {
			t.Errorf("favorited = %v", opts.Favorited)
		}
		if opts.Limit != 100 {
			t.Errorf("limit = %d, want clamped 100", opts.Limit)
		}
		if opts.Offset != 40 {
			t.Errorf("offset = %d", opts.Offset)
		}
	})

	t.Run("list rejects an unknown category", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.request(t, http.MethodGet, "/api/v1/items?category=Gardening", nil, true)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("list carries pagination meta", func(t *testing.T) {
		ts := newTestServer(t)
		ts.retriever.items = make([]models.SaveWithContent, 20)
		ts.retriever.total = 55
		rec := ts.request(t, http.MethodGet, "/api/v1/items", nil, true)
		resp := decodeResponse(t, rec)
		if resp.Meta == nil || resp.Meta.Pagination == nil {
			t.Fatal("missing pagination meta")
		}
		p := resp.Meta.Pagination
		if p.Total != 55 || p.Count != 20 || !p.HasMore {
			t.Errorf("pagination = %+v", p)
		}
	})

	t.Run("get with a malformed id is 400", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.request(t, http.MethodGet, "/api/v1/items/not-a-uuid", nil, true)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("get missing item is 404", func(t *testing.T) {
		ts := newTestServer(t)
		ts.retriever.err = errs.E(errs.NotFound, "save not found")
		rec := ts.request(t, http.MethodGet, "/api/v1/items/"+uuid.NewString(), nil, true)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("favorite toggles without a body", func(t *testing.T) {
		ts := newTestServer(t)
		path := "/api/v1/items/" + uuid.NewString() + "/favorite"

		rec := ts.request(t, http.MethodPost, path, nil, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if !ts.retriever.flags["favorited"] {
			t.Error("first call should flip the flag on")
		}

		rec = ts.request(t, http.MethodPost, path, nil, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if ts.retriever.flags["favorited"] {
			t.Error("second call should flip the flag back off")
		}
	})

	t.Run("patch applies a partial update", func(t *testing.T) {
		ts := newTestServer(t)
		ts.retriever.item = &models.SaveWithContent{
			Save:    models.UserContentSave{ID: uuid.New(), IsFavorited: true},
			Content: models.SharedContent{ID: uuid.New(), Status: models.StatusReady},
		}
		rec := ts.request(t, http.MethodPatch, "/api/v1/items/"+uuid.NewString(),
			map[string]any{"raw_share_text": "for the weekend", "is_favorited": true}, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		upd := ts.retriever.lastUpdate
		if upd == nil {
			t.Fatal("update not forwarded")
		}
		if upd.RawShareText == nil || *upd.RawShareText != "for the weekend" {
			t.Errorf("RawShareText = %v", upd.RawShareText)
		}
		if upd.Favorited == nil || !*upd.Favorited {
			t.Errorf("Favorited = %v", upd.Favorited)
		}
		if upd.Archived != nil {
			t.Errorf("Archived = %v, want untouched", upd.Archived)
		}
	})

	t.Run("patch with no fields is 400", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.request(t, http.MethodPatch, "/api/v1/items/"+uuid.NewString(),
			map[string]any{}, true)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
		if ts.retriever.lastUpdate != nil {
			t.Error("empty update should not reach the service")
		}
	})

	t.Run("delete answers 204", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.request(t, http.MethodDelete, "/api/v1/items/"+uuid.NewString(), nil, true)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
		if len(ts.retriever.deleted) != 1 {
			t.Error("delete not forwarded")
		}
	})

	t.Run("similar on an unprocessed item is 409", func(t *testing.T) {
		ts := newTestServer(t)
		ts.retriever.err = errs.E(errs.Conflict, "item has not finished processing")
		rec := ts.request(t, http.MethodGet, "/api/v1/items/"+uuid.NewString()+"/similar", nil, true)
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestClusterEndpoints(t *testing.T) {
	t.Run("recluster answers 202", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.request(t, http.MethodPost, "/api/v1/clusters/recluster",
			map[string]string{"category": "Food"}, true)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if len(ts.retriever.recluster) != 1 || ts.retriever.recluster[0] == nil ||
			*ts.retriever.recluster[0] != models.CategoryFood {
			t.Errorf("recluster = %v", ts.retriever.recluster)
		}
	})

	t.Run("recluster without a body sweeps all categories", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.request(t, http.MethodPost, "/api/v1/clusters/recluster", nil, true)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d", rec.Code)
		}
		if len(ts.retriever.recluster) != 1 || ts.retriever.recluster[0] != nil {
			t.Errorf("recluster = %v", ts.retriever.recluster)
		}
	})

	t.Run("cluster delete answers 204", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.request(t, http.MethodDelete, "/api/v1/clusters/"+uuid.NewString(), nil, true)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("live needs no auth", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.request(t, http.MethodGet, "/health/live", nil, false)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("top-level aliases serve the probes", func(t *testing.T) {
		ts := newTestServer(t)
		for _, path := range []string{"/live", "/ready"} {
			rec := ts.request(t, http.MethodGet, path, nil, false)
			if rec.Code != http.StatusOK {
				t.Errorf("GET %s = %d, want 200", path, rec.Code)
			}
		}
	})

	t.Run("ready degrades when a dependency is down", func(t *testing.T) {
		handler := NewHandler(&fakeAuthService{}, &fakeSaver{}, &fakeRetriever{},
			&config.APIConfig{DefaultPageSize: 20, MaxPageSize: 100})
		health := NewHealthChecker(map[string]Pinger{
			"database": okPinger{},
			"vector":   downPinger{},
		})
		secCfg := &config.SecurityConfig{
			JWTSecret: strings.Repeat("k", 32), TokenTTL: time.Hour,
			RateLimitReqs: 1000, RateLimitWindow: time.Minute,
		}
		tokens, err := auth.NewJWTManager(secCfg)
		if err != nil {
			t.Fatalf("NewJWTManager: %v", err)
		}
		router := NewRouter(handler, health, auth.NewMiddleware(tokens, nil), secCfg).Setup()

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}
