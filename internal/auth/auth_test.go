// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/config"
	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/models"
)

func testSecurityConfig() *config.SecurityConfig {
	return &config.SecurityConfig{
		JWTSecret:  strings.Repeat("s", 32),
		TokenTTL:   time.Hour,
		BcryptCost: 4, // min cost keeps tests fast
	}
}

func newTestManagers(t *testing.T) (*JWTManager, *PasswordHasher) {
	t.Helper()
	cfg := testSecurityConfig()
	tokens, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	return tokens, NewPasswordHasher(cfg.BcryptCost)
}

func TestJWTManager(t *testing.T) {
	tokens, _ := newTestManagers(t)

	t.Run("round trip", func(t *testing.T) {
		userID := uuid.New()
		token, err := tokens.Generate(userID)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		got, err := tokens.Validate(token)
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if got != userID {
			t.Errorf("subject = %s, want %s", got, userID)
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := tokens.Validate("not.a.token")
		if !errs.Is(err, errs.Auth) {
			t.Fatalf("err = %v, want Auth", err)
		}
	})

	t.Run("rejects a foreign signature", func(t *testing.T) {
		other, err := NewJWTManager(&config.SecurityConfig{
			JWTSecret: strings.Repeat("x", 32), TokenTTL: time.Hour,
		})
		if err != nil {
			t.Fatalf("NewJWTManager: %v", err)
		}
		token, err := other.Generate(uuid.New())
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if _, err := tokens.Validate(token); !errs.Is(err, errs.Auth) {
			t.Fatalf("err = %v, want Auth", err)
		}
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		expired := &JWTManager{secret: tokens.secret, ttl: -time.Minute}
		token, err := expired.Generate(uuid.New())
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if _, err := tokens.Validate(token); !errs.Is(err, errs.Auth) {
			t.Fatalf("err = %v, want Auth", err)
		}
	})
}

func TestPasswordHasher(t *testing.T) {
	_, hasher := newTestManagers(t)

	t.Run("hash and compare", func(t *testing.T) {
		hash, err := hasher.Hash("correct horse battery")
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}
		if err := hasher.Compare(hash, "correct horse battery"); err != nil {
			t.Errorf("Compare: %v", err)
		}
		if err := hasher.Compare(hash, "wrong"); !errs.Is(err, errs.Auth) {
			t.Errorf("err = %v, want Auth", err)
		}
	})

	t.Run("rejects short passwords", func(t *testing.T) {
		if _, err := hasher.Hash("short"); !errs.Is(err, errs.Validation) {
			t.Fatalf("err = %v, want Validation", err)
		}
	})

	t.Run("rejects over-length passwords", func(t *testing.T) {
		if _, err := hasher.Hash(strings.Repeat("p", 73)); !errs.Is(err, errs.Validation) {
			t.Fatalf("err = %v, want Validation", err)
		}
	})
}

type fakeUserStore struct {
	byEmail map[string]*models.User
}

func (f *fakeUserStore) Create(_ context.Context, email, passwordHash string) (*models.User, error) {
	key := strings.ToLower(email)
	if _, exists := f.byEmail[key]; exists {
		return nil, errs.E(errs.Conflict, "email already registered")
	}
	u := &models.User{ID: uuid.New(), Email: key, PasswordHash: passwordHash}
	f.byEmail[key] = u
	return u, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := f.byEmail[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, errs.E(errs.NotFound, "user not found")
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, errs.E(errs.NotFound, "user not found")
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	tokens, hasher := newTestManagers(t)
	return NewService(&fakeUserStore{byEmail: map[string]*models.User{}}, hasher, tokens)
}

func TestService(t *testing.T) {
	t.Run("register then login", func(t *testing.T) {
		svc := newTestService(t)
		reg, err := svc.Register(context.Background(), "alice@example.com", "a sensible passphrase")
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if reg.Token == "" || reg.ExpiresIn != 3600 {
			t.Errorf("session = %+v", reg)
		}

		login, err := svc.Login(context.Background(), "ALICE@example.com", "a sensible passphrase")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if login.User.ID != reg.User.ID {
			t.Error("login resolved a different user")
		}
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		svc := newTestService(t)
		if _, err := svc.Register(context.Background(), "bob@example.com", "a sensible passphrase"); err != nil {
			t.Fatalf("Register: %v", err)
		}
		_, err := svc.Register(context.Background(), "bob@example.com", "another passphrase")
		if !errs.Is(err, errs.Conflict) {
			t.Fatalf("err = %v, want Conflict", err)
		}
	})

	t.Run("invalid email is rejected", func(t *testing.T) {
		svc := newTestService(t)
		if _, err := svc.Register(context.Background(), "not-an-email", "a sensible passphrase"); !errs.Is(err, errs.Validation) {
			t.Fatalf("err = %v, want Validation", err)
		}
	})

	t.Run("unknown account and wrong password look identical", func(t *testing.T) {
		svc := newTestService(t)
		if _, err := svc.Register(context.Background(), "carol@example.com", "a sensible passphrase"); err != nil {
			t.Fatalf("Register: %v", err)
		}

		_, missingErr := svc.Login(context.Background(), "nobody@example.com", "whatever pass")
		_, wrongErr := svc.Login(context.Background(), "carol@example.com", "wrong passphrase")
		if !errs.Is(missingErr, errs.Auth) || !errs.Is(wrongErr, errs.Auth) {
			t.Fatalf("missing = %v, wrong = %v, want Auth for both", missingErr, wrongErr)
		}
		if missingErr.Error() != wrongErr.Error() {
			t.Error("error text must not reveal whether the account exists")
		}
	})
}

func TestMiddleware(t *testing.T) {
	tokens, _ := newTestManagers(t)
	mw := NewMiddleware(tokens, nil)

	protected := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			t.Error("user id missing from context")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid bearer token passes", func(t *testing.T) {
		token, err := tokens.Generate(uuid.New())
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/items", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d", rec.Code)
		}
	})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer nonsense"},
	}
	for _, tt := range tests {
		t.Run(tt.name+" is rejected", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/items", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}
