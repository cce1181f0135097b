// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package auth

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/database"
	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/logging"
	"github.com/keepstack/keepstack/internal/models"
)

// UserStore is the user-repository slice the auth flow needs.
// *database.UserRepo satisfies it.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Session is what a successful register or login hands back.
type Session struct {
	User      *models.User
	Token     string
	ExpiresIn int64 // seconds
}

// Service implements registration and login.
type Service struct {
	users  UserStore
	hasher *PasswordHasher
	tokens *JWTManager
}

// NewService wires the service.
func NewService(users UserStore, hasher *PasswordHasher, tokens *JWTManager) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

// Register creates an account and returns a fresh session. Email uniqueness
// is case-insensitive; a taken address returns errs.Conflict.
func (s *Service) Register(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errs.E(errs.Validation, "invalid email address")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, email, hash)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("user_id", user.ID.String()).Msg("User registered")

	return s.session(user)
}

// Login verifies credentials and returns a session. A missing account and a
// wrong password both answer errs.Auth, indistinguishably.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, errs.E(errs.Auth, "invalid credentials")
		}
		return nil, err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("user_id", user.ID.String()).Msg("User logged in")

	return s.session(user)
}

func (s *Service) session(user *models.User) (*Session, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:      user,
		Token:     token,
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
	}, nil
}

var _ UserStore = (*database.UserRepo)(nil)
