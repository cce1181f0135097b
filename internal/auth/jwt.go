// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package auth implements account registration, login, and the JWT bearer
// scheme every non-auth endpoint requires. Tokens are stateless HS256; the
// subject claim is the user id.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/keepstack/keepstack/internal/config"
	"github.com/keepstack/keepstack/internal/errs"
)

// Claims carries the token payload. Only registered claims are used; the
// subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTManager creates and validates bearer tokens.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTManager builds the manager. The secret length is enforced at config
// validation; this only rejects an empty one as a last line of defence.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, errs.E(errs.Internal, "jwt secret is required")
	}
	return &JWTManager{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
	}, nil
}

// Generate signs a token for the user, valid for the configured TTL.
func (m *JWTManager) Generate(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", errs.Wrap(errs.Internal, "failed to sign token", err)
	}
	return signed, nil
}

// Validate checks signature, expiry, and algorithm, and returns the user id
// from the subject claim. All failures map to errs.Auth so the HTTP layer
// answers 401 without leaking which check failed.
func (m *JWTManager) Validate(tokenString string) (uuid.UUID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errs.Ef(errs.Auth, "unexpected signing method %v", t.Header["alg"])
			}
			return m.secret, nil
		})
	if err != nil || !token.Valid {
		return uuid.Nil, errs.Wrap(errs.Auth, "invalid token", err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, errs.E(errs.Auth, "invalid token subject")
	}
	return userID, nil
}

// TTL exposes the token lifetime for the login response.
func (m *JWTManager) TTL() time.Duration {
	return m.ttl
}
