// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/keepstack/keepstack/internal/errs"
)

// bcrypt rejects inputs beyond 72 bytes; enforce it up front so long
// passphrases fail loudly at registration rather than silently truncating.
const maxPasswordBytes = 72

const minPasswordLength = 8

// PasswordHasher wraps bcrypt with the configured cost.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher builds a hasher; out-of-range costs fall back to the
// bcrypt default.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash validates and hashes a plaintext password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", errs.Ef(errs.Validation, "password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return "", errs.Ef(errs.Validation, "password must be at most %d bytes", maxPasswordBytes)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", errs.Wrap(errs.Internal, "failed to hash password", err)
	}
	return string(hashed), nil
}

// Compare checks a plaintext password against a stored hash.
func (h *PasswordHasher) Compare(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return errs.E(errs.Auth, "invalid credentials")
	}
	return nil
}
