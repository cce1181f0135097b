// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/keepstack/keepstack/internal/errs"
	"github.com/keepstack/keepstack/internal/models"
)

func TestIsUniqueViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: pgUniqueViolation}
	if !IsUniqueViolation(unique) {
		t.Error("unique violation not detected")
	}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", unique)) {
		t.Error("wrapped unique violation not detected")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: pgForeignKeyViolation}) {
		t.Error("fk violation misdetected as unique")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Error("plain error misdetected")
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.Kind
	}{
		{"no rows is not found", pgx.ErrNoRows, errs.NotFound},
		{"unique violation is conflict", &pgconn.PgError{Code: pgUniqueViolation}, errs.Conflict},
		{"fk violation is not found", &pgconn.PgError{Code: pgForeignKeyViolation}, errs.NotFound},
		{"other pg error is internal", &pgconn.PgError{Code: "57014"}, errs.Internal},
		{"plain error is internal", errors.New("boom"), errs.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "row not found")
			if errs.KindOf(got) != tt.want {
				t.Errorf("mapError() kind = %v, want %v", errs.KindOf(got), tt.want)
			}
		})
	}

	if mapError(nil, "x") != nil {
		t.Error("mapError(nil) should be nil")
	}
}

func TestAdvisoryLockKeyStable(t *testing.T) {
	userID := uuid.MustParse("3e5a14a1-0000-4000-8000-000000000001")

	a := advisoryLockKey(userID, models.CategoryTravel)
	b := advisoryLockKey(userID, models.CategoryTravel)
	if a != b {
		t.Error("lock key not deterministic")
	}

	if a == advisoryLockKey(userID, models.CategoryFood) {
		t.Error("different categories should not share a lock key")
	}
	if a == advisoryLockKey(uuid.New(), models.CategoryTravel) {
		t.Error("different users should not share a lock key")
	}
}
