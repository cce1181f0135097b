// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package errs defines the error taxonomy shared by services, workers, and
// the HTTP layer. Services return errors carrying a Kind; the HTTP adapter
// maps each Kind to a status code and error envelope, and workers use Kinds
// to decide between retry, backoff, and terminal failure.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for transport mapping and retry decisions.
type Kind int

const (
	// Internal is the default kind for unexpected failures.
	Internal Kind = iota
	// Validation indicates malformed or out-of-range input.
	Validation
	// Auth indicates missing or invalid credentials.
	Auth
	// Forbidden indicates the caller does not own the resource.
	Forbidden
	// NotFound indicates the resource does not exist.
	NotFound
	// Conflict indicates a uniqueness or state conflict (e.g. AlreadySaved).
	Conflict
	// RateLimited indicates an upstream provider rejected the call with a
	// rate-limit signal. Carries an optional RetryAfter hint.
	RateLimited
	// Unavailable indicates an external collaborator (AI provider, vector
	// index, queue) could not be reached.
	Unavailable
)

// String returns the machine-readable code for the kind.
func (k Kind) String() string {
	switch k {
	case Validation:
		return "VALIDATION_FAILED"
	case Auth:
		return "UNAUTHORIZED"
	case Forbidden:
		return "FORBIDDEN"
	case NotFound:
		return "NOT_FOUND"
	case Conflict:
		return "CONFLICT"
	case RateLimited:
		return "RATE_LIMITED"
	case Unavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is the concrete error type carrying a Kind and optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error

	// RetryAfter is a provider-supplied hint for RateLimited errors.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

// Unwrap exposes the wrapped cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new classified error.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Ef creates a new classified error with fmt formatting.
func Ef(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, preserving it as the cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors are
// Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RetryAfterOf returns the retry hint for RateLimited errors, zero otherwise.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) && e.Kind == RateLimited {
		return e.RetryAfter
	}
	return 0
}

// Retryable reports whether a pipeline stage failure should be retried.
// Validation and Conflict failures are deterministic and never retried;
// everything else may be transient.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Validation, Conflict, NotFound, Auth, Forbidden:
		return false
	default:
		return true
	}
}
