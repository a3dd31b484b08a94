// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// Sentinel errors returned (wrapped in oops errors) by the auth package.
// Match them with errors.Is.
var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrValidation is returned when user input fails validation.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	// The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Token verification errors. Every kind except ErrTokenMissing matches
// ErrInvalidToken under errors.Is.
var (
	ErrInvalidToken                = errors.New("invalid token")
	ErrTokenMissing                = errors.New("token missing")
	ErrTokenMalformed        error = &tokenError{kind: "malformed"}
	ErrTokenExpired          error = &tokenError{kind: "expired"}
	ErrTokenInvalidSignature error = &tokenError{kind: "signature invalid"}

	// ErrSecretMissing is returned when a TokenService is built without a signing secret.
	ErrSecretMissing = errors.New("token signing secret is required")
)

type tokenError struct {
	kind string
}

func (e *tokenError) Error() string { return "token " + e.kind }

func (e *tokenError) Is(target error) bool { return target == ErrInvalidToken }
