// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides credential storage and stateless session tokens.
//
// # Components
//
//   - CredentialStore - user creation, lookup, password verification and updates
//   - TokenService - HS256 session tokens with a fixed lifetime
//   - Service - register, login and list flows built on the two above
//
// Constructors validate their dependencies and return an error for nil inputs.
//
// # Errors
//
// Failures are oops errors carrying a code (AUTH_*, TOKEN_*) and wrapping one of
// the package sentinels, so callers branch with errors.Is:
//   - ErrValidation, ErrDuplicateEmail, ErrInvalidCredentials, ErrNotFound
//   - ErrTokenMissing, and ErrInvalidToken with its kinds ErrTokenMalformed,
//     ErrTokenExpired, ErrTokenInvalidSignature
//
// # Updates
//
// Updates name their fields explicitly with a FieldSet. A password hash is
// recomputed only when FieldPassword is in the set.
package auth
