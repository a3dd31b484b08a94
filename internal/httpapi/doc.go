// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes registration, login and the protected user list
// over HTTP/JSON.
//
// Routes:
//
//	GET  /               welcome text
//	GET  /docs           request body JSON Schemas
//	POST /auth/register  create a user
//	POST /auth/login     exchange credentials for a bearer token
//	GET  /users          list users (bearer token required)
//	GET  /auth/users     same as /users
//
// Every error body is {"message": "..."}.
package httpapi
