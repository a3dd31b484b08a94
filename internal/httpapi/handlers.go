// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/holomush/schoolapi/internal/auth"
	"github.com/holomush/schoolapi/internal/observability"
	"github.com/holomush/schoolapi/pkg/errutil"
)

// Response messages.
const (
	msgWelcome         = "Welcome to School API!"
	msgRegistered      = "User registered successfully"
	msgUserExists      = "User already exists"
	msgRegisterFailed  = "Server error during registration"
	msgLoggedIn        = "Logged in successfully"
	msgBadCredentials  = "Invalid credentials"
	msgLoginFailed     = "Server error during login"
	msgListFailed      = "Server error fetching users"
	msgInvalidBody     = "Invalid request body"
	msgInvalidName     = "Name is required and must be at most 100 characters"
	msgInvalidEmail    = "A valid email is required"
	msgInvalidPassword = "Password is required and must be at most 72 bytes"
)

// UserService is the auth behavior the handlers need.
type UserService interface {
	TokenVerifier
	Register(ctx context.Context, name, email, password string) (*auth.User, error)
	Login(ctx context.Context, c auth.Credentials) (string, *auth.User, error)
	ListUsers(ctx context.Context) ([]auth.Profile, error)
}

type registerResponse struct {
	Message string       `json:"message"`
	User    auth.Profile `json:"user"`
}

type loginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type usersResponse struct {
	Users []auth.Profile `json:"users"`
}

type docsResponse struct {
	Schemas map[string]json.RawMessage `json:"schemas"`
}

type handlers struct {
	svc     UserService
	bodies  *bodyValidator
	logger  *slog.Logger
	metrics *observability.Metrics
}

func (h *handlers) root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may disconnect
	w.Write([]byte(msgWelcome))
}

func (h *handlers) docs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, docsResponse{Schemas: h.bodies.docs})
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterRequest
	if err := h.bodies.decode(w, r, SchemaRegister, &req); err != nil {
		h.logger.DebugContext(ctx, "register body rejected", "code", errutil.Code(err), "error", err.Error())
		h.metrics.RecordAuthEvent("register", observability.OutcomeRejected)
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	user, err := h.svc.Register(ctx, req.Name, req.Email, req.Password)
	switch {
	case err == nil:
		h.metrics.RecordAuthEvent("register", observability.OutcomeSuccess)
		writeJSON(w, http.StatusCreated, registerResponse{Message: msgRegistered, User: user.Profile()})
	case errors.Is(err, auth.ErrDuplicateEmail):
		h.metrics.RecordAuthEvent("register", observability.OutcomeRejected)
		writeMessage(w, http.StatusBadRequest, msgUserExists)
	case errors.Is(err, auth.ErrValidation):
		h.metrics.RecordAuthEvent("register", observability.OutcomeRejected)
		writeMessage(w, http.StatusBadRequest, validationMessage(err))
	default:
		h.metrics.RecordAuthEvent("register", observability.OutcomeError)
		errutil.LogError(ctx, h.logger, "registration failed", err)
		writeMessage(w, http.StatusInternalServerError, msgRegisterFailed)
	}
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := h.bodies.decode(w, r, SchemaLogin, &req); err != nil {
		h.logger.DebugContext(ctx, "login body rejected", "code", errutil.Code(err), "error", err.Error())
		h.metrics.RecordAuthEvent("login", observability.OutcomeRejected)
		writeMessage(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	token, user, err := h.svc.Login(ctx, auth.Credentials{Email: req.Email, Password: req.Password})
	switch {
	case err == nil:
		h.metrics.RecordAuthEvent("login", observability.OutcomeSuccess)
		h.logger.InfoContext(ctx, "user logged in", "user_id", user.ID.String())
		writeJSON(w, http.StatusOK, loginResponse{Message: msgLoggedIn, Token: token})
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.metrics.RecordAuthEvent("login", observability.OutcomeRejected)
		writeMessage(w, http.StatusBadRequest, msgBadCredentials)
	default:
		h.metrics.RecordAuthEvent("login", observability.OutcomeError)
		errutil.LogError(ctx, h.logger, "login failed", err)
		writeMessage(w, http.StatusInternalServerError, msgLoginFailed)
	}
}

func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if id, ok := IdentityFromContext(ctx); ok {
		h.logger.InfoContext(ctx, "listing users", "user_id", id.UserID.String())
	}

	profiles, err := h.svc.ListUsers(ctx)
	if err != nil {
		errutil.LogError(ctx, h.logger, "list users failed", err)
		writeMessage(w, http.StatusInternalServerError, msgListFailed)
		return
	}
	if profiles == nil {
		profiles = []auth.Profile{}
	}
	writeJSON(w, http.StatusOK, usersResponse{Users: profiles})
}

// validationMessage picks the client-facing message for a validation error.
func validationMessage(err error) string {
	switch errutil.Code(err) {
	case "AUTH_INVALID_NAME":
		return msgInvalidName
	case "AUTH_INVALID_EMAIL":
		return msgInvalidEmail
	case "AUTH_INVALID_PASSWORD":
		return msgInvalidPassword
	default:
		return msgInvalidBody
	}
}
