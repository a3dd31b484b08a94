// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("schoolapi/auth")

// Service coordinates registration, login and user listing.
type Service struct {
	creds  *CredentialStore
	tokens *TokenService
	logger *slog.Logger
}

// NewService creates a Service that logs to slog.Default.
func NewService(creds *CredentialStore, tokens *TokenService) (*Service, error) {
	return NewServiceWithLogger(creds, tokens, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(creds *CredentialStore, tokens *TokenService, logger *slog.Logger) (*Service, error) {
	if creds == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token service is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{creds: creds, tokens: tokens, logger: logger}, nil
}

// Register creates a new user.
func (s *Service) Register(ctx context.Context, name, email, password string) (_ *User, err error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer func() { endSpan(span, err) }()

	user, err := s.creds.Create(ctx, name, email, password)
	if err != nil {
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrDuplicateEmail) {
			return nil, err
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create user").Wrap(err)
	}
	span.SetAttributes(attribute.String("user_id", user.ID.String()))
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user, nil
}

// Login checks credentials and issues a session token.
// An unknown email and a wrong password both return ErrInvalidCredentials,
// and both pay for one password comparison.
func (s *Service) Login(ctx context.Context, c Credentials) (_ string, _ *User, err error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer func() { endSpan(span, err) }()

	user, err := s.creds.FindByEmail(ctx, c.Email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return "", nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(err)
		}
		s.creds.VerifyDummy(c.Password)
		return "", nil, invalidCredentials()
	}

	ok, err := s.creds.VerifyPassword(c.Password, user)
	if err != nil {
		return "", nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !ok {
		return "", nil, invalidCredentials()
	}

	if s.creds.NeedsRehash(user) {
		s.upgradeHash(ctx, user, c.Password)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue token").
			Wrap(err)
	}
	span.SetAttributes(attribute.String("user_id", user.ID.String()))
	return token, user, nil
}

// ListUsers returns every user's public profile.
func (s *Service) ListUsers(ctx context.Context) (_ []Profile, err error) {
	ctx, span := tracer.Start(ctx, "auth.list_users")
	defer func() { endSpan(span, err) }()

	profiles, err := s.creds.ListAll(ctx)
	if err != nil {
		return nil, oops.Code("AUTH_LIST_FAILED").With("operation", "list users").Wrap(err)
	}
	span.SetAttributes(attribute.Int("user_count", len(profiles)))
	return profiles, nil
}

// Verify checks a bearer token and returns its identity.
func (s *Service) Verify(token string) (Identity, error) {
	return s.tokens.Verify(token)
}

// upgradeHash re-hashes a verified password at the current cost.
// Login succeeds whether or not the upgrade is persisted.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	updated, err := s.creds.Update(ctx, user.ID, UserChanges{
		Password: password,
		Fields:   NewFieldSet(FieldPassword),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", user.ID.String(),
			"error", err)
		return
	}
	user.PasswordHash = updated.PasswordHash
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
}

// endSpan records err, if any, and ends span. Rejected credentials and
// input are expected outcomes and do not mark the span as failed.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrValidation) && !errors.Is(err, ErrDuplicateEmail) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrapf(ErrInvalidCredentials, "invalid email or password")
}
