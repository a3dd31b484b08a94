// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummyPassword is hashed once and compared against when a login names an
// unknown email, so that path costs the same as a wrong password.
const dummyPassword = "timing-equalization-placeholder"

// UserChanges describes an update to an existing user. Only the fields listed
// in Fields are applied; the other values are ignored.
type UserChanges struct {
	Name     string
	Email    string
	Password string
	Fields   FieldSet
}

// CredentialStore owns user records and their password hashes.
type CredentialStore struct {
	users  UserRepository
	hasher PasswordHasher
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
	dummyErr  error
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(users UserRepository, hasher PasswordHasher) (*CredentialStore, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &CredentialStore{
		users:  users,
		hasher: hasher,
		now:    time.Now,
	}, nil
}

// Create validates input, hashes the password, and persists a new user.
// A taken email yields ErrDuplicateEmail from the repository's uniqueness
// constraint; there is no separate pre-check.
func (s *CredentialStore) Create(ctx context.Context, name, email, password string) (*User, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.With("operation", "hash password").Wrap(err)
	}

	now := s.now().UTC()
	user := &User{
		ID:           ulid.Make(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail looks up a user by exact email. Returns ErrNotFound if absent.
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.users.GetByEmail(ctx, email)
}

// VerifyPassword reports whether password matches the user's stored hash.
func (s *CredentialStore) VerifyPassword(password string, user *User) (bool, error) {
	if user == nil {
		return false, oops.Errorf("user is required")
	}
	candidate, registrable := boundedPassword(password)
	ok, err := s.hasher.Verify(candidate, user.PasswordHash)
	if err != nil {
		return false, oops.With("user_id", user.ID.String()).Wrap(err)
	}
	return ok && registrable, nil
}

// VerifyDummy spends the same effort as VerifyPassword against a throwaway hash.
// The result is always discarded by callers.
func (s *CredentialStore) VerifyDummy(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, s.dummyErr = s.hasher.Hash(dummyPassword)
	})
	if s.dummyErr != nil {
		return
	}
	candidate, _ := boundedPassword(password)
	//nolint:errcheck // result intentionally discarded
	s.hasher.Verify(candidate, s.dummyHash)
}

// boundedPassword cuts password to the bcrypt input limit and reports
// whether it could have been registered. Empty and overlong passwords are
// still compared so that every login costs one bcrypt run.
func boundedPassword(password string) (string, bool) {
	if len(password) > MaxPasswordBytes {
		return password[:MaxPasswordBytes], false
	}
	return password, password != ""
}

// NeedsRehash reports whether the user's hash was made with outdated parameters.
func (s *CredentialStore) NeedsRehash(user *User) bool {
	return s.hasher.NeedsUpgrade(user.PasswordHash)
}

// ListAll returns the public profile of every user.
func (s *CredentialStore) ListAll(ctx context.Context) ([]Profile, error) {
	profiles, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	return profiles, nil
}

// Update applies changes to the user with the given id. The password is
// re-hashed only when FieldPassword is in changes.Fields.
func (s *CredentialStore) Update(ctx context.Context, id ulid.ULID, changes UserChanges) (*User, error) {
	if len(changes.Fields) == 0 {
		return nil, oops.Code("AUTH_NO_CHANGES").Wrapf(ErrValidation, "no fields to update")
	}
	if !changes.Fields.valid() {
		return nil, oops.Code("AUTH_UNKNOWN_FIELD").
			With("fields", changes.Fields.String()).
			Wrapf(ErrValidation, "unknown field in update")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if changes.Fields.Has(FieldName) {
		if err := ValidateName(changes.Name); err != nil {
			return nil, err
		}
		user.Name = changes.Name
	}
	if changes.Fields.Has(FieldEmail) {
		if err := ValidateEmail(changes.Email); err != nil {
			return nil, err
		}
		user.Email = changes.Email
	}
	if changes.Fields.Has(FieldPassword) {
		if err := ValidatePassword(changes.Password); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(changes.Password)
		if err != nil {
			return nil, oops.With("operation", "hash password").With("user_id", id.String()).Wrap(err)
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.users.Update(ctx, user, changes.Fields); err != nil {
		if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, oops.With("operation", "update user").With("user_id", id.String()).Wrap(err)
	}
	return user, nil
}
