// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process UserRepository.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/schoolapi/internal/auth"
)

// UserRepository stores users in a map. Email uniqueness is checked and
// claimed under the same lock as the insert.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]auth.User
	byEmail map[string]ulid.ULID
}

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[ulid.ULID]auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create inserts user, failing with auth.ErrDuplicateEmail if the email is taken.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return oops.Code("AUTH_DUPLICATE_EMAIL").With("email", user.Email).Wrap(auth.ErrDuplicateEmail)
	}
	if _, exists := r.byID[user.ID]; exists {
		return oops.Code("USER_CREATE_FAILED").With("user_id", user.ID.String()).Errorf("id already exists")
	}
	r.byID[user.ID] = *user
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetByID returns a copy of the user with id.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return &u, nil
}

// GetByEmail returns a copy of the user with email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	u := r.byID[id]
	return &u, nil
}

// List returns profiles ordered by id, which is creation order for ULIDs.
func (r *UserRepository) List(_ context.Context) ([]auth.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]ulid.ULID, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b ulid.ULID) int { return a.Compare(b) })

	profiles := make([]auth.Profile, 0, len(ids))
	for _, id := range ids {
		u := r.byID[id]
		profiles = append(profiles, u.Profile())
	}
	return profiles, nil
}

// Update copies the named fields from user onto the stored record.
func (r *UserRepository) Update(_ context.Context, user *auth.User, fields auth.FieldSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[user.ID]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", user.ID.String()).Wrap(auth.ErrNotFound)
	}

	if fields.Has(auth.FieldEmail) && user.Email != stored.Email {
		if _, taken := r.byEmail[user.Email]; taken {
			return oops.Code("AUTH_DUPLICATE_EMAIL").With("email", user.Email).Wrap(auth.ErrDuplicateEmail)
		}
		delete(r.byEmail, stored.Email)
		r.byEmail[user.Email] = user.ID
		stored.Email = user.Email
	}
	if fields.Has(auth.FieldName) {
		stored.Name = user.Name
	}
	if fields.Has(auth.FieldPassword) {
		stored.PasswordHash = user.PasswordHash
	}
	stored.UpdatedAt = user.UpdatedAt
	r.byID[user.ID] = stored
	return nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
