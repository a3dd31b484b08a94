// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks contains testify mocks for auth interfaces.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/schoolapi/internal/auth"
)

// MockUserRepository is a testify mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockUserRepository {
	m := &MockUserRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create records the call.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// GetByID records the call.
func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*auth.User)
	return u, args.Error(1)
}

// GetByEmail records the call.
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*auth.User)
	return u, args.Error(1)
}

// List records the call.
func (m *MockUserRepository) List(ctx context.Context) ([]auth.Profile, error) {
	args := m.Called(ctx)
	p, _ := args.Get(0).([]auth.Profile)
	return p, args.Error(1)
}

// Update records the call.
func (m *MockUserRepository) Update(ctx context.Context, user *auth.User, fields auth.FieldSet) error {
	args := m.Called(ctx, user, fields)
	return args.Error(0)
}

var _ auth.UserRepository = (*MockUserRepository)(nil)
