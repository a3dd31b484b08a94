// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Input limits.
const (
	MaxNameLength  = 100
	MaxEmailLength = 254

	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)

// User is a registered account. It is never serialized directly;
// use Profile for any outward-facing view.
type User struct {
	ID           ulid.ULID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public view of a user.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Profile returns the public view of u.
func (u *User) Profile() Profile {
	return Profile{
		ID:    u.ID.String(),
		Name:  u.Name,
		Email: u.Email,
	}
}

// Credentials is an email/password pair presented at login.
type Credentials struct {
	Email    string
	Password string
}

// UserRepository manages user persistence.
// Implementations must enforce email uniqueness atomically and report
// violations as ErrDuplicateEmail.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]Profile, error)

	// Update writes only the columns named in fields.
	Update(ctx context.Context, user *User, fields FieldSet) error
}

// ValidateName checks that a display name is present and within limits.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return oops.Code("AUTH_INVALID_NAME").Wrapf(ErrValidation, "name is required")
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return oops.Code("AUTH_INVALID_NAME").
			With("length", n).
			With("max", MaxNameLength).
			Wrapf(ErrValidation, "name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// ValidateEmail checks that email is a bare, syntactically valid address.
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Wrapf(ErrValidation, "email is required")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("length", len(email)).
			Wrapf(ErrValidation, "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return oops.Code("AUTH_INVALID_EMAIL").Wrapf(ErrValidation, "email is not a valid address")
	}
	at := strings.LastIndexByte(email, '@')
	if at < 1 || !strings.Contains(email[at+1:], ".") {
		return oops.Code("AUTH_INVALID_EMAIL").Wrapf(ErrValidation, "email is not a valid address")
	}
	return nil
}

// ValidatePassword checks that a plaintext password is present and hashable.
func ValidatePassword(password string) error {
	if password == "" {
		return oops.Code("AUTH_INVALID_PASSWORD").Wrapf(ErrValidation, "password is required")
	}
	if len(password) > MaxPasswordBytes {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("max_bytes", MaxPasswordBytes).
			Wrapf(ErrValidation, "password must be at most %d bytes", MaxPasswordBytes)
	}
	return nil
}
